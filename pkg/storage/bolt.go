package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

var (
	bucketData = []byte("data")
	bucketMeta = []byte("meta")
)

// boltMeta is the small JSON sidecar kept next to each payload, so
// Stat never has to read the (possibly large) data bucket entry.
type boltMeta struct {
	Size     uint64 `json:"size"`
	Checksum uint64 `json:"checksum"`
}

// BoltBackend is a durable backend suitable for the Cold and Glacier
// tiers, backed by an embedded bbolt database file.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if necessary) a bbolt-backed backend
// at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt backend: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt backend buckets: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Close closes the underlying database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func (b *BoltBackend) Put(_ context.Context, data []byte) (tstypes.Handle, uint64, error) {
	handle := tstypes.Handle(uuid.NewString())
	sum := checksum(data)

	metaBytes, err := json.Marshal(boltMeta{Size: uint64(len(data)), Checksum: sum})
	if err != nil {
		return "", 0, fmt.Errorf("marshal bolt backend meta: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketData).Put([]byte(handle), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(handle), metaBytes)
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}

	return handle, sum, nil
}

func (b *BoltBackend) Get(_ context.Context, handle tstypes.Handle) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get([]byte(handle))
		if v == nil {
			return tserr.NotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta, err := b.readMeta(handle)
	if err != nil {
		return nil, err
	}
	if checksum(data) != meta.Checksum {
		return nil, tserr.Corrupted
	}

	return data, nil
}

func (b *BoltBackend) readMeta(handle tstypes.Handle) (boltMeta, error) {
	var meta boltMeta
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(handle))
		if v == nil {
			return tserr.NotFound
		}
		return json.Unmarshal(v, &meta)
	})
	return meta, err
}

func (b *BoltBackend) Delete(_ context.Context, handle tstypes.Handle) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketData).Delete([]byte(handle)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(handle))
	})
}

func (b *BoltBackend) Stat(_ context.Context, handle tstypes.Handle) (uint64, uint64, error) {
	meta, err := b.readMeta(handle)
	if err != nil {
		return 0, 0, err
	}
	return meta.Size, meta.Checksum, nil
}

// Flush forces a fsync of the database file. bbolt already fsyncs on
// every committed write transaction; this exists so callers that hold
// Put/Delete calls behind a manual batching layer can still force
// durability on demand.
func (b *BoltBackend) Flush(_ context.Context) error {
	return b.db.Sync()
}

func (b *BoltBackend) ListHandles(_ context.Context) ([]tstypes.Handle, error) {
	var handles []tstypes.Handle
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).ForEach(func(k, _ []byte) error {
			handles = append(handles, tstypes.Handle(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list bolt backend handles: %w", err)
	}
	return handles, nil
}

func (b *BoltBackend) Kind() string { return "bolt" }

func (b *BoltBackend) DurabilityClass() tstypes.DurabilityClass { return tstypes.Durable }
