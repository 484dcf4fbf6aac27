package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Op names the kind of mutation a Record describes.
type Op string

const (
	OpPut     Op = "put"
	OpDelete  Op = "delete"
	OpMigrate Op = "migrate"
	OpPin     Op = "pin"
	OpUnpin   Op = "unpin"
)

// Record is one WAL line: the operation and the resulting header.
// Recovery only needs the post-state, not a diff, so every op except
// OpDelete carries the full header to install for its key.
type Record struct {
	Op        Op             `json:"op"`
	Header    tstypes.Header `json:"header"`
	Timestamp time.Time      `json:"timestamp"`
}

// Manifest is the on-disk WAL + checkpoint pair for one store.
type Manifest struct {
	mu             sync.Mutex
	walPath        string
	checkpointPath string
	walFile        *os.File
	walBytes       int64
}

// Open creates dir if necessary and opens (creating if absent) the
// WAL file in append mode.
func Open(dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}

	m := &Manifest{
		walPath:        filepath.Join(dir, "manifest.wal"),
		checkpointPath: filepath.Join(dir, "manifest.checkpoint"),
	}

	f, err := os.OpenFile(m.walPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open manifest wal: %w", err)
	}
	m.walFile = f

	if info, err := f.Stat(); err == nil {
		m.walBytes = info.Size()
		metrics.ManifestWALBytes.Set(float64(m.walBytes))
	}

	return m, nil
}

// Close closes the underlying WAL file handle.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.walFile.Close()
}

// Append writes rec to the WAL and fsyncs before returning, so a
// caller that has received a successful Append knows the mutation
// will survive a crash.
func (m *Manifest) Append(rec Record) error {
	rec.Timestamp = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal manifest record: %w", err)
	}
	data = append(data, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.walFile.Write(data)
	if err != nil {
		return fmt.Errorf("append manifest wal: %w", err)
	}
	if err := m.walFile.Sync(); err != nil {
		return fmt.Errorf("sync manifest wal: %w", err)
	}

	m.walBytes += int64(n)
	metrics.ManifestAppendsTotal.Inc()
	metrics.ManifestWALBytes.Set(float64(m.walBytes))
	return nil
}

// Checkpoint atomically writes the full header set to the checkpoint
// file and truncates the WAL, so recovery after this point only has
// to replay records appended since.
func (m *Manifest) Checkpoint(headers []tstypes.Header) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ManifestCheckpointDuration)

	data, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("marshal manifest checkpoint: %w", err)
	}

	tmp := m.checkpointPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write manifest checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmp, m.checkpointPath); err != nil {
		return fmt.Errorf("install manifest checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.walFile.Truncate(0); err != nil {
		return fmt.Errorf("truncate manifest wal: %w", err)
	}
	if _, err := m.walFile.Seek(0, 0); err != nil {
		return fmt.Errorf("seek manifest wal: %w", err)
	}
	m.walBytes = 0
	metrics.ManifestWALBytes.Set(0)

	log.WithComponent("manifest").Info().Int("headers", len(headers)).Msg("checkpoint written")
	return nil
}

// Recover reads the checkpoint (if any) and replays the WAL on top of
// it, returning the reconstructed header set. It does not start
// appending; callers open a fresh Manifest via Open and call Recover
// once before serving traffic.
func (m *Manifest) Recover() ([]tstypes.Header, error) {
	state := make(map[string]tstypes.Header)

	if data, err := os.ReadFile(m.checkpointPath); err == nil {
		var headers []tstypes.Header
		if err := json.Unmarshal(data, &headers); err != nil {
			return nil, fmt.Errorf("decode manifest checkpoint: %w", err)
		}
		for _, h := range headers {
			state[h.Key] = h
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read manifest checkpoint: %w", err)
	}

	walData, err := os.ReadFile(m.walPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read manifest wal: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(walData))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	replayed := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A partially written final line from a crash mid-append
			// is expected; stop replay rather than failing recovery.
			log.WithComponent("manifest").Warn().Msg("stopping wal replay at first undecodable record")
			break
		}

		if rec.Op == OpDelete {
			delete(state, rec.Header.Key)
		} else {
			state[rec.Header.Key] = rec.Header
		}
		replayed++
	}

	log.WithComponent("manifest").Info().Int("replayed", replayed).Int("keys", len(state)).Msg("manifest recovered")

	headers := make([]tstypes.Header, 0, len(state))
	for _, h := range state {
		headers = append(headers, h)
	}
	return headers, nil
}
