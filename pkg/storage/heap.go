package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// HeapBackend is a volatile, in-process backend suitable for the Hot
// and Warm tiers: bytes live only as long as the process does.
type HeapBackend struct {
	mu      sync.RWMutex
	objects map[tstypes.Handle][]byte
}

// NewHeapBackend returns an empty HeapBackend.
func NewHeapBackend() *HeapBackend {
	return &HeapBackend{
		objects: make(map[tstypes.Handle][]byte),
	}
}

func (b *HeapBackend) Put(_ context.Context, data []byte) (tstypes.Handle, uint64, error) {
	cp := make([]byte, len(data))
	copy(cp, data)

	handle := tstypes.Handle(uuid.NewString())
	sum := checksum(cp)

	b.mu.Lock()
	b.objects[handle] = cp
	b.mu.Unlock()

	return handle, sum, nil
}

func (b *HeapBackend) Get(_ context.Context, handle tstypes.Handle) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.objects[handle]
	b.mu.RUnlock()
	if !ok {
		return nil, tserr.NotFound
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (b *HeapBackend) Delete(_ context.Context, handle tstypes.Handle) error {
	b.mu.Lock()
	delete(b.objects, handle)
	b.mu.Unlock()
	return nil
}

func (b *HeapBackend) Stat(_ context.Context, handle tstypes.Handle) (uint64, uint64, error) {
	b.mu.RLock()
	data, ok := b.objects[handle]
	b.mu.RUnlock()
	if !ok {
		return 0, 0, tserr.NotFound
	}
	return uint64(len(data)), checksum(data), nil
}

func (b *HeapBackend) Flush(_ context.Context) error { return nil }

func (b *HeapBackend) ListHandles(_ context.Context) ([]tstypes.Handle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handles := make([]tstypes.Handle, 0, len(b.objects))
	for h := range b.objects {
		handles = append(handles, h)
	}
	return handles, nil
}

func (b *HeapBackend) Kind() string { return "heap" }

func (b *HeapBackend) DurabilityClass() tstypes.DurabilityClass { return tstypes.Volatile }
