package health

import (
	"context"
	"time"

	"github.com/cuemby/tierstore/pkg/storage"
)

// BackendChecker probes a storage tier's liveness by calling its Flush,
// the one Backend method every implementation must answer quickly
// without touching a specific key. A bolt-backed tier failing Flush
// usually means its underlying file or disk is gone; a heap-backed
// tier never fails it, so BackendChecker is most useful wired against
// the durable tiers.
type BackendChecker struct {
	Backend storage.Backend
}

// NewBackendChecker returns a Checker for backend.
func NewBackendChecker(backend storage.Backend) *BackendChecker {
	return &BackendChecker{Backend: backend}
}

// Check implements Checker.
func (c *BackendChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.Backend.Flush(ctx)
	result := Result{CheckedAt: start, Duration: time.Since(start)}
	if err != nil {
		result.Healthy = false
		result.Message = err.Error()
		return result
	}
	result.Healthy = true
	result.Message = "ok"
	return result
}

// Type implements Checker.
func (c *BackendChecker) Type() CheckType { return CheckTypeExec }
