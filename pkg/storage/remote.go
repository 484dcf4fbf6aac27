package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// RemoteBackend is a durable backend for the Glacier tier that stores
// bytes against an HTTP object-store gateway instead of a local file.
// It is the one backend whose liveness genuinely needs an out-of-process
// probe rather than a local Flush call, which is what pkg/health's
// HTTPChecker and TCPChecker are for.
type RemoteBackend struct {
	baseURL string
	client  *http.Client
}

// NewRemoteBackend constructs a RemoteBackend against an HTTP gateway
// at baseURL (no trailing slash), e.g. "http://cold-store:9000".
func NewRemoteBackend(baseURL string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteBackend{baseURL: baseURL, client: client}
}

// HealthURL returns the liveness endpoint a health.HTTPChecker should
// probe for this backend.
func (r *RemoteBackend) HealthURL() string {
	return r.baseURL + "/healthz"
}

func (r *RemoteBackend) objectURL(handle tstypes.Handle) string {
	return r.baseURL + "/objects/" + string(handle)
}

func (r *RemoteBackend) Put(ctx context.Context, data []byte) (tstypes.Handle, uint64, error) {
	handle := tstypes.Handle(uuid.NewString())
	sum := checksum(data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.objectURL(handle), bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("build remote put request: %w", err)
	}
	req.Header.Set("X-Checksum", strconv.FormatUint(sum, 10))

	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", 0, fmt.Errorf("%w: remote put returned %s", tserr.BackendUnavailable, resp.Status)
	}

	return handle, sum, nil
}

func (r *RemoteBackend) Get(ctx context.Context, handle tstypes.Handle) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.objectURL(handle), nil)
	if err != nil {
		return nil, fmt.Errorf("build remote get request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, tserr.NotFound
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("%w: remote get returned %s", tserr.BackendUnavailable, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}

	if want := resp.Header.Get("X-Checksum"); want != "" {
		if wantSum, err := strconv.ParseUint(want, 10, 64); err == nil && checksum(data) != wantSum {
			return nil, tserr.Corrupted
		}
	}

	return data, nil
}

func (r *RemoteBackend) Delete(ctx context.Context, handle tstypes.Handle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.objectURL(handle), nil)
	if err != nil {
		return fmt.Errorf("build remote delete request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}
	defer resp.Body.Close()

	// Deleting an unknown handle is not an error: the migration
	// engine's copy-before-delete ordering may race a concurrent
	// cleanup, same as every other backend.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: remote delete returned %s", tserr.BackendUnavailable, resp.Status)
	}
	return nil
}

func (r *RemoteBackend) Stat(ctx context.Context, handle tstypes.Handle) (uint64, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.objectURL(handle), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build remote stat request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, 0, tserr.NotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("%w: remote stat returned %s", tserr.BackendUnavailable, resp.Status)
	}

	size, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: remote stat missing content-length", tserr.BackendUnavailable)
	}
	sum, err := strconv.ParseUint(resp.Header.Get("X-Checksum"), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: remote stat missing checksum", tserr.BackendUnavailable)
	}
	return size, sum, nil
}

// Flush is a no-op: every successful Put response already confirms the
// gateway accepted and durably stored the object.
func (r *RemoteBackend) Flush(_ context.Context) error { return nil }

func (r *RemoteBackend) ListHandles(ctx context.Context) ([]tstypes.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/objects", nil)
	if err != nil {
		return nil, fmt.Errorf("build remote list request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tserr.BackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: remote list returned %s", tserr.BackendUnavailable, resp.Status)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode remote list response: %w", err)
	}
	handles := make([]tstypes.Handle, len(ids))
	for i, id := range ids {
		handles[i] = tstypes.Handle(id)
	}
	return handles, nil
}

func (r *RemoteBackend) Kind() string { return "remote" }

func (r *RemoteBackend) DurabilityClass() tstypes.DurabilityClass { return tstypes.Durable }
