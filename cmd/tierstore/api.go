package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/tierstore/pkg/coordinator"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// adminAPI exposes the coordinator's public operations over plain
// JSON, one route per operation. It intentionally mirrors the
// coordinator's own method names rather than inventing a separate
// resource model.
type adminAPI struct {
	store *coordinator.Store
}

func newAdminAPI(store *coordinator.Store) *adminAPI {
	return &adminAPI{store: store}
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/objects/put", a.handlePut)
	mux.HandleFunc("/v1/objects/get", a.handleGet)
	mux.HandleFunc("/v1/objects/delete", a.handleDelete)
	mux.HandleFunc("/v1/objects/pin", a.handlePin)
	mux.HandleFunc("/v1/objects/unpin", a.handleUnpin)
	mux.HandleFunc("/v1/admin/migrate", a.handleMigrate)
	mux.HandleFunc("/v1/admin/flush", a.handleFlush)
	mux.HandleFunc("/v1/stats", a.handleStats)
}

func (a *adminAPI) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := coordinator.DefaultPutOptions()
	if tier := r.URL.Query().Get("tier"); tier != "" {
		t, ok := parseTierParam(tier)
		if !ok {
			http.Error(w, "unknown tier", http.StatusBadRequest)
			return
		}
		opts.TargetTier = t
	}
	if r.URL.Query().Get("durable") == "true" {
		opts.Mode = coordinator.Durable
	}
	if r.URL.Query().Get("pin") == "true" {
		opts.Pin = true
	}

	if err := a.store.Put(r.Context(), key, data, opts); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	data, err := a.store.Get(r.Context(), key, coordinator.DefaultGetOptions())
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (a *adminAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	existed, err := a.store.Delete(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"existed": existed})
}

func (a *adminAPI) handlePin(w http.ResponseWriter, r *http.Request) {
	a.togglePin(w, r, true)
}

func (a *adminAPI) handleUnpin(w http.ResponseWriter, r *http.Request) {
	a.togglePin(w, r, false)
}

func (a *adminAPI) togglePin(w http.ResponseWriter, r *http.Request, pin bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	var err error
	if pin {
		err = a.store.Pin(r.Context(), key)
	} else {
		err = a.store.Unpin(r.Context(), key)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) handleMigrate(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	tierName := r.URL.Query().Get("to_tier")
	tier, ok := parseTierParam(tierName)
	if key == "" || !ok {
		http.Error(w, "missing key or invalid to_tier", http.StatusBadRequest)
		return
	}
	if err := a.store.AdminMigrate(r.Context(), key, tier); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Flush(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.store.Stats())
}

func parseTierParam(name string) (tstypes.Tier, bool) {
	switch name {
	case "hot":
		return tstypes.Hot, true
	case "warm":
		return tstypes.Warm, true
	case "cold":
		return tstypes.Cold, true
	case "glacier":
		return tstypes.Glacier, true
	default:
		return 0, false
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tserr.NotFound):
		status = http.StatusNotFound
	case errors.Is(err, tserr.AlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, tserr.InvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, tserr.NoCapacity):
		status = http.StatusInsufficientStorage
	case errors.Is(err, tserr.Corrupted):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, tserr.Timeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, tserr.BackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, tserr.Pinned):
		status = http.StatusConflict
	case errors.Is(err, tserr.CASFailed):
		status = http.StatusConflict
	}
	http.Error(w, fmt.Sprintf("%v", err), status)
}
