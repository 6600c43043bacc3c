package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds each store health check so a hung backend cannot wedge
// the endpoint.
const probeTimeout = 5 * time.Second

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// probe runs one store check under the probe timeout. Absent probes count as
// failures so a misconfigured deployment cannot report healthy.
func probe(ctx context.Context, check func(ctx context.Context) error) error {
	if check == nil {
		return errors.New("store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return check(ctx)
}

func (h *Handler) storeProbe(name string) (func(ctx context.Context) error, bool) {
	switch name {
	case "postgres":
		return h.health.Postgres, true
	case "qdrant":
		return h.health.Qdrant, true
	case "minio":
		return h.health.Minio, true
	default:
		return nil, false
	}
}

func (h *Handler) handleHealthStore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("store")
	check, ok := h.storeProbe(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown store "+name)
		return
	}
	if err := probe(r.Context(), check); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealthAll(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name  string
		check func(ctx context.Context) error
	}{
		{"postgres", h.health.Postgres},
		{"qdrant", h.health.Qdrant},
		{"minio", h.health.Minio},
	}

	details := make(map[string]bool, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := probe(r.Context(), c.check)
			mu.Lock()
			details[c.name] = err == nil
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := "ok"
	for _, healthy := range details {
		if !healthy {
			status = "error"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "details": details})
}
