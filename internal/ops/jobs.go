package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/daemon"
)

type jobHandlers struct {
	jobs *daemon.JobManager
	cfg  *config.Config
	base context.Context
}

// jobCtx is the parent context for submitted jobs. Jobs must outlive the
// submit request: net/http cancels r.Context() the moment the handler
// returns, so jobs hang off the server's lifetime context instead.
func (jh *jobHandlers) jobCtx() context.Context {
	if jh.base != nil {
		return jh.base
	}
	return context.Background()
}

func (jh *jobHandlers) submitResync(w http.ResponseWriter, r *http.Request) {
	if jh.jobs == nil {
		writeJobResponse(w, http.StatusServiceUnavailable, daemon.JobResponse{
			Error: "job manager not available",
		})
		return
	}

	var payload daemon.ResyncPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJobResponse(w, http.StatusBadRequest, daemon.JobResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}

	since, err := resolveSince(payload, jh.cfg)
	if err != nil {
		writeJobResponse(w, http.StatusBadRequest, daemon.JobResponse{
			Error: err.Error(),
		})
		return
	}

	if err := jh.jobs.RunResync(jh.jobCtx(), since); err != nil {
		writeJobResponse(w, http.StatusConflict, daemon.JobResponse{
			Error: err.Error(),
		})
		return
	}

	writeJobResponse(w, http.StatusAccepted, daemon.JobResponse{
		OK:      true,
		Message: "resync started since " + since.UTC().Format(time.RFC3339),
	})
}

func (jh *jobHandlers) submitItems(w http.ResponseWriter, r *http.Request) {
	if jh.jobs == nil {
		writeJobResponse(w, http.StatusServiceUnavailable, daemon.JobResponse{
			Error: "job manager not available",
		})
		return
	}

	var payload daemon.ItemsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJobResponse(w, http.StatusBadRequest, daemon.JobResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}
	if len(payload.ItemIDs) == 0 {
		writeJobResponse(w, http.StatusBadRequest, daemon.JobResponse{
			Error: "item_ids is required",
		})
		return
	}

	if err := jh.jobs.RunItems(jh.jobCtx(), payload.ItemIDs, payload.DeltaLink); err != nil {
		writeJobResponse(w, http.StatusConflict, daemon.JobResponse{
			Error: err.Error(),
		})
		return
	}

	writeJobResponse(w, http.StatusAccepted, daemon.JobResponse{
		OK:      true,
		Message: "item run started",
	})
}

func (jh *jobHandlers) stopJob(w http.ResponseWriter, r *http.Request) {
	if jh.jobs == nil {
		writeJobResponse(w, http.StatusServiceUnavailable, daemon.JobResponse{
			Error: "job manager not available",
		})
		return
	}
	if err := jh.jobs.StopJob(); err != nil {
		writeJobResponse(w, http.StatusConflict, daemon.JobResponse{
			Error: err.Error(),
		})
		return
	}
	writeJobResponse(w, http.StatusOK, daemon.JobResponse{
		OK:      true,
		Message: "job stop requested",
	})
}

func (jh *jobHandlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	if jh.jobs == nil {
		writeJSON(w, map[string]any{"running": false})
		return
	}
	running := jh.jobs.IsRunning()
	resp := map[string]any{
		"running": running,
	}
	if running {
		resp["job"] = jh.jobs.CurrentJob()
	} else if err := jh.jobs.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	writeJSON(w, resp)
}

// resolveSince turns a resync payload into an absolute start time: an
// explicit RFC 3339 timestamp wins, then an explicit window, then the
// configured default window.
func resolveSince(payload daemon.ResyncPayload, cfg *config.Config) (time.Time, error) {
	if payload.Since != "" {
		since, err := time.Parse(time.RFC3339, payload.Since)
		if err != nil {
			return time.Time{}, err
		}
		return since, nil
	}
	window := cfg.ResyncWindow()
	if payload.WindowMinutes > 0 {
		window = time.Duration(payload.WindowMinutes) * time.Minute
	}
	return time.Now().Add(-window), nil
}

func writeJobResponse(w http.ResponseWriter, status int, resp daemon.JobResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}
