// Package api exposes runs over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/storage"
	"github.com/kalambet/sumq/internal/video"
	"github.com/kalambet/sumq/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// RunService submits and cancels runs.
type RunService interface {
	Submit(url string) (storage.Run, error)
	Cancel(id, reason string) error
}

// RunReader reads persisted runs.
type RunReader interface {
	GetRun(id string) (storage.Run, error)
	ListRuns(limit int) ([]storage.Run, error)
}

type AppDeps struct {
	Runs  RunService
	Store RunReader
	Token string
	// EventPoll is how often /runs/{id}/events checks for progress.
	EventPoll time.Duration
}

// NewAppHandler returns the REST API. /health is served without auth.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.EventPoll <= 0 {
		deps.EventPoll = 500 * time.Millisecond
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/runs", handleSubmitRun(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
		r.Get("/runs/{id}/report", handleRunReport(deps))
		r.Get("/runs/{id}/document", handleRunDocument(deps))
		r.Get("/runs/{id}/events", handleRunEvents(deps))
		r.Post("/runs/{id}/cancel", handleCancelRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type SubmitRequest struct {
	URL string `json:"url"`
}

// RunView is the API representation of a run.
type RunView struct {
	storage.Run
	Save *content.SaveResult `json:"save,omitempty"`
}

func newRunView(run storage.Run) RunView {
	v := RunView{Run: run}
	if run.SaveJSON != "" {
		var sr content.SaveResult
		if err := json.Unmarshal([]byte(run.SaveJSON), &sr); err == nil {
			v.Save = &sr
		}
	}
	return v
}

// ValidateURL accepts YouTube links with a video ID and local file:// paths.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return flow.Invalid("url is required")
	case video.IsLocal(raw):
		return nil
	case video.ExtractVideoID(raw) == "":
		return flow.Invalid("no YouTube video ID in %q", raw)
	}
	return nil
}

func handleSubmitRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if err := ValidateURL(req.URL); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		run, err := deps.Runs.Submit(req.URL)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue run: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, newRunView(run))
	}
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Store.ListRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}

		views := make([]RunView, len(runs))
		for i, run := range runs {
			views[i] = newRunView(run)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// loadRun writes a 404 or 500 and returns false when the run can't be read.
func loadRun(deps AppDeps, w http.ResponseWriter, r *http.Request) (storage.Run, bool) {
	run, err := deps.Store.GetRun(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "run not found")
		return storage.Run{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
		return storage.Run{}, false
	}
	return run, true
}

func handleGetRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newRunView(run))
	}
}

func requireCompleted(w http.ResponseWriter, run storage.Run) bool {
	if run.Status != storage.RunCompleted {
		httpError(w, http.StatusConflict, "invalid_request_error", "run is %s; output is available once it completes", run.Status)
		return false
	}
	return true
}

func handleRunReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(deps, w, r)
		if !ok || !requireCompleted(w, run) {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(run.HTML))
	}
}

func handleRunDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(deps, w, r)
		if !ok || !requireCompleted(w, run) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="output.json"`)
		w.Write([]byte(run.DocumentJSON))
	}
}

func handleCancelRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Runs.Cancel(id, "cancelled via API")
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "run not found")
		case errors.Is(err, worker.ErrNotCancellable):
			httpError(w, http.StatusConflict, "invalid_request_error", "run already finished")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to cancel run: %v", err)
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
		}
	}
}

// handleRunEvents streams run snapshots as server-sent events until the run
// finishes or the client goes away.
func handleRunEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(deps, w, r)
		if !ok {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		var lastUpdate time.Time
		for {
			if !run.UpdatedAt.Equal(lastUpdate) {
				lastUpdate = run.UpdatedAt
				b, err := json.Marshal(newRunView(run))
				if err != nil {
					slog.Error("encoding run event", "run_id", run.ID, "error", err)
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", b)
				flusher.Flush()
			}
			if run.Finished() {
				return
			}

			select {
			case <-r.Context().Done():
				return
			case <-time.After(deps.EventPoll):
			}

			next, err := deps.Store.GetRun(run.ID)
			if err != nil {
				slog.Warn("reloading run for events", "run_id", run.ID, "error", err)
				return
			}
			run = next
		}
	}
}
