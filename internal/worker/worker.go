// Package worker executes queued summarization runs from the SQLite job
// queue and mirrors their progress into the run records.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/pipeline"
	"github.com/kalambet/sumq/internal/storage"
)

// ErrNotCancellable is returned by Cancel for runs that already finished.
var ErrNotCancellable = errors.New("run already finished")

// Store abstracts the job queue and run record operations.
type Store interface {
	CreateRun(r storage.Run) error
	GetRun(id string) (storage.Run, error)
	StartRun(id string) error
	UpdateProgress(id, stage string, percent int, message string) error
	FinishRun(id string, o storage.Outcome) error
	CancelQueued(id, reason string) (bool, error)
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Worker processes summarize jobs one at a time.
type Worker struct {
	store  Store
	runner Runner
	poll   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]*flow.Token
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store Store, runner Runner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		runner:  runner,
		poll:    pollInterval,
		logger:  slog.Default(),
		running: make(map[string]*flow.Token),
	}
}

type summarizePayload struct {
	RunID string `json:"run_id"`
}

// Submit records a queued run for url and enqueues the job that executes it.
func (w *Worker) Submit(url string) (storage.Run, error) {
	if url == "" {
		return storage.Run{}, flow.Invalid("url is required")
	}
	run := storage.Run{ID: uuid.New().String(), URL: url}
	if err := w.store.CreateRun(run); err != nil {
		return storage.Run{}, fmt.Errorf("creating run: %w", err)
	}
	payload, err := json.Marshal(summarizePayload{RunID: run.ID})
	if err != nil {
		return storage.Run{}, err
	}
	// The pipeline retries its own stages; a failed run is not re-queued.
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobSummarize,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}
	if err := w.store.EnqueueJob(job); err != nil {
		return storage.Run{}, fmt.Errorf("enqueueing run %s: %w", run.ID, err)
	}
	w.logger.Info("run queued", "run_id", run.ID, "url", url)
	return w.store.GetRun(run.ID)
}

// Cancel requests cancellation of a run. Running runs stop at their next
// checkpoint; queued runs are marked cancelled and never start.
func (w *Worker) Cancel(id, reason string) error {
	if reason == "" {
		reason = "cancelled by user"
	}
	w.mu.Lock()
	tok, ok := w.running[id]
	w.mu.Unlock()
	if ok {
		tok.Cancel(reason)
		w.logger.Info("cancellation requested", "run_id", id, "reason", reason)
		return nil
	}

	cancelled, err := w.store.CancelQueued(id, reason)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotCancellable
	}
	w.logger.Info("queued run cancelled", "run_id", id)
	return nil
}

// Running reports whether run id is currently executing.
func (w *Worker) Running(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.running[id]
	return ok
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single summarize job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobSummarize})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload summarizePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	run, err := w.store.GetRun(payload.RunID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", payload.RunID, err)
	}
	// Tracked before StartRun so Cancel always finds the run in one state.
	tok := flow.NewToken()
	w.mu.Lock()
	w.running[run.ID] = tok
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.running, run.ID)
		w.mu.Unlock()
	}()

	if err := w.store.StartRun(run.ID); err != nil {
		if errors.Is(err, storage.ErrFinished) {
			w.logger.Info("skipping run cancelled while queued", "run_id", run.ID)
			return nil
		}
		return fmt.Errorf("starting run %s: %w", run.ID, err)
	}

	progress := flow.ObserverFunc(func(e flow.Event) {
		if err := w.store.UpdateProgress(run.ID, e.Stage, e.Percent, e.Message); err != nil {
			w.logger.Debug("recording progress failed", "run_id", run.ID, "error", err)
		}
	})

	res, runErr := w.runner.Run(ctx, pipeline.Request{URL: run.URL, Observer: progress, Token: tok})
	outcome, err := w.outcome(res, runErr)
	if err != nil {
		outcome = storage.Outcome{Status: storage.RunFailed, Error: err.Error()}
	}
	if err := w.store.FinishRun(run.ID, outcome); err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	w.logger.Info("run finished", "run_id", run.ID, "status", outcome.Status)

	if outcome.Status == storage.RunFailed {
		return errors.New(outcome.Error)
	}
	return nil
}

func (w *Worker) outcome(res *pipeline.Result, runErr error) (storage.Outcome, error) {
	switch {
	case flow.IsCancelled(runErr):
		return storage.Outcome{Status: storage.RunCancelled, Error: pipeline.Describe(runErr)}, nil
	case runErr != nil:
		return storage.Outcome{Status: storage.RunFailed, Error: pipeline.Describe(runErr)}, nil
	}

	doc, err := res.Document.Encode()
	if err != nil {
		return storage.Outcome{}, err
	}
	o := storage.Outcome{
		Status:       storage.RunCompleted,
		Title:        res.Video.Title,
		DocumentJSON: string(doc),
		HTML:         res.HTML,
	}
	if res.Save != nil {
		b, err := json.Marshal(res.Save)
		if err != nil {
			return storage.Outcome{}, fmt.Errorf("encoding save result: %w", err)
		}
		o.SaveJSON = string(b)
	}
	return o, nil
}
