package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrFinished is returned when a transition is requested on a run that has
// already reached a terminal status.
var ErrFinished = errors.New("run already finished")

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one pipeline execution as persisted for the API and CLI.
type Run struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	Percent      int       `json:"percent"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	Title        string    `json:"title,omitempty"`
	DocumentJSON string    `json:"-"`
	HTML         string    `json:"-"`
	SaveJSON     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Finished reports whether the run is in a terminal status.
func (r Run) Finished() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Outcome is the terminal state written by FinishRun.
type Outcome struct {
	Status       string
	Error        string
	Title        string
	DocumentJSON string
	HTML         string
	SaveJSON     string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
