package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat is fixed-width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const runColumns = `id, url, status, stage, percent, message, error, title, document_json, html, save_json, created_at, updated_at`

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// parseTime accepts timeFormat as well as the trimmed-fraction form some
// drivers hand back for timestamp columns.
func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// CreateRun inserts a new run in the queued status.
func (s *Store) CreateRun(r Run) error {
	if r.ID == "" || r.URL == "" {
		return fmt.Errorf("run id and url are required")
	}
	ts := now()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.URL, RunQueued, ts, ts,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.URL, &r.Status, &r.Stage, &r.Percent, &r.Message, &r.Error,
		&r.Title, &r.DocumentJSON, &r.HTML, &r.SaveJSON, &createdAt, &updatedAt)
	if err != nil {
		return Run{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Run{}, fmt.Errorf("parsing created_at for run %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Run{}, fmt.Errorf("parsing updated_at for run %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first. Report bodies are not
// loaded.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, url, status, stage, percent, message, error, title, '', '', '', created_at, updated_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartRun moves a queued run to running. It returns ErrFinished if the run
// was cancelled or finished while queued.
func (s *Store) StartRun(id string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		RunRunning, now(), id, RunQueued)
	if err != nil {
		return err
	}
	return s.checkTransition(res, id)
}

// UpdateProgress records the current stage and percentage of a running run.
func (s *Store) UpdateProgress(id, stage string, percent int, message string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET stage = ?, percent = ?, message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		stage, percent, message, now(), id, RunRunning)
	if err != nil {
		return err
	}
	return s.checkTransition(res, id)
}

// FinishRun writes the terminal outcome of a run that has not finished yet.
func (s *Store) FinishRun(id string, o Outcome) error {
	switch o.Status {
	case RunCompleted, RunFailed, RunCancelled:
	default:
		return fmt.Errorf("invalid terminal status %q", o.Status)
	}
	percentExpr := "percent"
	if o.Status == RunCompleted {
		percentExpr = "100"
	}
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, title = ?, document_json = ?, html = ?, save_json = ?,
			percent = `+percentExpr+`, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		o.Status, o.Error, o.Title, o.DocumentJSON, o.HTML, o.SaveJSON, now(), id, RunQueued, RunRunning)
	if err != nil {
		return err
	}
	return s.checkTransition(res, id)
}

// CancelQueued marks a queued run cancelled. It reports false when the run
// is not queued.
func (s *Store) CancelQueued(id, reason string) (bool, error) {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		RunCancelled, reason, now(), id, RunQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetRun(id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

// RecoverRuns fails runs left running by a previous process and returns how
// many were touched.
func (s *Store) RecoverRuns(reason string) (int, error) {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		RunFailed, reason, now(), RunRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) checkTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetRun(id); err != nil {
		return err
	}
	return ErrFinished
}
