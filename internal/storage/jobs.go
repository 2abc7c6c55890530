package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSummaryAttempts bounds how often a page summary is tried.
const DefaultSummaryAttempts = 3

const summaryJobColumns = `id, page_id, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

func scanSummaryJob(row interface{ Scan(...any) error }) (SummaryJob, error) {
	var j SummaryJob
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	if err := row.Scan(&j.ID, &j.PageID, &j.Status, &j.Attempts, &j.MaxAttempts, &runAfter, &createdAt, &updatedAt, &lastError); err != nil {
		return SummaryJob{}, err
	}
	j.LastError = lastError.String
	var err error
	if j.RunAfter, err = parseTime("run_after", runAfter); err != nil {
		return SummaryJob{}, err
	}
	if j.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return SummaryJob{}, err
	}
	if j.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return SummaryJob{}, err
	}
	return j, nil
}

// QueueSummary schedules a summary of pageID. When the page already has a
// pending job that job is returned and created is false.
func (s *Store) QueueSummary(pageID string) (job SummaryJob, created bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return SummaryJob{}, false, fmt.Errorf("beginning queue transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM pages WHERE id = ?`, pageID).Scan(&exists); err != nil {
		return SummaryJob{}, false, err
	}
	if exists == 0 {
		return SummaryJob{}, false, ErrNotFound
	}

	job, err = scanSummaryJob(tx.QueryRow(`SELECT `+summaryJobColumns+` FROM summary_jobs
		WHERE page_id = ? AND status = ?`, pageID, JobPending))
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return SummaryJob{}, false, fmt.Errorf("looking up pending summary: %w", err)
	}

	ts := s.now()
	id := uuid.New().String()
	if _, err := tx.Exec(`INSERT INTO summary_jobs (id, page_id, status, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, id, pageID, JobPending, DefaultSummaryAttempts, ts, ts, ts); err != nil {
		return SummaryJob{}, false, fmt.Errorf("inserting summary job: %w", err)
	}
	job, err = scanSummaryJob(tx.QueryRow(`SELECT `+summaryJobColumns+` FROM summary_jobs WHERE id = ?`, id))
	if err != nil {
		return SummaryJob{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return SummaryJob{}, false, fmt.Errorf("committing summary job: %w", err)
	}
	return job, true, nil
}

// ClaimSummary marks the oldest due pending job as running and returns it,
// or nil when nothing is due.
func (s *Store) ClaimSummary() (*SummaryJob, error) {
	ts := s.now()
	job, err := scanSummaryJob(s.db.QueryRow(`UPDATE summary_jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM summary_jobs
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after ASC, created_at ASC
			LIMIT 1
		)
		RETURNING `+summaryJobColumns, JobRunning, ts, JobPending, ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming summary job: %w", err)
	}
	return &job, nil
}

// FinishSummary marks a job completed. A job whose page was deleted is
// gone as well and reports ErrNotFound.
func (s *Store) FinishSummary(id string) error {
	res, err := s.db.Exec(`UPDATE summary_jobs SET status = ?, updated_at = ? WHERE id = ?`, JobCompleted, s.now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RetrySummary records a failed attempt. The job goes back to pending
// after 2^attempts seconds until its attempts run out, at which point it
// fails and exhausted is true. A job overtaken by a newer pending job for
// the same page is closed without being exhausted.
func (s *Store) RetrySummary(id, errMsg string) (exhausted bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning retry transaction: %w", err)
	}
	defer tx.Rollback()

	var pageID string
	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT page_id, attempts, max_attempts FROM summary_jobs WHERE id = ?`, id).
		Scan(&pageID, &attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}

	var newer int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM summary_jobs WHERE page_id = ? AND status = ? AND id != ?`,
		pageID, JobPending, id).Scan(&newer); err != nil {
		return false, err
	}

	attempts++
	now := s.clock().UTC()
	status, runAfter := JobPending, now.Add(time.Second<<attempts)
	switch {
	case newer > 0:
		status, runAfter = JobFailed, now
	case attempts >= maxAttempts:
		status, runAfter, exhausted = JobFailed, now, true
	}

	if _, err := tx.Exec(`UPDATE summary_jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		status, attempts, errMsg, runAfter.Format(timeFormat), now.Format(timeFormat), id); err != nil {
		return false, fmt.Errorf("recording failed attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return exhausted, nil
}

func (s *Store) GetSummaryJob(id string) (SummaryJob, error) {
	j, err := scanSummaryJob(s.db.QueryRow(`SELECT `+summaryJobColumns+` FROM summary_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return SummaryJob{}, ErrNotFound
	}
	return j, err
}
