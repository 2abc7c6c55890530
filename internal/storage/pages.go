package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SavePage records a visit to url. A URL already in history is reset to
// pending and keeps its id.
func (s *Store) SavePage(url, title, summaryLength string) (Page, error) {
	if summaryLength == "" {
		summaryLength = "medium"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Page{}, fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	ts := s.now()
	var id string
	err = tx.QueryRow(`SELECT id FROM pages WHERE url = ?`, url).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		_, err = tx.Exec(`INSERT INTO pages (id, url, title, summary_length, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, id, url, title, summaryLength, PageStatusPending, ts, ts)
	case err == nil:
		_, err = tx.Exec(`UPDATE pages SET title = CASE WHEN ? = '' THEN title ELSE ? END,
			summary_length = ?, status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
			title, title, summaryLength, PageStatusPending, ts, id)
	}
	if err != nil {
		return Page{}, fmt.Errorf("saving page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Page{}, fmt.Errorf("committing page: %w", err)
	}
	return s.GetPage(id)
}

const pageColumns = `id, url, title, content, summary, summary_length, status, last_error, created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (Page, error) {
	var p Page
	var createdAt, updatedAt string
	var lastError sql.NullString
	if err := row.Scan(&p.ID, &p.URL, &p.Title, &p.Content, &p.Summary, &p.SummaryLength, &p.Status, &lastError, &createdAt, &updatedAt); err != nil {
		return Page{}, err
	}
	p.LastError = lastError.String
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Page{}, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Page{}, err
	}
	return p, nil
}

func (s *Store) GetPage(id string) (Page, error) {
	p, err := scanPage(s.db.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	return p, err
}

// ListPages returns browsing history, most recent first.
func (s *Store) ListPages(limit, offset int) ([]Page, error) {
	rows, err := s.db.Query(`SELECT `+pageColumns+` FROM pages
		ORDER BY updated_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// UpdatePageSummary stores the fetched text and its summary.
func (s *Store) UpdatePageSummary(id, title, content, summary string) error {
	return s.updatePage(`UPDATE pages SET title = CASE WHEN ? = '' THEN title ELSE ? END,
		content = ?, summary = ?, status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		title, title, content, summary, PageStatusSummarized, s.now(), id)
}

// MarkPageFailed records a summarization failure.
func (s *Store) MarkPageFailed(id, errMsg string) error {
	return s.updatePage(`UPDATE pages SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		PageStatusFailed, errMsg, s.now(), id)
}

func (s *Store) DeletePage(id string) error {
	return s.updatePage(`DELETE FROM pages WHERE id = ?`, id)
}

func (s *Store) updatePage(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
