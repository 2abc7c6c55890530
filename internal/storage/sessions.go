package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxTitleRunes = 60

// CreateSession starts an empty conversation.
func (s *Store) CreateSession(title string) (Session, error) {
	ts := s.now()
	sess := Session{ID: uuid.New().String(), Title: title}
	if _, err := s.db.Exec(`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, ts, ts); err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}
	return s.GetSession(sess.ID)
}

const sessionColumns = `s.id, s.title, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt, &sess.TurnCount); err != nil {
		return Session{}, err
	}
	var err error
	if sess.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Session{}, err
	}
	if sess.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Store) GetSession(id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns sessions, most recently active first.
func (s *Store) ListSessions(limit, offset int) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions s
		ORDER BY s.updated_at DESC, s.rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sess)
	}
	return results, rows.Err()
}

// DeleteSession removes a session together with its turns.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
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

// AppendTurns adds turns to the end of a session. An untitled session takes
// its title from the first user turn.
func (s *Store) AppendTurns(sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRow(`SELECT title FROM sessions WHERE id = ?`, sessionID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	ts := s.now()
	for _, t := range turns {
		if _, err := tx.Exec(`INSERT INTO turns (session_id, role, content, provider, cached, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, t.Role, t.Content, t.Provider, t.Cached, ts); err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
		if title == "" && t.Role == "user" {
			title = sessionTitle(t.Content)
		}
	}

	if _, err := tx.Exec(`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, ts, sessionID); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return tx.Commit()
}

// RecentTurns returns up to limit of the latest turns in chronological order.
func (s *Store) RecentTurns(sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(`SELECT role, content, provider, cached, created_at FROM turns
		WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.Role, &t.Content, &t.Provider, &t.Cached, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func sessionTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if r := []rune(title); len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes-1]) + "…"
	}
	return title
}
