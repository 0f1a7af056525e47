// Package sqldb implements the repositories on database/sql.
// Queries use numbered placeholders that both pgx and SQLite accept.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"fateweaver/internal/model"
	"fateweaver/internal/repository"
)

// SessionSQL is a database/sql implementation of repository.SessionRepository.
// It uses parameterized queries and contains no business logic.
type SessionSQL struct {
	db *sql.DB
}

// NewSessionSQL creates a new SessionSQL repository.
func NewSessionSQL(db *sql.DB) *SessionSQL {
	return &SessionSQL{db: db}
}

var _ repository.SessionRepository = (*SessionSQL)(nil)

// CreateSession inserts a new session row and returns the stored record.
func (r *SessionSQL) CreateSession(ctx context.Context, s *model.Session) (*model.Session, error) {
	const q = `
		INSERT INTO sessions (id, title, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, title, created_at
	`
	var out model.Session
	if err := r.db.QueryRowContext(ctx, q, s.ID, s.Title, s.CreatedAt).
		Scan(&out.ID, &out.Title, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindSession fetches a single session by its ID.
func (r *SessionSQL) FindSession(ctx context.Context, id string) (*model.Session, error) {
	const q = `
		SELECT id, title, created_at
		FROM sessions
		WHERE id = $1
	`
	var s model.Session
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Title, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions using LIMIT/OFFSET pagination and a total count.
func (r *SessionSQL) ListSessions(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Session], error) {
	const qCount = `SELECT COUNT(*) FROM sessions`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, title, created_at
		FROM sessions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Session, 0)
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Session]{Items: items, Total: total}, nil
}

// DeleteSession removes the session's messages and then the session in one transaction.
func (r *SessionSQL) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AddMessages inserts the rows in one transaction.
func (r *SessionSQL) AddMessages(ctx context.Context, msgs []*model.Message) error {
	const q = `
		INSERT INTO messages (id, session_id, position, sender, text, location, audio_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, q,
			m.ID,
			m.SessionID,
			m.Position,
			m.Sender,
			m.Text,
			m.Location,
			m.AudioPath,
			m.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns the session history in position order.
func (r *SessionSQL) ListMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	const q = `
		SELECT id, session_id, position, sender, text, location, audio_path, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY position ASC
	`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&m.Position,
			&m.Sender,
			&m.Text,
			&m.Location,
			&m.AudioPath,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ClearMessages deletes a session's history.
func (r *SessionSQL) ClearMessages(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID)
	return err
}
