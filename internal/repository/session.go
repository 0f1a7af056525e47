package repository

import (
	"context"

	"fateweaver/internal/model"
)

// SessionRepository defines data access for sessions and their messages using SQL queries only.
// No business logic here, only persistence operations.
type SessionRepository interface {
	// CreateSession inserts a new session record and returns the stored row.
	CreateSession(ctx context.Context, s *model.Session) (*model.Session, error)

	// FindSession returns a session by its ID. A missing row yields sql.ErrNoRows.
	FindSession(ctx context.Context, id string) (*model.Session, error)

	// ListSessions returns a paginated list of sessions, newest first, and the total count.
	ListSessions(ctx context.Context, pq PageQuery) (*PageResult[model.Session], error)

	// DeleteSession removes a session and its messages. It returns nil if the row did not exist.
	DeleteSession(ctx context.Context, id string) error

	// AddMessages appends messages in one transaction: either all are stored or none.
	// The caller assigns Position.
	AddMessages(ctx context.Context, msgs []*model.Message) error

	// ListMessages returns every message of a session ordered by position.
	ListMessages(ctx context.Context, sessionID string) ([]model.Message, error)

	// ClearMessages deletes every message of a session, keeping the session itself.
	ClearMessages(ctx context.Context, sessionID string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
