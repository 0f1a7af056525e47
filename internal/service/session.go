package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fateweaver/internal/model"
	"fateweaver/internal/repository"
)

var (
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("session not found")
	ErrEmptyMessage = errors.New("message is required")
)

// DefaultTitle names sessions created without a title.
const DefaultTitle = "New adventure"

// SessionListResult is the service-level DTO for paginated sessions.
type SessionListResult struct {
	Items []model.Session `json:"data"`
	Total int             `json:"total"`
}

// TurnGenerator produces the reply to a player message.
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, userMessage string, history []model.Message) (*model.Turn, error)
}

// SessionService defines the use cases for chat sessions.
type SessionService interface {
	// Create starts an empty session.
	Create(ctx context.Context, title string) (*model.Session, error)

	// List returns sessions using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*SessionListResult, error)

	// Get returns a single session by its ID.
	Get(ctx context.Context, id string) (*model.Session, error)

	// History returns the session's messages in order.
	History(ctx context.Context, id string) ([]model.Message, error)

	// Send generates the reply to message and records both lines.
	// Nothing is stored when generation fails.
	Send(ctx context.Context, id, message string) (*model.Turn, error)

	// Clear removes every message but keeps the session.
	Clear(ctx context.Context, id string) error

	// Delete removes the session and its messages.
	Delete(ctx context.Context, id string) error
}

type sessionService struct {
	repo  repository.SessionRepository
	turns TurnGenerator
	locks sync.Map
	now   func() time.Time
}

// NewSessionService constructs a new SessionService.
func NewSessionService(repo repository.SessionRepository, turns TurnGenerator) SessionService {
	return &sessionService{repo: repo, turns: turns, now: func() time.Time { return time.Now().UTC() }}
}

// lock serializes Send and Clear per session so positions stay contiguous.
func (s *sessionService) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *sessionService) Create(ctx context.Context, title string) (*model.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	return s.repo.CreateSession(ctx, &model.Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: s.now(),
	})
}

func (s *sessionService) List(ctx context.Context, limit, offset int) (*SessionListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.ListSessions(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &SessionListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	sess, err := s.repo.FindSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *sessionService) History(ctx context.Context, id string) ([]model.Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, id)
}

func (s *sessionService) Send(ctx context.Context, id, message string) (*model.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()
	// A Delete may have run while this call waited for the lock.
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turn, err := s.turns.GenerateTurn(ctx, message, history)
	if err != nil {
		return nil, err
	}

	next := len(history)
	if n := len(history); n > 0 {
		next = history[n-1].Position + 1
	}
	now := s.now()
	lines := []*model.Message{
		{ID: uuid.New().String(), SessionID: id, Position: next, Sender: model.SenderUser, Text: message, CreatedAt: now},
		{
			ID:        uuid.New().String(),
			SessionID: id,
			Position:  next + 1,
			Sender:    turn.Speaker,
			Text:      turn.Text,
			Location:  turn.Location,
			AudioPath: turn.AudioPath,
			CreatedAt: now,
		},
	}
	if err := s.repo.AddMessages(ctx, lines); err != nil {
		return nil, fmt.Errorf("save messages: %w", err)
	}
	return turn, nil
}

func (s *sessionService) Clear(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.ClearMessages(ctx, id)
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.locks.Delete(id)
	return nil
}
