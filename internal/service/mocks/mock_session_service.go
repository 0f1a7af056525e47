package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fateweaver/internal/model"
	"fateweaver/internal/service"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, title string) (*model.Session, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionService) List(ctx context.Context, limit, offset int) (*service.SessionListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SessionListResult), args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionService) History(ctx context.Context, id string) ([]model.Message, error) {
	args := m.Called(ctx, id)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *MockSessionService) Send(ctx context.Context, id, message string) (*model.Turn, error) {
	args := m.Called(ctx, id, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Turn), args.Error(1)
}

func (m *MockSessionService) Clear(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
