package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockStreamer struct {
	mock.Mock
}

// Stream replays the deltas given as the first return value.
func (m *MockStreamer) Stream(ctx context.Context, prompt string, fn func(delta string) error) error {
	args := m.Called(ctx, prompt)
	if deltas, ok := args.Get(0).([]string); ok {
		for _, d := range deltas {
			if err := fn(d); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}
