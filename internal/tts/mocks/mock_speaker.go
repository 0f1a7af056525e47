package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockSpeaker struct {
	mock.Mock
}

func (m *MockSpeaker) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	args := m.Called(ctx, voiceID, text)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}
