// Package tts turns dialogue lines into cached MP3 audio using ElevenLabs.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrMissingAPIKey is returned when no ElevenLabs key is configured.
	ErrMissingAPIKey = errors.New("missing ELEVEN_API_KEY")
	// ErrSynthesis is returned when ElevenLabs rejects a request.
	ErrSynthesis = errors.New("tts failed")
)

const (
	defaultElevenBaseURL = "https://api.elevenlabs.io/v1"
	defaultElevenModel   = "eleven_v3"
)

// Speaker synthesizes one line of text with a given voice.
type Speaker interface {
	TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error)
}

// ElevenLabsConfig configures the ElevenLabs client.
type ElevenLabsConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// ElevenLabs is a minimal text-to-speech client.
type ElevenLabs struct {
	cfg ElevenLabsConfig
}

var _ Speaker = (*ElevenLabs)(nil)

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultElevenBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultElevenModel
	}
	return &ElevenLabs{cfg: cfg}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// TextToSpeech returns MP3 bytes for text spoken by voiceID.
func (c *ElevenLabs) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("voice id is required")
	}

	body, err := json.Marshal(ttsRequest{Text: text, ModelID: c.cfg.Model})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("accept", "audio/mpeg")
	req.Header.Set("content-type", "application/json")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %d %s", ErrSynthesis, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	return audio, nil
}
