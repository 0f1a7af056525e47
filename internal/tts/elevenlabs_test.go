package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsTextToSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("accept"))

		var body ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "[softly] Hello.", body.Text)
		assert.Equal(t, "eleven_v3", body.ModelID)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3-mp3-bytes")
	}))
	defer srv.Close()

	c := NewElevenLabs(ElevenLabsConfig{APIKey: "key", BaseURL: srv.URL + "/v1", HTTPClient: srv.Client()})
	audio, err := c.TextToSpeech(context.Background(), "voice-1", "[softly] Hello.")

	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-mp3-bytes"), audio)
}

func TestElevenLabsErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewElevenLabs(ElevenLabsConfig{}).TextToSpeech(context.Background(), "v", "hi")
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("missing voice", func(t *testing.T) {
		_, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k"}).TextToSpeech(context.Background(), "", "hi")
		assert.ErrorContains(t, err, "voice id is required")
	})

	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"detail":"voice not found"}`)
		}))
		defer srv.Close()

		c := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
		_, err := c.TextToSpeech(context.Background(), "v", "hi")
		assert.ErrorIs(t, err, ErrSynthesis)
		assert.ErrorContains(t, err, "422")
		assert.ErrorContains(t, err, "voice not found")
	})
}
