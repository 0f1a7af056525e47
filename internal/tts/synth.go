package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"fateweaver/internal/logx"
	"fateweaver/internal/storage"
	"fateweaver/internal/world"
)

const (
	// ContentType is the MIME type of every synthesized clip.
	ContentType = "audio/mpeg"
	presignExpiry = time.Hour
)

var (
	// ErrNoVoice is returned when the speaker has no voice and no default is configured.
	ErrNoVoice = errors.New("no voice available")
	// ErrEmptyText is returned for blank lines.
	ErrEmptyText = errors.New("text is required")
)

// VoiceBook stores voice assignments per character.
type VoiceBook interface {
	VoiceFor(name string) string
	SetVoice(name, voiceID string) error
}

// Audio is a synthesized (or cached) clip.
type Audio struct {
	Key         string
	ContentType string
	Data        []byte
	Cached      bool
}

// DataURI renders the clip as an inline data URI.
func (a *Audio) DataURI() string {
	return "data:" + ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Synthesizer resolves voices, calls the speech API and caches clips in object storage.
type Synthesizer struct {
	api          Speaker
	store        storage.Storage
	voices       VoiceBook
	defaultVoice string
	log          *logx.Logger
}

func NewSynthesizer(api Speaker, store storage.Storage, voices VoiceBook, defaultVoice string, log *logx.Logger) *Synthesizer {
	return &Synthesizer{
		api:          api,
		store:        store,
		voices:       voices,
		defaultVoice: strings.TrimSpace(defaultVoice),
		log:          log.With("tts"),
	}
}

// SafeFilename lowercases s, turns spaces into dashes and keeps only letters, digits, '-' and '_'.
func SafeFilename(s string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(strings.ToLower(s), " ", "-") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CacheKey is the first 12 hex characters of sha256(voiceID + "||" + text).
func CacheKey(text, voiceID string) string {
	sum := sha256.Sum256([]byte(voiceID + "||" + text))
	return hex.EncodeToString(sum[:])[:12]
}

// ObjectKey is the storage key for a line spoken by name.
func ObjectKey(name, voiceID, text string) string {
	part := SafeFilename(name)
	if part == "" {
		part = "character"
	}
	return "audio/" + part + "-" + CacheKey(text, voiceID) + ".mp3"
}

// EnsureVoice returns the speaker's voice, assigning the default voice when none is set.
func (s *Synthesizer) EnsureVoice(name string) (string, error) {
	if s.voices != nil {
		if v := s.voices.VoiceFor(name); v != "" {
			return v, nil
		}
	}
	if s.defaultVoice == "" {
		return "", fmt.Errorf("%w for %q", ErrNoVoice, name)
	}
	if s.voices != nil {
		err := s.voices.SetVoice(name, s.defaultVoice)
		if err != nil && !errors.Is(err, world.ErrUnknownCharacter) {
			s.log.Warn("voice_assign_failed", err, map[string]any{"character": name})
		}
	}
	return s.defaultVoice, nil
}

// SynthesizeLine returns audio for text spoken by speaker, reusing the cached clip when present.
func (s *Synthesizer) SynthesizeLine(ctx context.Context, speaker, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	voice, err := s.EnsureVoice(speaker)
	if err != nil {
		return nil, err
	}
	key := ObjectKey(speaker, voice, text)

	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check audio cache: %w", err)
	}
	if ok {
		data, err := s.read(ctx, key)
		if err == nil {
			return &Audio{Key: key, ContentType: ContentType, Data: data, Cached: true}, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return nil, err
		}
	}

	data, err := s.api.TextToSpeech(ctx, voice, text)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: ContentType,
		Metadata:    map[string]string{"speaker": speaker, "voice": voice},
	}); err != nil {
		return nil, fmt.Errorf("cache audio: %w", err)
	}
	s.log.Info("audio_synthesized", map[string]any{"key": key, "bytes": len(data)})
	return &Audio{Key: key, ContentType: ContentType, Data: data}, nil
}

func (s *Synthesizer) read(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// URL returns a download link for key: a presigned URL when the backend supports it,
// otherwise the key as a path on the API, which serves /audio/* from storage.
func (s *Synthesizer) URL(ctx context.Context, key string) (string, error) {
	u, err := s.store.PresignGet(ctx, key, presignExpiry)
	if errors.Is(err, storage.ErrPresignUnsupported) {
		return "/" + key, nil
	}
	return u, err
}
