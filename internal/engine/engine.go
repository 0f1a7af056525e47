// Package engine turns a player message into the next line of the story.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"fateweaver/internal/llm"
	"fateweaver/internal/logx"
	"fateweaver/internal/model"
	"fateweaver/internal/prompt"
	"fateweaver/internal/tts"
	"fateweaver/internal/world"
)

var tracer = otel.Tracer("fateweaver/internal/engine")

var (
	// ErrEmptyMessage is returned when the player sends only whitespace.
	ErrEmptyMessage = errors.New("message is required")
	// ErrRateLimited is returned when the model quota could not be acquired before the deadline.
	ErrRateLimited = errors.New("model rate limit exceeded")
)

// Voice synthesizes audio for a finished line.
type Voice interface {
	SynthesizeLine(ctx context.Context, speaker, text string) (*tts.Audio, error)
	URL(ctx context.Context, key string) (string, error)
}

// Options tunes the engine. Zero values pick defaults.
type Options struct {
	// HistoryWindow is how many past messages the prompt replays.
	HistoryWindow int
	// RatePerMinute caps model calls; zero or less means unlimited.
	RatePerMinute int
	// RequestTimeout bounds each model call.
	RequestTimeout time.Duration
}

// Engine produces turns. It is safe for concurrent use.
type Engine struct {
	world   *world.World
	gen     llm.Generator
	voice   Voice
	limiter *rate.Limiter
	window  int
	timeout time.Duration
	metrics *Metrics
	log     *logx.Logger
}

// New builds an Engine. voice may be nil, in which case turns carry no audio.
func New(w *world.World, gen llm.Generator, voice Voice, opts Options, metrics *Metrics, log *logx.Logger) *Engine {
	window := opts.HistoryWindow
	if window <= 0 {
		window = prompt.DefaultWindow
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), opts.RatePerMinute)
	}
	return &Engine{
		world:   w,
		gen:     gen,
		voice:   voice,
		limiter: limiter,
		window:  window,
		timeout: opts.RequestTimeout,
		metrics: metrics,
		log:     log.With("engine"),
	}
}

// Reply is the structured line the model is asked to return.
type Reply struct {
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	Location string `json:"location"`
}

// GenerateTurn asks the model for the next line given the stored history, which must not yet
// contain userMessage, then voices it. Speech failures are logged and leave the audio fields empty.
func (e *Engine) GenerateTurn(ctx context.Context, userMessage string, history []model.Message) (*model.Turn, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := tracer.Start(ctx, "engine.GenerateTurn",
		trace.WithAttributes(attribute.Int("history.length", len(history))))
	defer span.End()

	// The player's line is part of the replayed window as well as the final prompt line.
	window := append(history[:len(history):len(history)], model.Message{Sender: model.SenderUser, Text: userMessage})
	p := prompt.Build(prompt.Input{
		History:     window,
		Window:      e.window,
		Briefs:      e.world.Briefs(world.MaxBriefs),
		LocationIDs: e.world.LocationIDs(),
		Speakers:    e.world.Speakers(),
		UserMessage: userMessage,
	})

	raw, err := e.generate(ctx, p)
	if err != nil {
		e.metrics.turn("llm_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		e.log.Error("turn_generate", err, map[string]any{"history": len(history), "request_id": logx.RequestID(ctx)})
		return nil, err
	}

	r, parsed := ParseReply(raw)
	if !e.world.IsSpeaker(r.Speaker) {
		r.Speaker = model.SenderNarrator
	}
	turn := &model.Turn{
		Speaker:     r.Speaker,
		Text:        r.Text,
		Location:    r.Location,
		DisplayLine: r.Speaker + ": " + r.Text,
	}

	outcome := "ok"
	if !parsed {
		outcome = "unparsed"
	}
	if turn.Text != "" && e.voice != nil {
		e.attachAudio(ctx, turn)
	}
	e.metrics.turn(outcome)
	span.SetAttributes(
		attribute.String("turn.speaker", turn.Speaker),
		attribute.String("turn.outcome", outcome),
		attribute.Bool("turn.audio", turn.AudioPath != ""),
	)
	e.log.Info("turn_generate", map[string]any{
		"speaker":    turn.Speaker,
		"parsed":     parsed,
		"has_audio":  turn.AudioPath != "",
		"request_id": logx.RequestID(ctx),
	})
	return turn, nil
}

func (e *Engine) generate(ctx context.Context, p string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := e.gen.Generate(ctx, p)
	e.metrics.observeLLM(time.Since(start).Seconds())
	return raw, err
}

func (e *Engine) attachAudio(ctx context.Context, turn *model.Turn) {
	audio, err := e.voice.SynthesizeLine(ctx, turn.Speaker, turn.Text)
	if err != nil {
		e.metrics.ttsFailed()
		e.log.Warn("tts_failed", err, map[string]any{"speaker": turn.Speaker, "request_id": logx.RequestID(ctx)})
		return
	}
	turn.AudioPath = audio.Key
	turn.AudioSrcBase64 = audio.DataURI()
	if u, err := e.voice.URL(ctx, audio.Key); err == nil {
		turn.AudioURL = u
	}
}

// ParseReply decodes the model's {speaker, text, location} JSON, tolerating a markdown fence.
// Keys match exactly. When raw is not such an object, including JSON null or a field
// that is not a string, the whole reply becomes narration and ok is false.
func ParseReply(raw string) (r Reply, ok bool) {
	raw = strings.TrimSpace(raw)
	fallback := Reply{Speaker: model.SenderNarrator, Text: raw}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFence(raw)), &fields); err != nil || fields == nil {
		return fallback, false
	}
	for key, dst := range map[string]*string{"speaker": &r.Speaker, "text": &r.Text, "location": &r.Location} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fallback, false
		}
	}
	if r.Speaker == "" {
		r.Speaker = model.SenderNarrator
	}
	return r, true
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
