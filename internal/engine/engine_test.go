package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	llmmocks "fateweaver/internal/llm/mocks"
	"fateweaver/internal/logx"
	"fateweaver/internal/model"
	"fateweaver/internal/tts"
	"fateweaver/internal/world"
)

type fakeVoice struct {
	err     error
	calls   int
	speaker string
}

func (f *fakeVoice) SynthesizeLine(_ context.Context, speaker, text string) (*tts.Audio, error) {
	f.calls++
	f.speaker = speaker
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Audio{Key: tts.ObjectKey(speaker, "v", text), ContentType: tts.ContentType, Data: []byte("mp3")}, nil
}

func (f *fakeVoice) URL(_ context.Context, key string) (string, error) {
	return "/" + key, nil
}

func testWorld() *world.World {
	return world.New([]world.Character{
		{Name: "Elda", Personality: "warm", Background: "innkeeper"},
	}, world.Setting{Locations: []world.Location{{ID: "tavern"}}})
}

func newEngine(t *testing.T, gen *llmmocks.MockGenerator, voice Voice) (*Engine, *Metrics) {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return New(testWorld(), gen, voice, Options{}, m, logx.Nop()), m
}

func TestGenerateTurn(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	voice := &fakeVoice{}
	e, m := newEngine(t, gen, voice)

	history := []model.Message{
		{Sender: model.SenderUser, Text: "I walk in."},
		{Sender: "Elda", Text: "Welcome, traveler."},
	}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "User: I walk in.\nAssistant: Welcome, traveler.\nUser: A pint, please.\n\nWORLD DATA") &&
			strings.Contains(p, "- Elda: warm | innkeeper") &&
			strings.Contains(p, "Known locations: tavern") &&
			strings.HasSuffix(p, "User: A pint, please.")
	})).Return(`{"speaker":"Elda","text":"[warmly] Coming right up.","location":"tavern"}`, nil)

	turn, err := e.GenerateTurn(context.Background(), "  A pint, please. ", history)

	require.NoError(t, err)
	assert.Equal(t, "Elda", turn.Speaker)
	assert.Equal(t, "[warmly] Coming right up.", turn.Text)
	assert.Equal(t, "tavern", turn.Location)
	assert.Equal(t, "Elda: [warmly] Coming right up.", turn.DisplayLine)
	assert.Equal(t, "data:audio/mpeg;base64,bXAz", turn.AudioSrcBase64)
	assert.True(t, strings.HasPrefix(turn.AudioPath, "audio/elda-"))
	assert.Equal(t, "/"+turn.AudioPath, turn.AudioURL)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.turns.WithLabelValues("ok")))
	gen.AssertExpectations(t)
}

func TestGenerateTurn_UnknownSpeakerBecomesNarrator(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	voice := &fakeVoice{}
	e, _ := newEngine(t, gen, voice)
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{"speaker":"Gandalf","text":"You shall not pass."}`, nil)

	turn, err := e.GenerateTurn(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, model.SenderNarrator, turn.Speaker)
	assert.Equal(t, "Narrator: You shall not pass.", turn.DisplayLine)
	assert.Equal(t, model.SenderNarrator, voice.speaker)
}

func TestGenerateTurn_UnparsedReplyIsNarration(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	e, m := newEngine(t, gen, nil)
	gen.On("Generate", mock.Anything, mock.Anything).Return("The wind howls outside.", nil)

	turn, err := e.GenerateTurn(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, model.SenderNarrator, turn.Speaker)
	assert.Equal(t, "The wind howls outside.", turn.Text)
	assert.Empty(t, turn.AudioPath)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.turns.WithLabelValues("unparsed")))
}

func TestGenerateTurn_TTSFailureIsNotFatal(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	voice := &fakeVoice{err: tts.ErrSynthesis}
	e, m := newEngine(t, gen, voice)
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{"speaker":"Elda","text":"Hm."}`, nil)

	turn, err := e.GenerateTurn(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, "Hm.", turn.Text)
	assert.Empty(t, turn.AudioSrcBase64)
	assert.Empty(t, turn.AudioPath)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ttsFailures))
}

func TestGenerateTurn_EmptyTextSkipsAudio(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	voice := &fakeVoice{}
	e, _ := newEngine(t, gen, voice)
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{"speaker":"Elda"}`, nil)

	turn, err := e.GenerateTurn(context.Background(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, "Elda: ", turn.DisplayLine)
	assert.Zero(t, voice.calls)
}

func TestGenerateTurn_Errors(t *testing.T) {
	t.Run("empty message", func(t *testing.T) {
		gen := new(llmmocks.MockGenerator)
		e, _ := newEngine(t, gen, nil)
		_, err := e.GenerateTurn(context.Background(), "   ", nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("model failure", func(t *testing.T) {
		gen := new(llmmocks.MockGenerator)
		e, m := newEngine(t, gen, nil)
		gen.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("upstream down"))

		_, err := e.GenerateTurn(context.Background(), "hi", nil)
		assert.EqualError(t, err, "upstream down")
		assert.Equal(t, float64(1), testutil.ToFloat64(m.turns.WithLabelValues("llm_error")))
	})
}

func TestGenerateTurn_RateLimited(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{"speaker":"Narrator","text":"ok"}`, nil)
	e := New(testWorld(), gen, nil, Options{RatePerMinute: 1}, nil, logx.Nop())

	_, err := e.GenerateTurn(context.Background(), "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.GenerateTurn(ctx, "second", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Reply
		parsed bool
	}{
		{"plain json", `{"speaker":"Elda","text":"Hi","location":"tavern"}`, Reply{"Elda", "Hi", "tavern"}, true},
		{"fenced json", "```json\n{\"speaker\":\"Elda\",\"text\":\"Hi\"}\n```", Reply{Speaker: "Elda", Text: "Hi"}, true},
		{"missing speaker", `{"text":"Rain falls."}`, Reply{Speaker: "Narrator", Text: "Rain falls."}, true},
		{"prose", "  Rain falls.  ", Reply{Speaker: "Narrator", Text: "Rain falls."}, false},
		{"json array", `["Elda"]`, Reply{Speaker: "Narrator", Text: `["Elda"]`}, false},
		{"json null", "null", Reply{Speaker: "Narrator", Text: "null"}, false},
		{"fenced null", "```json\nnull\n```", Reply{Speaker: "Narrator", Text: "```json\nnull\n```"}, false},
		{"keys are case sensitive", `{"Speaker":"Elda","Text":"Hi"}`, Reply{Speaker: "Narrator"}, true},
		{"null fields", `{"speaker":null,"text":"Hi","location":null}`, Reply{Speaker: "Narrator", Text: "Hi"}, true},
		{"non-string text", `{"speaker":"Elda","text":42}`, Reply{Speaker: "Narrator", Text: `{"speaker":"Elda","text":42}`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReply(tt.raw)
			assert.Equal(t, tt.parsed, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateTurn_WindowIncludesCurrentMessage(t *testing.T) {
	gen := new(llmmocks.MockGenerator)
	e, _ := newEngine(t, gen, nil)

	history := make([]model.Message, 0, 20)
	for i := 0; i < 20; i++ {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = "Elda"
		}
		history = append(history, model.Message{Position: i, Sender: sender, Text: fmt.Sprintf("m%d", i)})
	}
	var prompt string
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(`{"speaker":"Narrator","text":"ok"}`, nil)

	_, err := e.GenerateTurn(context.Background(), "now", history)
	require.NoError(t, err)

	assert.NotContains(t, prompt, "User: m0\n", "oldest message falls out of the window")
	assert.Contains(t, prompt, "Assistant: m1\n")
	assert.Contains(t, prompt, "Assistant: m19\nUser: now\n\nWORLD DATA")
	assert.True(t, strings.HasSuffix(prompt, "User: now"))
	assert.Len(t, history, 20, "caller's slice is not extended")
}
