package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fateweaver/internal/engine"
	"fateweaver/internal/llm"
	llmMocks "fateweaver/internal/llm/mocks"
	"fateweaver/internal/logx"
	"fateweaver/internal/model"
	"fateweaver/internal/service"
	serviceMocks "fateweaver/internal/service/mocks"
	"fateweaver/internal/storage"
	storeMocks "fateweaver/internal/storage/mocks"
	"fateweaver/internal/world"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "fateweaver_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	app := fiber.New()
	app.Get("/metrics", Metrics(reg))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fateweaver_test_total 1")
}

func TestCreateSession(t *testing.T) {
	mockSvc := new(serviceMocks.MockSessionService)
	app := fiber.New()
	app.Post("/sessions", CreateSession(mockSvc))

	t.Run("with title", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, "Harbor night").Return(&model.Session{ID: "s1", Title: "Harbor night"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"title":"Harbor night"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var s model.Session
		json.NewDecoder(resp.Body).Decode(&s)
		assert.Equal(t, "s1", s.ID)
	})

	t.Run("empty body", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, "").Return(&model.Session{ID: "s2"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/sessions", nil))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"title":`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
	mockSvc.AssertExpectations(t)
}

func TestListSessions(t *testing.T) {
	mockSvc := new(serviceMocks.MockSessionService)
	app := fiber.New()
	app.Get("/sessions", ListSessions(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 5, 10).
			Return(&service.SessionListResult{Items: []model.Session{{ID: "a"}}, Total: 11}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions?limit=5&offset=10", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var res service.SessionListResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, 11, res.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid offset", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions?offset=x", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})
}

func TestGetSession(t *testing.T) {
	mockSvc := new(serviceMocks.MockSessionService)
	app := fiber.New()
	app.Get("/sessions/:id", GetSession(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(&model.Session{ID: id}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})
	mockSvc.AssertExpectations(t)
}

func TestSendMessage(t *testing.T) {
	mockSvc := new(serviceMocks.MockSessionService)
	app := fiber.New()
	app.Post("/sessions/:id/messages", SendMessage(mockSvc))
	id := uuid.New().String()

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req, -1)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		turn := &model.Turn{
			Speaker:        "Elda",
			Text:           "[warmly] Welcome.",
			DisplayLine:    "Elda: [warmly] Welcome.",
			AudioSrcBase64: "data:audio/mpeg;base64,bXAz",
			AudioPath:      "audio/elda-abc.mp3",
		}
		mockSvc.On("Send", mock.Anything, id, "hello").Return(turn, nil).Once()

		resp := post(`{"message":"hello"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got map[string]any
		json.NewDecoder(resp.Body).Decode(&got)
		assert.Equal(t, "Elda: [warmly] Welcome.", got["display_line"])
		assert.Equal(t, "data:audio/mpeg;base64,bXAz", got["audio_src_base64"])
	})

	tests := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{"empty message", service.ErrEmptyMessage, http.StatusBadRequest, "EMPTY_MESSAGE"},
		{"rate limited", engine.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"no model", llm.ErrNotConfigured, http.StatusServiceUnavailable, "LLM_NOT_CONFIGURED"},
		{"upstream", &llm.StatusError{Provider: "gemini", Status: 500}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc.On("Send", mock.Anything, id, "x").Return(nil, tt.err).Once()

			resp := post(`{"message":"x"}`)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
		})
	}
	mockSvc.AssertExpectations(t)
}

func TestHistoryClearDelete(t *testing.T) {
	mockSvc := new(serviceMocks.MockSessionService)
	app := fiber.New()
	app.Get("/sessions/:id/messages", ListMessages(mockSvc))
	app.Delete("/sessions/:id/messages", ClearMessages(mockSvc))
	app.Delete("/sessions/:id", DeleteSession(mockSvc))
	id := uuid.New().String()

	mockSvc.On("History", mock.Anything, id).Return([]model.Message{{Sender: "You", Text: "hi"}}, nil).Once()
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/messages", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		Data []model.Message `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&hist)
	assert.Len(t, hist.Data, 1)

	mockSvc.On("Clear", mock.Anything, id).Return(nil).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+id+"/messages", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	mockSvc.On("Delete", mock.Anything, id).Return(service.ErrNotFound).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestWorldHandlers(t *testing.T) {
	w := world.New(
		[]world.Character{{Name: "Elda", Personality: "warm"}},
		world.Setting{Name: "Harrowmere", Locations: []world.Location{{ID: "harbor", Sublocations: []world.Location{{ID: "docks"}}}}},
	)
	app := fiber.New()
	app.Get("/world/characters", ListCharacters(w))
	app.Get("/world/locations", ListLocations(w))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/world/characters", nil))
	var chars struct {
		Data     []world.Character `json:"data"`
		Speakers []string          `json:"speakers"`
	}
	json.NewDecoder(resp.Body).Decode(&chars)
	assert.Equal(t, "Elda", chars.Data[0].Name)
	assert.Equal(t, []string{"Elda", "Narrator"}, chars.Speakers)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/world/locations", nil))
	var locs struct {
		IDs []string `json:"ids"`
	}
	json.NewDecoder(resp.Body).Decode(&locs)
	assert.Equal(t, []string{"harbor", "docks"}, locs.IDs)
}

func TestGetAudio(t *testing.T) {
	mockStore := new(storeMocks.MockStorage)
	app := fiber.New()
	app.Get("/audio/*", GetAudio(mockStore))

	t.Run("streams object", func(t *testing.T) {
		mockStore.On("Get", mock.Anything, "audio/elda-abc.mp3").
			Return(io.NopCloser(strings.NewReader("ID3")), storage.ObjectInfo{Size: 3, ContentType: "audio/mpeg", ETag: "e1"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/audio/elda-abc.mp3", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "ID3", string(body))
	})

	t.Run("missing", func(t *testing.T) {
		mockStore.On("Get", mock.Anything, "audio/nope.mp3").
			Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/audio/nope.mp3", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	mockStore.AssertExpectations(t)
}

func TestChatStream(t *testing.T) {
	t.Run("relays deltas", func(t *testing.T) {
		streamer := new(llmMocks.MockStreamer)
		streamer.On("Stream", mock.Anything, "ring the bell").Return([]string{"The bells ", "toll."}, nil)
		app := fiber.New()
		app.Post("/chat/stream", ChatStream(streamer, logx.Nop()))

		req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"ring the bell"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t,
			"data: {\"text\":\"The bells \"}\n\ndata: {\"text\":\"toll.\"}\n\nevent: done\ndata: {}\n\n",
			string(body))
	})

	t.Run("upstream failure ends with error event", func(t *testing.T) {
		streamer := new(llmMocks.MockStreamer)
		streamer.On("Stream", mock.Anything, "x").Return([]string{"partial"}, errors.New("reset"))
		app := fiber.New()
		app.Post("/chat/stream", ChatStream(streamer, logx.Nop()))

		req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req, -1)

		body, _ := io.ReadAll(resp.Body)
		assert.True(t, strings.HasSuffix(string(body), "event: error\ndata: \"stream interrupted\"\n\n"))
	})

	t.Run("not configured", func(t *testing.T) {
		app := fiber.New()
		app.Post("/chat/stream", ChatStream(nil, logx.Nop()))

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/chat/stream", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "LLM_NOT_CONFIGURED", decodeError(t, resp).Error.Code)
	})
}

func TestCheckRecipe(t *testing.T) {
	app := fiber.New()
	app.Post("/recipes/check", CheckRecipe())

	src := "FROM python:3.11-slim\nCOPY #add depenedencies\nENV PORT=3000\nEXPOSE 9000\nCMD [\"npm\", \"start\"]\n"
	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/recipes/check?name=B", strings.NewReader(src)))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		OK       bool `json:"ok"`
		Findings []struct {
			Rule string `json:"rule"`
			Line int    `json:"line"`
		} `json:"findings"`
		Recipe struct {
			Path string `json:"path"`
		} `json:"recipe"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res.OK)
	assert.Equal(t, "B", res.Recipe.Path)
	require.Len(t, res.Findings, 3)
	assert.Equal(t, "copy-malformed", res.Findings[0].Rule)
	assert.Equal(t, "port-mismatch", res.Findings[1].Rule)
	assert.Equal(t, "runtime-mismatch", res.Findings[2].Rule)
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})
	RegisterRoutes(app, Dependencies{Sessions: new(serviceMocks.MockSessionService), Log: logx.Nop()})

	t.Run("not found route", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/health", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})
}
