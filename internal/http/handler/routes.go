package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"fateweaver/internal/llm"
	"fateweaver/internal/logx"
	"fateweaver/internal/service"
	"fateweaver/internal/storage"
	"fateweaver/internal/world"
)

// Dependencies are the collaborators the routes need. Streamer may be nil.
type Dependencies struct {
	DB       *sql.DB
	Sessions service.SessionService
	World    *world.World
	Audio    storage.Storage
	Streamer llm.Streamer
	Gatherer prometheus.Gatherer
	Log      *logx.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Dependencies) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", Metrics(d.Gatherer))
	}

	sessions := app.Group("/sessions")
	sessions.Post("/", CreateSession(d.Sessions))
	sessions.Get("/", ListSessions(d.Sessions))
	sessions.Get("/:id", GetSession(d.Sessions))
	sessions.Delete("/:id", DeleteSession(d.Sessions))
	sessions.Get("/:id/messages", ListMessages(d.Sessions))
	sessions.Post("/:id/messages", SendMessage(d.Sessions))
	sessions.Delete("/:id/messages", ClearMessages(d.Sessions))

	app.Get("/world/characters", ListCharacters(d.World))
	app.Get("/world/locations", ListLocations(d.World))

	app.Get("/audio/*", GetAudio(d.Audio))
	app.Post("/chat/stream", ChatStream(d.Streamer, d.Log))
	app.Post("/recipes/check", CheckRecipe())
}
