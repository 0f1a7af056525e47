package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"fateweaver/docs"
	"fateweaver/internal/config"
	"fateweaver/internal/database"
	"fateweaver/internal/database/migration"
	"fateweaver/internal/engine"
	handlers "fateweaver/internal/http/handler"
	"fateweaver/internal/http/middleware"
	"fateweaver/internal/llm"
	"fateweaver/internal/logx"
	"fateweaver/internal/otel"
	"fateweaver/internal/repository/sqldb"
	"fateweaver/internal/service"
	"fateweaver/internal/storage"
	"fateweaver/internal/tts"
	"fateweaver/internal/world"
)

// @title Fate Weaver API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logx.New(os.Stdout, cfg.Location(), "api")
	ctx := context.Background()

	shutdownTracing, err := otel.Init(ctx, otel.ConfigFromEnv(), logger)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	db, dialect, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	dbHost := cfg.Database.Host
	if dialect == database.SQLite {
		dbHost = cfg.Database.Path
	}
	if err := migration.EnsureMigrated(ctx, db, dialect, logger, dbHost); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Audio cache: local directory or S3-compatible bucket
	objStore, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	w, err := world.Load(cfg.World.CharactersPath, cfg.World.SettingPath)
	if err != nil {
		log.Fatalf("failed to load world: %v", err)
	}

	httpClient := otel.NewHTTPClient(cfg.Engine.RequestTimeout)
	gen := llm.NewGeminiAdapter(llm.GeminiConfig{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		BaseURL:    cfg.Gemini.BaseURL,
		HTTPClient: httpClient,
	})

	// Left as a nil interface when Snowflake is not configured so the handler reports 503.
	var streamer llm.Streamer
	if cfg.Snowflake.Host != "" {
		// Streams are bounded by the handler's context, not a client timeout.
		streamer = llm.NewCortexAdapter(llm.CortexConfig{
			Host:       cfg.Snowflake.Host,
			Token:      cfg.Snowflake.Token,
			Model:      cfg.Snowflake.Model,
			HTTPClient: otel.NewHTTPClient(0),
		})
	}

	eleven := tts.NewElevenLabs(tts.ElevenLabsConfig{
		APIKey:     cfg.Eleven.APIKey,
		Model:      cfg.Eleven.Model,
		BaseURL:    cfg.Eleven.BaseURL,
		HTTPClient: httpClient,
	})
	synth := tts.NewSynthesizer(eleven, objStore, w, cfg.Eleven.DefaultVoiceID, logger)

	metrics, err := engine.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register engine metrics: %v", err)
	}
	eng := engine.New(w, gen, synth, engine.Options{
		HistoryWindow:  cfg.Engine.HistoryWindow,
		RatePerMinute:  cfg.Engine.RatePerMinute,
		RequestTimeout: cfg.Engine.RequestTimeout,
	}, metrics, logger)

	sessionRepo := sqldb.NewSessionSQL(db)
	sessionSvc := service.NewSessionService(sessionRepo, eng)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerWithWriter(os.Stdout, cfg.Location()))
	app.Use(promMW.Handler())

	handlers.RegisterRoutes(app, handlers.Dependencies{
		DB:       db,
		Sessions: sessionSvc,
		World:    w,
		Audio:    objStore,
		Streamer: streamer,
		Gatherer: prometheus.DefaultGatherer,
		Log:      logger,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("server_shutdown", nil)
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server_shutdown", err, nil)
		}
	}()

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	logger.Info("server_start", map[string]any{"addr": addr, "app_host": cfg.AppHost})

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
