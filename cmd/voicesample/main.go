// Command voicesample synthesizes a random directional line for one character.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"fateweaver/internal/config"
	"fateweaver/internal/logx"
	"fateweaver/internal/otel"
	"fateweaver/internal/storage"
	"fateweaver/internal/tools/voicesample"
	"fateweaver/internal/tts"
)

func main() {
	app := config.Load()
	cfg, err := voicesample.ParseConfig(flag.CommandLine, os.Args[1:], app)
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	app.Storage.AudioDir = cfg.AudioDir

	store, err := storage.New(app)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}
	api := tts.NewElevenLabs(tts.ElevenLabsConfig{
		APIKey:     app.Eleven.APIKey,
		Model:      cfg.Model,
		BaseURL:    app.Eleven.BaseURL,
		HTTPClient: otel.NewHTTPClient(app.Engine.RequestTimeout),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logx.New(os.Stderr, app.Location(), "voicesample")
	if err := voicesample.Run(ctx, cfg, api, store, os.Stdout, logger); err != nil {
		log.Fatalf("voice sample: %v", err)
	}
}
