// Package voicesample synthesizes a short directional line for one character,
// for auditioning voices outside a session.
package voicesample

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"

	"fateweaver/internal/config"
	"fateweaver/internal/logx"
	"fateweaver/internal/storage"
	"fateweaver/internal/tts"
	"fateweaver/internal/world"
)

// Config holds the parsed command line.
type Config struct {
	Target     string
	Seed       int64
	Characters string
	AudioDir   string
	Model      string
	Voice      string
}

// ParseConfig parses flags into a Config, taking defaults from app.
// The single positional argument is a character name or roster index.
func ParseConfig(fs *flag.FlagSet, args []string, app *config.AppConfig) (Config, error) {
	cfg := Config{
		Characters: app.World.CharactersPath,
		AudioDir:   app.Storage.AudioDir,
		Model:      app.Eleven.Model,
		Voice:      app.Eleven.DefaultVoiceID,
	}
	fs.Int64Var(&cfg.Seed, "seed", 0, "seed for the line choice; 0 picks randomly")
	fs.StringVar(&cfg.Characters, "characters", cfg.Characters, "character roster file")
	fs.StringVar(&cfg.AudioDir, "out", cfg.AudioDir, "audio cache directory when STORAGE_DRIVER is local")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "ElevenLabs model id")
	fs.StringVar(&cfg.Voice, "voice", cfg.Voice, "voice for characters without one")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() != 1 {
		return Config{}, errors.New("expected exactly one character name or index")
	}
	cfg.Target = fs.Arg(0)
	return cfg, nil
}

// Run resolves the character, synthesizes a sample and reports it on out.
func Run(ctx context.Context, cfg Config, api tts.Speaker, store storage.Storage, out io.Writer, log *logx.Logger) error {
	if out == nil {
		return errors.New("output is required")
	}
	w, err := world.Load(cfg.Characters, "")
	if err != nil {
		return err
	}
	c, err := w.ResolveTarget(cfg.Target)
	if err != nil {
		return err
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	synth := tts.NewSynthesizer(api, store, w, cfg.Voice, log)
	audio, line, err := synth.SampleCharacter(ctx, c.Name, rng)
	if err != nil {
		return fmt.Errorf("sample %s: %w", c.Name, err)
	}

	_, err = fmt.Fprintf(out, "character: %s\nline: %s\nkey: %s\ncached: %t\n", c.Name, line, audio.Key, audio.Cached)
	return err
}
