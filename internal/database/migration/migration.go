package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fateweaver/internal/database"
	"fateweaver/internal/logx"
)

type migrationStep struct {
	Name string
	SQL  string
}

var postgresSteps = []migrationStep{
	{
		Name: "create_table_sessions",
		SQL: `CREATE TABLE IF NOT EXISTS sessions (
  id         UUID        PRIMARY KEY,
  title      TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_messages",
		SQL: `CREATE TABLE IF NOT EXISTS messages (
  id         UUID        PRIMARY KEY,
  session_id UUID        NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
  position   INTEGER     NOT NULL CHECK (position >= 0),
  sender     TEXT        NOT NULL,
  text       TEXT        NOT NULL,
  location   TEXT        NOT NULL DEFAULT '',
  audio_path TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (session_id, position)
);`,
	},
	{
		Name: "create_index_sessions_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions (created_at);`,
	},
}

var sqliteSteps = []migrationStep{
	{
		Name: "create_table_sessions",
		SQL: `CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT     PRIMARY KEY,
  title      TEXT     NOT NULL,
  created_at DATETIME NOT NULL
);`,
	},
	{
		Name: "create_table_messages",
		SQL: `CREATE TABLE IF NOT EXISTS messages (
  id         TEXT     PRIMARY KEY,
  session_id TEXT     NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
  position   INTEGER  NOT NULL CHECK (position >= 0),
  sender     TEXT     NOT NULL,
  text       TEXT     NOT NULL,
  location   TEXT     NOT NULL DEFAULT '',
  audio_path TEXT     NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL,
  UNIQUE (session_id, position)
);`,
	},
	{
		Name: "create_index_sessions_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions (created_at);`,
	},
}

func stepsFor(d database.Dialect) ([]migrationStep, string, error) {
	switch d {
	case database.Postgres:
		return postgresSteps, "SELECT to_regclass('public.messages') IS NOT NULL", nil
	case database.SQLite:
		return sqliteSteps, "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'messages'", nil
	default:
		return nil, "", fmt.Errorf("no migrations for dialect %q", d)
	}
}

// EnsureMigrated checks if the 'messages' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, dialect database.Dialect, log *logx.Logger, dbHost string) error {
	start := time.Now()
	log = log.With("database")

	steps, sentinel, err := stepsFor(dialect)
	if err != nil {
		return err
	}

	log.Log(map[string]any{
		"event":   "db_migration_check",
		"status":  "starting",
		"dialect": string(dialect),
		"db_host": dbHost,
	})

	var exists bool
	if err := db.QueryRowContext(ctx, sentinel).Scan(&exists); err != nil {
		log.Error("db_migration_failed", fmt.Errorf("failed to check sentinel table: %w", err), map[string]any{
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip", map[string]any{
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	log.Log(map[string]any{
		"event":   "db_migration_start",
		"status":  "in_progress",
		"db_host": dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed", err, map[string]any{
				"migration_step":   step.Name,
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step", map[string]any{
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Info("db_migration_success", map[string]any{
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}
