package storage

import (
	"fmt"
	"strings"

	"fateweaver/internal/config"
)

// New returns the backend selected by cfg.Storage.Driver.
func New(cfg *config.AppConfig) (Storage, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", "local":
		return NewLocal(cfg.Storage.AudioDir)
	case "minio", "s3":
		return NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
}
