package storage

import (
	"fmt"
	"time"
)

// Config holds storage configuration
type Config struct {
	Type                string // only "mock" (local filesystem) is built in
	Dir                 string
	BaseURL             string // server base URL used in generated links
	PresignedExpiration time.Duration
}

// New builds the backend named by cfg.Type.
func New(cfg Config) (StorageInterface, error) {
	switch cfg.Type {
	case "", "mock", "local":
		return NewLocalStorage(cfg.BaseURL, cfg.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
