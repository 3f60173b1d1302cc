package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"relaygate/internal/config"
	store "relaygate/internal/storage"

	log "github.com/sirupsen/logrus"
)

// buildStorageBackend selects and initializes the configured persistence
// backend for the credential pool's durable snapshot (see
// pool.StoragePersister). "auto" prefers redis when an address is
// configured and otherwise falls back to the local file backend.
func buildStorageBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch backend {
	case "", "file":
		baseDir := expandPath(defaultStorageDir(cfg.Storage.BaseDir))
		fb := store.NewFileBackend(baseDir)
		if err := fb.Initialize(ctx); err != nil {
			return nil, err
		}
		return fb, nil
	case "redis":
		addr := cfg.Storage.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		rb, err := store.NewRedisBackend(addr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB, "relaygate")
		if err != nil {
			return nil, err
		}
		if err := rb.Initialize(ctx); err != nil {
			return nil, err
		}
		return rb, nil
	case "git":
		gb := store.NewGitBackendFromConfig(cfg)
		if err := gb.Initialize(ctx); err != nil {
			return nil, err
		}
		return gb, nil
	case "auto":
		if cfg.Storage.RedisAddr != "" {
			if rb, err := store.NewRedisBackend(cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB, "relaygate"); err == nil {
				if err := rb.Initialize(ctx); err == nil {
					log.Info("storage auto: using redis backend")
					return rb, nil
				}
			}
			log.Warn("storage auto: redis backend initialization failed, falling back to file")
		}
		baseDir := expandPath(defaultStorageDir(cfg.Storage.BaseDir))
		fb := store.NewFileBackend(baseDir)
		if err := fb.Initialize(ctx); err != nil {
			return nil, err
		}
		log.Info("storage auto: using local file backend")
		return fb, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

func defaultStorageDir(configured string) string {
	if configured != "" {
		return configured
	}
	return "./storage"
}

func expandPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
