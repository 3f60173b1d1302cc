package main

import (
	"context"
	"testing"

	"relaygate/internal/config"
)

func TestBuildStorageBackendUnsupportedAndAuto(t *testing.T) {
	ctx := context.Background()

	if _, err := buildStorageBackend(ctx, &config.Config{Storage: config.StorageConfig{Backend: "unknown"}}); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}

	cfg := &config.Config{Storage: config.StorageConfig{Backend: "auto", BaseDir: t.TempDir()}}
	b, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("auto backend failed: %v", err)
	}
	if b == nil {
		t.Fatalf("auto backend returned nil")
	}
}

func TestBuildStorageBackendFile(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Storage: config.StorageConfig{Backend: "file", BaseDir: t.TempDir()}}
	b, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("file backend failed: %v", err)
	}
	if b == nil {
		t.Fatalf("file backend returned nil")
	}
}
