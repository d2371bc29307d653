package storage

import (
	"context"
	"log/slog"
	"time"
)

// DryRunStore logs the keys that would have been written instead of
// committing them. Used by the agent's dry-run mode to verify rule
// configuration against live traffic without touching the store.
type DryRunStore struct {
	logger *slog.Logger
}

// NewDryRun creates a store that only logs.
func NewDryRun(logger *slog.Logger) *DryRunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunStore{logger: logger}
}

func (s *DryRunStore) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) error {
	s.logger.Info("dry-run commit", "key", key, "ttl", ttl)
	return nil
}

func (s *DryRunStore) Ping(context.Context) error { return nil }

func (s *DryRunStore) Close() error { return nil }
