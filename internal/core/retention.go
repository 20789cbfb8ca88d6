package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// retentionJob periodically deletes images older than the configured age
// from store and cache.
type retentionJob struct {
	cron *cron.Cron
}

func startRetentionJob(service *CoreService, config RetentionConfig) (*retentionJob, error) {
	c := cron.New()
	_, err := c.AddFunc(config.Schedule, func() {
		service.purgeExpired(config.MaxAge.Std())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", config.Schedule, err)
	}

	c.Start()
	slog.Info("retention job started",
		"schedule", config.Schedule,
		"max_age", config.MaxAge.Std())

	return &retentionJob{cron: c}, nil
}

func (j *retentionJob) stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (s *CoreService) purgeExpired(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	ids, err := s.store.DeleteOlderThan(cutoff)
	if err != nil {
		slog.Error("retention purge failed", "error", err)
		return
	}
	if len(ids) == 0 {
		slog.Debug("retention purge found no expired images")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.cache.Delete(ctx, ids...)

	slog.Info("retention purge completed",
		"deleted_count", len(ids),
		"cutoff", cutoff)
}
