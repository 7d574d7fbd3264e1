package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

const (
	orphanSweepBatchSize   = 200
	orphanSweepMaxAttempts = 10
	orphanRemoveChunk      = 100
)

type orphanSweepRepo interface {
	ListPending(ctx context.Context, limit, maxAttempts int) ([]models.StorageOrphan, error)
	MarkResolved(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, cause error) error
}

type objectRemover interface {
	Remove(ctx context.Context, paths []string) error
}

type itemCounter interface {
	AddItems(job, outcome string, n int)
}

type OrphanSweepJobParams struct {
	Logger      *logger.Logger
	Repository  orphanSweepRepo
	Store       objectRemover
	Metrics     itemCounter
	BatchSize   int
	MaxAttempts int
}

func NewOrphanSweepJob(params OrphanSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("orphan repository required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = orphanSweepBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = orphanSweepMaxAttempts
	}
	return &orphanSweepJob{
		logg:        params.Logger,
		repo:        params.Repository,
		store:       params.Store,
		metrics:     params.Metrics,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type orphanSweepJob struct {
	logg        *logger.Logger
	repo        orphanSweepRepo
	store       objectRemover
	metrics     itemCounter
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func (j *orphanSweepJob) Name() string { return "orphan-sweep" }

// Run removes one batch of orphaned objects. A chunk that fails as a whole
// is retried path by path so a single bad key does not hold back the rest.
func (j *orphanSweepJob) Run(ctx context.Context) error {
	rows, err := j.repo.ListPending(ctx, j.batchSize, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("list storage orphans: %w", err)
	}
	if len(rows) == 0 {
		j.logg.Info(ctx, "no storage orphans to sweep")
		return nil
	}

	var (
		resolved []uuid.UUID
		failed   int
		markErrs error
	)
	for start := 0; start < len(rows); start += orphanRemoveChunk {
		end := start + orphanRemoveChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		if err := j.store.Remove(ctx, orphanPaths(chunk)); err == nil {
			resolved = append(resolved, orphanIDs(chunk)...)
			continue
		}
		for _, row := range chunk {
			if err := j.store.Remove(ctx, []string{row.Path}); err != nil {
				failed++
				markErrs = multierr.Append(markErrs, j.repo.MarkFailed(ctx, []uuid.UUID{row.ID}, err))
				continue
			}
			resolved = append(resolved, row.ID)
		}
	}
	markErrs = multierr.Append(markErrs, j.repo.MarkResolved(ctx, resolved, j.now().UTC()))

	if j.metrics != nil {
		j.metrics.AddItems(j.Name(), "resolved", len(resolved))
		j.metrics.AddItems(j.Name(), "failed", failed)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"resolved":   len(resolved),
		"failed":     failed,
	})
	if markErrs != nil {
		return fmt.Errorf("update storage orphans: %w", markErrs)
	}
	j.logg.Info(logCtx, "storage orphan sweep complete")
	return nil
}

func orphanPaths(rows []models.StorageOrphan) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.Path
	}
	return out
}

func orphanIDs(rows []models.StorageOrphan) []uuid.UUID {
	out := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		out[i] = row.ID
	}
	return out
}
