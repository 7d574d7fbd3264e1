package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 5
	outboxBacklogWarn   = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// OutboxRetentionJobParams configure the outbox retention job.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// Retention is in days; published and exhausted gallery events older
	// than this are dropped.
	Retention int
	// MinAttempts marks an unpublished row as exhausted.
	MinAttempts int
	// BacklogWarn is the pending row count above which the job warns that
	// the relay is falling behind.
	BacklogWarn int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   time.Duration
	minAttempts int
	backlogWarn int64
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   time.Duration(days) * 24 * time.Hour,
		minAttempts: params.MinAttempts,
		backlogWarn: int64(params.BacklogWarn),
		now:         time.Now,
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	if job.backlogWarn <= 0 {
		job.backlogWarn = outboxBacklogWarn
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run drops relayed and exhausted gallery events past retention, then
// reports how many events still wait for the relay.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		deleted = n
		return err
	}); err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	pending, err := j.repo.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending gallery events: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"min_attempts":   j.minAttempts,
		"rows_deleted":   deleted,
		"pending_events": pending,
	})
	if pending > j.backlogWarn {
		j.logg.Warn(j.logg.WithField(logCtx, "backlog_warn", j.backlogWarn), "gallery event relay is falling behind")
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
