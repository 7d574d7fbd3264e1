package galleries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/metrics"
)

const (
	percentAllocated = 20
	percentUploaded  = 80
	percentDone      = 100
	maxTitleLength   = 200
)

type publishObserver interface {
	ObservePublish(outcome string, d time.Duration)
}

type PublisherParams struct {
	Slugs    *SlugAllocator
	Executor *Executor
	Commit   *CommitCoordinator
	MaxFiles int
	Metrics  publishObserver
	Logger   *logger.Logger
}

// Publisher runs the whole pipeline: slug allocation, task building, wave
// uploads and the commit.
type Publisher struct {
	slugs    *SlugAllocator
	executor *Executor
	commit   *CommitCoordinator
	maxFiles int
	metrics  publishObserver
	logg     *logger.Logger
	now      func() time.Time
}

func NewPublisher(params PublisherParams) (*Publisher, error) {
	switch {
	case params.Slugs == nil:
		return nil, fmt.Errorf("slug allocator required")
	case params.Executor == nil:
		return nil, fmt.Errorf("executor required")
	case params.Commit == nil:
		return nil, fmt.Errorf("commit coordinator required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Publisher{
		slugs:    params.Slugs,
		executor: params.Executor,
		commit:   params.Commit,
		maxFiles: params.MaxFiles,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Publish validates the request and runs the pipeline. onProgress may be nil.
// An upload failure removes the objects that did land and returns without
// touching the record store.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest, onProgress ProgressFunc) (*PublishResult, error) {
	started := p.now()
	report := func(stage Stage, percent, done, total int) {
		if onProgress != nil {
			onProgress(Progress{Stage: stage, Percent: percent, Done: done, Total: total})
		}
	}
	total := len(req.Files)

	if err := p.validate(req); err != nil {
		p.observe(metrics.OutcomeInvalid, started)
		return nil, err
	}
	ctx = p.logg.WithFields(ctx, map[string]any{"owner_id": req.OwnerID.String(), "file_count": total})

	report(StageAllocating, 0, 0, total)
	alloc, err := p.slugs.Allocate(ctx, req.Metadata.Title)
	if err != nil {
		p.observe(metrics.OutcomeSlugFailed, started)
		return nil, err
	}
	defer func() {
		if relErr := alloc.Release(context.WithoutCancel(ctx)); relErr != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", relErr.Error()), "failed to release slug reservation")
		}
	}()
	ctx = p.logg.WithSlug(ctx, alloc.Slug)
	report(StageAllocating, percentAllocated, 0, total)

	tasks, err := BuildUploadTasks(req.Files, req.Metadata, alloc.Slug, req.OwnerID, p.now())
	if err != nil {
		p.observe(metrics.OutcomeInvalid, started)
		return nil, err
	}

	results, err := p.executor.Run(ctx, tasks, 0, func(done, total int) {
		report(StageUploading, uploadPercent(done, total), done, total)
	})
	if err != nil {
		p.logg.Error(ctx, "gallery upload failed", err)
		p.commit.Abandon(ctx, results)
		p.observe(metrics.OutcomeUploadFailed, started)
		return nil, err
	}

	report(StageCommitting, percentUploaded, total, total)
	out, err := p.commit.Commit(ctx, results, req.Metadata, req.OwnerID, alloc.Slug)
	if err != nil {
		p.logg.Error(ctx, "gallery commit failed", err)
		p.observe(metrics.OutcomeCommitFailed, started)
		return nil, err
	}

	report(StageDone, percentDone, total, total)
	p.observe(metrics.OutcomeSuccess, started)
	return out, nil
}

func (p *Publisher) validate(req PublishRequest) error {
	if req.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	title := strings.TrimSpace(req.Metadata.Title)
	if title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if len(req.Files) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required")
	}
	if p.maxFiles > 0 && len(req.Files) > p.maxFiles {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a gallery holds at most %d files", p.maxFiles))
	}
	for _, f := range req.Files {
		if f.Size <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file %q is empty or corrupt", f.Name)).
				WithDetails(map[string]any{"file": f.Name, "size": f.Size})
		}
	}
	return nil
}

func (p *Publisher) observe(outcome string, started time.Time) {
	if p.metrics != nil {
		p.metrics.ObservePublish(outcome, p.now().Sub(started))
	}
}

func uploadPercent(done, total int) int {
	if total <= 0 {
		return percentUploaded
	}
	return percentAllocated + (percentUploaded-percentAllocated)*done/total
}
