package galleries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/shutterdesk-backend/pkg/db"
	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shutterdesk-backend/pkg/saga"
	"github.com/angelmondragon/shutterdesk-backend/pkg/security"
)

const generatedPasswordLength = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type galleryWriter interface {
	InsertBatch(tx *gorm.DB, rows []models.GalleryImage) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type objectRemover interface {
	Remove(ctx context.Context, paths []string) error
}

type orphanRecorder interface {
	Record(ctx context.Context, paths []string, reason enums.OrphanReason, cause error) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

type compensationObserver interface {
	IncCompensation(ok bool)
}

// Links renders the public address of a gallery.
type Links struct {
	PublicBaseURL string
	DeliveryPath  string
}

// GalleryURL is {base}/{delivery-path}/{slug}.
func (l Links) GalleryURL(slug string) string {
	base := strings.TrimRight(l.PublicBaseURL, "/")
	deliveryPath := strings.Trim(l.DeliveryPath, "/")
	if deliveryPath == "" {
		return base + "/" + slug
	}
	return base + "/" + deliveryPath + "/" + slug
}

type CommitParams struct {
	DB      txRunner
	Repo    galleryWriter
	Outbox  eventEmitter
	Store   objectRemover
	Orphans orphanRecorder
	Hasher  passwordHasher
	Links   Links
	Metrics compensationObserver
	Logger  *logger.Logger
}

// CommitCoordinator turns a fully uploaded batch into gallery rows. The
// relational insert is the commit point; if it fails every uploaded object is
// removed again.
type CommitCoordinator struct {
	db      txRunner
	repo    galleryWriter
	outbox  eventEmitter
	store   objectRemover
	orphans orphanRecorder
	hasher  passwordHasher
	links   Links
	metrics compensationObserver
	logg    *logger.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

func NewCommitCoordinator(params CommitParams) (*CommitCoordinator, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("gallery repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	case params.Store == nil:
		return nil, fmt.Errorf("object store required")
	case params.Hasher == nil:
		return nil, fmt.Errorf("password hasher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &CommitCoordinator{
		db:      params.DB,
		repo:    params.Repo,
		outbox:  params.Outbox,
		store:   params.Store,
		orphans: params.Orphans,
		hasher:  params.Hasher,
		links:   params.Links,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
		newID:   uuid.New,
	}, nil
}

// Commit inserts one row per result under a fresh group id and queues a
// gallery_published event in the same transaction. Every result must be a
// success. On failure the uploaded objects are removed, paths that could not
// be removed are recorded as orphans, and a single error carrying the store's
// code, message and hint is returned. The insert is never retried.
func (c *CommitCoordinator) Commit(ctx context.Context, results []UploadResult, meta Metadata, ownerID uuid.UUID, slug string) (*PublishResult, error) {
	if len(results) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commit called without upload results")
	}
	for i, res := range results {
		if !res.Succeeded() {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("commit called with unsuccessful upload at index %d", i))
		}
	}

	password, hash, err := c.resolvePassword(meta)
	if err != nil {
		c.compensate(ctx, uploadedPaths(results), enums.OrphanReasonCommitCompensation)
		return nil, err
	}

	groupID := c.newID()
	rows := c.buildRows(results, meta, ownerID, slug, groupID, hash)
	galleryURL := c.links.GalleryURL(slug)
	paths := uploadedPaths(results)

	ctx = c.logg.WithFields(ctx, map[string]any{
		"group_id":    groupID.String(),
		"slug":        slug,
		"photo_count": len(rows),
	})

	run := saga.New("gallery_commit", c.logg).
		Add(saga.Step{
			Name: "upload_objects",
			Compensate: func(ctx context.Context) error {
				return c.compensate(ctx, paths, enums.OrphanReasonCommitCompensation)
			},
		}).
		Add(saga.Step{
			Name: "insert_rows",
			Action: func(ctx context.Context) error {
				return c.db.WithTx(ctx, func(tx *gorm.DB) error {
					if err := c.repo.InsertBatch(tx, rows); err != nil {
						return err
					}
					return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
						EventType:     enums.EventGalleryPublished,
						AggregateType: enums.AggregateGallery,
						AggregateID:   groupID,
						Actor:         &outbox.ActorRef{OwnerID: ownerID},
						Data: payloads.GalleryPublishedEvent{
							GroupID:    groupID,
							OwnerID:    ownerID,
							Slug:       slug,
							Title:      rows[0].Title,
							PhotoCount: len(rows),
							GalleryURL: galleryURL,
							CoverURL:   rows[0].PublicURL,
							HasExpiry:  meta.ExpiresAt != nil,
							Protected:  hash != nil,
						},
					})
				})
			},
		})

	if err := run.Run(ctx); err != nil {
		cause := err
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) {
			cause = sagaErr.Cause
		}
		return nil, commitError(cause)
	}

	c.logg.Info(ctx, "gallery committed")
	return &PublishResult{
		GroupID:    groupID,
		Slug:       slug,
		GalleryURL: galleryURL,
		Password:   password,
		PhotoCount: len(rows),
	}, nil
}

// Abandon removes whatever a failed upload run managed to write. It never
// fails; paths that cannot be removed are recorded as orphans.
func (c *CommitCoordinator) Abandon(ctx context.Context, results []UploadResult) {
	paths := attemptedPaths(results)
	if len(paths) == 0 {
		return
	}
	_ = c.compensate(context.WithoutCancel(ctx), paths, enums.OrphanReasonUploadAbandoned)
}

func (c *CommitCoordinator) compensate(ctx context.Context, paths []string, reason enums.OrphanReason) error {
	if len(paths) == 0 {
		return nil
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{"paths": len(paths), "reason": reason})
	c.logg.Warn(logCtx, "removing uploaded objects")

	err := c.store.Remove(ctx, paths)
	if c.metrics != nil {
		c.metrics.IncCompensation(err == nil)
	}
	if err == nil {
		return nil
	}

	c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "compensating delete failed; objects orphaned")
	if c.orphans != nil {
		if recErr := c.orphans.Record(ctx, paths, reason, err); recErr != nil {
			c.logg.Error(logCtx, "failed to record storage orphans", recErr)
		}
	}
	return err
}

func (c *CommitCoordinator) resolvePassword(meta Metadata) (string, *string, error) {
	password := strings.TrimSpace(meta.AccessPassword)
	if password == "" && meta.GeneratePassword {
		generated, err := security.GenerateAccessCode(generatedPasswordLength)
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate access password")
		}
		password = generated
	}
	if password == "" {
		return "", nil, nil
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash access password")
	}
	return password, &hash, nil
}

func (c *CommitCoordinator) buildRows(results []UploadResult, meta Metadata, ownerID uuid.UUID, slug string, groupID uuid.UUID, hash *string) []models.GalleryImage {
	now := c.now().UTC()
	rows := make([]models.GalleryImage, len(results))
	for i, res := range results {
		task := res.Task
		rows[i] = models.GalleryImage{
			ID:                 uuid.New(),
			GroupID:            groupID,
			OwnerID:            ownerID,
			Title:              strings.TrimSpace(meta.Title),
			Slug:               slug,
			Description:        meta.Description,
			DeliveryDate:       meta.DeliveryDate,
			ExpiresAt:          meta.ExpiresAt,
			AccessPasswordHash: hash,
			Permissions: models.GalleryPermissions{
				AllowDownload: meta.Permissions.AllowDownload,
				AllowShare:    meta.Permissions.AllowShare,
				Watermark:     meta.Permissions.Watermark,
			},
			TotalPhotoCount:  len(results),
			FileName:         pathBase(task.DestinationPath),
			OriginalFileName: task.Source.Name,
			FileSize:         task.Source.Size,
			ContentType:      task.Source.ContentType,
			StoragePath:      task.DestinationPath,
			PublicURL:        res.PublicURL,
			SortOrder:        task.SequenceIndex + 1,
			IsCoverImage:     task.SequenceIndex == 0,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}
	return rows
}

func commitError(cause error) error {
	summary := pkgerrors.SummarizeStore(cause)
	message := "failed to save gallery"
	if summary != "" {
		message = message + ": " + summary
	}
	code := pkgerrors.CodeDependency
	if dbpkg.IsUniqueViolation(cause, "") {
		code = pkgerrors.CodeConflict
	}
	return pkgerrors.Wrap(code, cause, message).WithDetails(pkgerrors.StoreDetails(cause))
}

func uploadedPaths(results []UploadResult) []string {
	paths := make([]string, 0, len(results))
	for _, res := range results {
		if res.Succeeded() {
			paths = append(paths, res.Task.DestinationPath)
		}
	}
	return paths
}

// attemptedPaths includes failed tasks too: a timed-out upload may still
// land after the executor gave up on it.
func attemptedPaths(results []UploadResult) []string {
	paths := make([]string, 0, len(results))
	for _, res := range results {
		if res.Err == ErrNotStarted {
			continue
		}
		paths = append(paths, res.Task.DestinationPath)
	}
	return paths
}

func pathBase(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}
