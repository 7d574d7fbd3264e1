package galleries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shutterdesk-backend/pkg/pagination"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

type galleryStore interface {
	ListViews(ctx context.Context, ownerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.GalleryOverview, error)
	FindBySlug(ctx context.Context, slug string) ([]models.GalleryImage, error)
	LockBySlug(tx *gorm.DB, slug string) ([]models.GalleryImage, error)
	DeleteBySlug(tx *gorm.DB, slug string) (int64, error)
	DeleteImage(tx *gorm.DB, id uuid.UUID) error
	Renumber(tx *gorm.DB, rows []models.GalleryImage) error
	RecordView(ctx context.Context, groupID uuid.UUID, slug string, at time.Time) error
}

type passwordVerifier interface {
	Verify(password, encoded string) (bool, error)
}

type ManagerParams struct {
	DB       txRunner
	Repo     galleryStore
	Outbox   eventEmitter
	Store    objectRemover
	Orphans  orphanRecorder
	Verifier passwordVerifier
	Cache    *PublicCache
	Links    Links
	Logger   *logger.Logger
}

// Manager lists and deletes published galleries and serves them to viewers.
type Manager struct {
	db       txRunner
	repo     galleryStore
	outbox   eventEmitter
	store    objectRemover
	orphans  orphanRecorder
	verifier passwordVerifier
	cache    *PublicCache
	links    Links
	logg     *logger.Logger
	now      func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("gallery repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	case params.Store == nil:
		return nil, fmt.Errorf("object store required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("password verifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Manager{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		store:    params.Store,
		orphans:  params.Orphans,
		verifier: params.Verifier,
		cache:    params.Cache,
		links:    params.Links,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// List returns the owner's galleries newest first.
func (m *Manager) List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, err := m.repo.ListViews(ctx, ownerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list galleries")
	}
	page, more := pagination.Trim(rows, params.Limit)

	out := &ListResult{Galleries: make([]GalleryView, 0, len(page))}
	for _, row := range page {
		out.Galleries = append(out.Galleries, m.toView(row))
	}
	if more && len(page) > 0 {
		last := page[len(page)-1]
		out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.GroupID})
	}
	return out, nil
}

// PlanDeletion describes what DeleteGallery would remove. It changes nothing.
func (m *Manager) PlanDeletion(ctx context.Context, ownerID uuid.UUID, slug string) (*DeletionIntent, error) {
	rows, err := m.loadOwned(ctx, ownerID, slug)
	if err != nil {
		return nil, err
	}
	intent := &DeletionIntent{
		GroupID:    rows[0].GroupID,
		Slug:       rows[0].Slug,
		Title:      rows[0].Title,
		PhotoCount: len(rows),
		Paths:      storagePaths(rows),
	}
	for _, row := range rows {
		intent.TotalBytes += row.FileSize
	}
	return intent, nil
}

// DeleteGallery removes every object and row of a gallery. A storage failure
// is logged and recorded for the orphan sweep; the rows are deleted anyway.
func (m *Manager) DeleteGallery(ctx context.Context, req DeleteGalleryRequest) (*DeleteGalleryResult, error) {
	if !req.Confirmed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gallery deletion must be confirmed")
	}
	rows, err := m.loadOwned(ctx, req.OwnerID, req.Slug)
	if err != nil {
		return nil, err
	}
	slug := rows[0].Slug
	groupID := rows[0].GroupID
	ctx = m.logg.WithFields(ctx, map[string]any{"slug": slug, "group_id": groupID.String()})

	paths := storagePaths(rows)
	storageFailed := false
	if err := m.store.Remove(ctx, paths); err != nil {
		storageFailed = true
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "gallery storage cleanup failed; deleting rows anyway")
		if m.orphans != nil {
			if recErr := m.orphans.Record(ctx, paths, enums.OrphanReasonGalleryDelete, err); recErr != nil {
				m.logg.Error(ctx, "failed to record storage orphans", recErr)
			}
		}
	}

	var deleted int64
	err = m.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := m.repo.DeleteBySlug(tx, slug)
		if err != nil {
			return err
		}
		deleted = n
		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGalleryDeleted,
			AggregateType: enums.AggregateGallery,
			AggregateID:   groupID,
			Actor:         &outbox.ActorRef{OwnerID: req.OwnerID},
			Data: payloads.GalleryDeletedEvent{
				GroupID:              groupID,
				OwnerID:              req.OwnerID,
				Slug:                 slug,
				PhotoCount:           len(rows),
				StorageCleanupFailed: storageFailed,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete gallery rows").WithDetails(pkgerrors.StoreDetails(err))
	}
	m.cache.Invalidate(ctx, slug)

	m.logg.Info(m.logg.WithField(ctx, "rows_deleted", deleted), "gallery deleted")
	return &DeleteGalleryResult{Slug: slug, RowsDeleted: deleted, StorageCleanupFailed: storageFailed}, nil
}

// DeleteImage removes one image. The object is removed first and a storage
// failure aborts with no row changed. The remaining images are renumbered
// from 1 and the first of them becomes the cover.
func (m *Manager) DeleteImage(ctx context.Context, req DeleteImageRequest) (*DeleteImageResult, error) {
	if !req.Confirmed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image deletion must be confirmed")
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image_url is required")
	}
	rows, err := m.loadOwned(ctx, req.OwnerID, req.Slug)
	if err != nil {
		return nil, err
	}
	target, ok := findByURL(rows, imageURL)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "image is not part of this gallery")
	}
	slug := target.Slug
	ctx = m.logg.WithFields(ctx, map[string]any{"slug": slug, "image_id": target.ID.String()})

	if err := m.store.Remove(ctx, []string{objectPath(target)}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove image from storage")
	}

	var remaining []models.GalleryImage
	err = m.db.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := m.repo.LockBySlug(tx, slug)
		if err != nil {
			return err
		}
		remaining = remaining[:0]
		found := false
		for _, row := range locked {
			if row.ID == target.ID {
				found = true
				continue
			}
			remaining = append(remaining, row)
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "image is not part of this gallery")
		}
		if err := m.repo.DeleteImage(tx, target.ID); err != nil {
			return err
		}
		if err := m.repo.Renumber(tx, remaining); err != nil {
			return err
		}
		event := payloads.GalleryImageDeletedEvent{
			GroupID:        target.GroupID,
			OwnerID:        req.OwnerID,
			ImageID:        target.ID,
			Slug:           slug,
			ImageURL:       target.PublicURL,
			RemainingCount: len(remaining),
		}
		if target.IsCoverImage && len(remaining) > 0 {
			event.NewCoverID = &remaining[0].ID
		}
		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGalleryImageDeleted,
			AggregateType: enums.AggregateGalleryImage,
			AggregateID:   target.ID,
			Actor:         &outbox.ActorRef{OwnerID: req.OwnerID},
			Data:          event,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gallery after image removal").WithDetails(pkgerrors.StoreDetails(err))
	}
	m.cache.Invalidate(ctx, slug)

	out := &DeleteImageResult{Slug: slug, RemainingCount: len(remaining)}
	if len(remaining) > 0 {
		cover := remaining[0].PublicURL
		out.CoverURL = &cover
	}
	m.logg.Info(m.logg.WithField(ctx, "remaining", len(remaining)), "gallery image deleted")
	return out, nil
}

// GetPublic returns a gallery for viewers. Expired galleries are reported as
// missing; protected galleries require the access password.
func (m *Manager) GetPublic(ctx context.Context, slug, password string) (*PublicGallery, error) {
	slug = normalizeSlug(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}

	rows, ok := m.cache.Get(slug)
	if !ok {
		fetched, err := m.repo.FindBySlug(ctx, slug)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gallery")
		}
		rows = fetched
		m.cache.Set(slug, rows)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gallery not found")
	}

	head := rows[0]
	now := m.now().UTC()
	if head.ExpiresAt != nil && now.After(*head.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gallery not found")
	}
	if head.AccessPasswordHash != nil && *head.AccessPasswordHash != "" {
		if strings.TrimSpace(password) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "gallery password required")
		}
		match, err := m.verifier.Verify(password, *head.AccessPasswordHash)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify gallery password")
		}
		if !match {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gallery password")
		}
	}

	if err := m.repo.RecordView(ctx, head.GroupID, head.Slug, now); err != nil {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{"slug": head.Slug, "error": err.Error()}), "failed to record gallery view")
	}

	out := &PublicGallery{
		Title:        head.Title,
		Slug:         head.Slug,
		Description:  head.Description,
		DeliveryDate: head.DeliveryDate,
		ExpiresAt:    head.ExpiresAt,
		Permissions:  permissionsFromModel(head.Permissions),
		PhotoCount:   len(rows),
		Images:       make([]PublicImage, 0, len(rows)),
	}
	for _, row := range rows {
		out.Images = append(out.Images, PublicImage{
			URL:         row.PublicURL,
			FileName:    row.OriginalFileName,
			ContentType: row.ContentType,
			Size:        row.FileSize,
			Order:       row.SortOrder,
			IsCover:     row.IsCoverImage,
		})
	}
	return out, nil
}

func (m *Manager) loadOwned(ctx context.Context, ownerID uuid.UUID, slug string) ([]models.GalleryImage, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	slug = normalizeSlug(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	rows, err := m.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gallery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gallery")
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gallery not found")
	}
	for _, row := range rows {
		if row.OwnerID != ownerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "gallery belongs to another account")
		}
	}
	return rows, nil
}

func (m *Manager) toView(row models.GalleryOverview) GalleryView {
	return GalleryView{
		GroupID:        row.GroupID,
		Title:          row.Title,
		Slug:           row.Slug,
		GalleryURL:     m.links.GalleryURL(row.Slug),
		Description:    row.Description,
		DeliveryDate:   row.DeliveryDate,
		ExpiresAt:      row.ExpiresAt,
		HasPassword:    row.HasPassword,
		Permissions:    permissionsFromModel(row.Permissions),
		CoverURL:       row.CoverURL,
		PhotoCount:     row.PhotoCount,
		TotalSizeBytes: row.TotalSizeBytes,
		ViewCount:      row.ViewCount,
		DownloadCount:  row.DownloadCount,
		LastViewedAt:   row.LastViewedAt,
		CreatedAt:      row.CreatedAt,
	}
}

func permissionsFromModel(p models.GalleryPermissions) Permissions {
	return Permissions{AllowDownload: p.AllowDownload, AllowShare: p.AllowShare, Watermark: p.Watermark}
}

func findByURL(rows []models.GalleryImage, url string) (models.GalleryImage, bool) {
	for _, row := range rows {
		if row.PublicURL == url {
			return row, true
		}
	}
	return models.GalleryImage{}, false
}

func storagePaths(rows []models.GalleryImage) []string {
	paths := make([]string, 0, len(rows))
	for _, row := range rows {
		paths = append(paths, objectPath(row))
	}
	return paths
}

// objectPath prefers the stored key and falls back to deriving it from the
// owner, slug and file name.
func objectPath(row models.GalleryImage) string {
	if row.StoragePath != "" {
		return row.StoragePath
	}
	return storage.ObjectPath(row.OwnerID.String(), row.Slug, row.FileName)
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
