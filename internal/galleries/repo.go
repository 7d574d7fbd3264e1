package galleries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/pagination"
)

// Repository persists gallery image rows and reads the gallery_overview view.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SlugExists reports whether any active row uses slug.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GalleryImage{}).
		Where("slug = ?", slug).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// InsertBatch writes every row in a single multi-row INSERT.
func (r *Repository) InsertBatch(tx *gorm.DB, rows []models.GalleryImage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(rows) == 0 {
		return errors.New("no rows to insert")
	}
	return tx.Create(&rows).Error
}

// ListViews returns the owner's galleries newest first, starting after cursor.
func (r *Repository) ListViews(ctx context.Context, ownerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.GalleryOverview, error) {
	query := r.db.WithContext(ctx).
		Model(&models.GalleryOverview{}).
		Where("owner_id = ?", ownerID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND group_id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.GalleryOverview
	err := query.
		Order("created_at DESC").
		Order("group_id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindBySlug returns every row of the gallery ordered by sort_order.
func (r *Repository) FindBySlug(ctx context.Context, slug string) ([]models.GalleryImage, error) {
	var rows []models.GalleryImage
	err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		Order("sort_order ASC").
		Find(&rows).Error
	return rows, err
}

// LockBySlug is FindBySlug inside tx with the rows locked for update.
func (r *Repository) LockBySlug(tx *gorm.DB, slug string) ([]models.GalleryImage, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.GalleryImage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("slug = ?", slug).
		Order("sort_order ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteBySlug removes every row of the gallery and its access counters.
func (r *Repository) DeleteBySlug(tx *gorm.DB, slug string) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if err := tx.Where("slug = ?", slug).Delete(&models.GalleryAccessStats{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("slug = ?", slug).Delete(&models.GalleryImage{})
	return res.RowsAffected, res.Error
}

// DeleteImage removes a single row.
func (r *Repository) DeleteImage(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	res := tx.Where("id = ?", id).Delete(&models.GalleryImage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Renumber rewrites sort_order to 1..len(rows) in the given order, makes the
// first row the cover and stores the new photo count on every row. Rows are
// updated in ascending order so (group_id, sort_order) never collides.
func (r *Repository) Renumber(tx *gorm.DB, rows []models.GalleryImage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	total := len(rows)
	for i := range rows {
		rows[i].SortOrder = i + 1
		rows[i].IsCoverImage = i == 0
		rows[i].TotalPhotoCount = total
		err := tx.Model(&models.GalleryImage{}).
			Where("id = ?", rows[i].ID).
			Updates(map[string]any{
				"sort_order":        rows[i].SortOrder,
				"is_cover_image":    rows[i].IsCoverImage,
				"total_photo_count": total,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordView bumps the gallery's view counter.
func (r *Repository) RecordView(ctx context.Context, groupID uuid.UUID, slug string, at time.Time) error {
	row := models.GalleryAccessStats{
		GroupID:      groupID,
		Slug:         slug,
		ViewCount:    1,
		LastViewedAt: &at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"view_count":     gorm.Expr("gallery_access_stats.view_count + 1"),
				"last_viewed_at": at,
			}),
		}).
		Create(&row).Error
}
