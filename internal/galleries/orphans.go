package galleries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
)

// OrphanRepository tracks storage objects whose removal failed.
type OrphanRepository struct {
	db *gorm.DB
}

func NewOrphanRepository(db *gorm.DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

// Record stores one pending row per path.
func (r *OrphanRepository) Record(ctx context.Context, paths []string, reason enums.OrphanReason, cause error) error {
	if len(paths) == 0 {
		return nil
	}
	if !reason.IsValid() {
		return errors.New("invalid orphan reason " + string(reason))
	}
	var lastErr *string
	if cause != nil {
		msg := cause.Error()
		lastErr = &msg
	}
	rows := make([]models.StorageOrphan, len(paths))
	for i, p := range paths {
		rows[i] = models.StorageOrphan{
			ID:        uuid.New(),
			Path:      p,
			Reason:    reason,
			LastError: lastErr,
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListPending returns unresolved orphans still below maxAttempts, oldest first.
func (r *OrphanRepository) ListPending(ctx context.Context, limit, maxAttempts int) ([]models.StorageOrphan, error) {
	query := r.db.WithContext(ctx).Where("resolved_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	var rows []models.StorageOrphan
	err := query.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *OrphanRepository) MarkResolved(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.StorageOrphan{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"resolved_at": at,
			"attempts":    gorm.Expr("attempts + 1"),
		}).Error
}

func (r *OrphanRepository) MarkFailed(ctx context.Context, ids []uuid.UUID, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]any{"attempts": gorm.Expr("attempts + 1")}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.StorageOrphan{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}
