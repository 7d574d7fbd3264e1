package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
)

// StorageOrphan tracks an object whose removal failed and must be retried.
type StorageOrphan struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Path       string             `gorm:"column:path;not null"`
	Reason     enums.OrphanReason `gorm:"column:reason;type:text;not null"`
	Attempts   int                `gorm:"column:attempts;not null;default:0"`
	LastError  *string            `gorm:"column:last_error"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt *time.Time         `gorm:"column:resolved_at"`
}

func (StorageOrphan) TableName() string { return "storage_orphans" }
