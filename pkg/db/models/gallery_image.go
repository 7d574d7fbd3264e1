package models

import (
	"time"

	"github.com/google/uuid"
)

// GalleryPermissions are the viewer capabilities stored alongside every image row.
type GalleryPermissions struct {
	AllowDownload bool `gorm:"column:allow_download;not null;default:false"`
	AllowShare    bool `gorm:"column:allow_share;not null;default:false"`
	Watermark     bool `gorm:"column:watermark;not null;default:false"`
}

// GalleryImage is one persisted image of a gallery. Gallery-level metadata is
// denormalized onto every row and all rows of a gallery share GroupID.
type GalleryImage struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID            uuid.UUID          `gorm:"column:group_id;type:uuid;not null"`
	OwnerID            uuid.UUID          `gorm:"column:owner_id;type:uuid;not null"`
	Title              string             `gorm:"column:title;not null"`
	Slug               string             `gorm:"column:slug;not null"`
	Description        *string            `gorm:"column:description"`
	DeliveryDate       *time.Time         `gorm:"column:delivery_date"`
	ExpiresAt          *time.Time         `gorm:"column:expires_at"`
	AccessPasswordHash *string            `gorm:"column:access_password_hash"`
	Permissions        GalleryPermissions `gorm:"embedded"`
	TotalPhotoCount    int                `gorm:"column:total_photo_count;not null"`
	FileName           string             `gorm:"column:file_name;not null"`
	OriginalFileName   string             `gorm:"column:original_file_name;not null"`
	FileSize           int64              `gorm:"column:file_size;not null"`
	ContentType        string             `gorm:"column:content_type;not null"`
	StoragePath        string             `gorm:"column:storage_path;not null"`
	PublicURL          string             `gorm:"column:public_url;not null"`
	SortOrder          int                `gorm:"column:sort_order;not null"`
	IsCoverImage       bool               `gorm:"column:is_cover_image;not null;default:false"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (GalleryImage) TableName() string { return "gallery_images" }

// GalleryAccessStats aggregates viewer activity per gallery.
type GalleryAccessStats struct {
	GroupID       uuid.UUID  `gorm:"column:group_id;type:uuid;primaryKey"`
	Slug          string     `gorm:"column:slug;not null"`
	ViewCount     int64      `gorm:"column:view_count;not null;default:0"`
	DownloadCount int64      `gorm:"column:download_count;not null;default:0"`
	LastViewedAt  *time.Time `gorm:"column:last_viewed_at"`
}

func (GalleryAccessStats) TableName() string { return "gallery_access_stats" }

// GalleryOverview is a read-only projection with one row per gallery.
type GalleryOverview struct {
	GroupID        uuid.UUID          `gorm:"column:group_id"`
	OwnerID        uuid.UUID          `gorm:"column:owner_id"`
	Title          string             `gorm:"column:title"`
	Slug           string             `gorm:"column:slug"`
	Description    *string            `gorm:"column:description"`
	DeliveryDate   *time.Time         `gorm:"column:delivery_date"`
	ExpiresAt      *time.Time         `gorm:"column:expires_at"`
	HasPassword    bool               `gorm:"column:has_password"`
	Permissions    GalleryPermissions `gorm:"embedded"`
	CoverURL       *string            `gorm:"column:cover_url"`
	PhotoCount     int                `gorm:"column:photo_count"`
	TotalSizeBytes int64              `gorm:"column:total_size_bytes"`
	ViewCount      int64              `gorm:"column:view_count"`
	DownloadCount  int64              `gorm:"column:download_count"`
	LastViewedAt   *time.Time         `gorm:"column:last_viewed_at"`
	CreatedAt      time.Time          `gorm:"column:created_at"`
}

func (GalleryOverview) TableName() string { return "gallery_overview" }
