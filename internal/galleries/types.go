package galleries

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// Permissions are the viewer capabilities granted by a gallery.
type Permissions struct {
	AllowDownload bool `json:"allow_download"`
	AllowShare    bool `json:"allow_share"`
	Watermark     bool `json:"watermark"`
}

// Metadata is the user-supplied description of a gallery. It is not mutated
// while a publish is running.
type Metadata struct {
	Title          string
	Description    *string
	DeliveryDate   *time.Time
	ExpiresAt      *time.Time
	AccessPassword string
	// GeneratePassword asks the pipeline to mint an access code when
	// AccessPassword is empty.
	GeneratePassword bool
	Permissions      Permissions
}

// SourceFile is one client-selected image. Open is called once, by the
// executor, when the file's upload starts.
type SourceFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadTask is one file bound to its destination in the object store.
type UploadTask struct {
	Source           SourceFile
	DestinationPath  string
	SequenceIndex    int
	IsCoverCandidate bool
}

// UploadResult is the outcome of one task. PublicURL is set on success and
// Err on failure; tasks that never started carry ErrNotStarted.
type UploadResult struct {
	Task      UploadTask
	PublicURL string
	Err       error
}

// ErrNotStarted marks result slots of tasks in waves that never ran.
var ErrNotStarted = errors.New("upload not started")

// Succeeded reports whether the object landed in storage.
func (r UploadResult) Succeeded() bool {
	return r.Err == nil && r.PublicURL != ""
}

// PublishRequest is everything needed to publish one gallery.
type PublishRequest struct {
	OwnerID  uuid.UUID
	Metadata Metadata
	Files    []SourceFile
}

// PublishResult is returned once the gallery rows are committed.
type PublishResult struct {
	GroupID    uuid.UUID `json:"group_id"`
	Slug       string    `json:"slug"`
	GalleryURL string    `json:"gallery_url"`
	Password   string    `json:"password,omitempty"`
	PhotoCount int       `json:"photo_count"`
}

// Stage names the phase a publish is in.
type Stage string

const (
	StageAllocating Stage = "allocating_slug"
	StageUploading  Stage = "uploading"
	StageCommitting Stage = "committing"
	StageDone       Stage = "done"
)

// Progress is reported to the caller of Publish. Percent bands are 0-20 for
// slug allocation, 20-80 for uploads and 80-100 for the commit.
type Progress struct {
	Stage   Stage `json:"stage"`
	Percent int   `json:"percent"`
	Done    int   `json:"done"`
	Total   int   `json:"total"`
}

// ProgressFunc receives progress updates synchronously from the publishing goroutine.
type ProgressFunc func(Progress)

// GalleryView is one gallery as shown in the owner's list.
type GalleryView struct {
	GroupID        uuid.UUID   `json:"group_id"`
	Title          string      `json:"title"`
	Slug           string      `json:"slug"`
	GalleryURL     string      `json:"gallery_url"`
	Description    *string     `json:"description,omitempty"`
	DeliveryDate   *time.Time  `json:"delivery_date,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	HasPassword    bool        `json:"has_password"`
	Permissions    Permissions `json:"permissions"`
	CoverURL       *string     `json:"cover_url,omitempty"`
	PhotoCount     int         `json:"photo_count"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	ViewCount      int64       `json:"view_count"`
	DownloadCount  int64       `json:"download_count"`
	LastViewedAt   *time.Time  `json:"last_viewed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ListResult is one page of galleries.
type ListResult struct {
	Galleries  []GalleryView `json:"galleries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// DeletionIntent describes what DeleteGallery would remove so the caller can
// ask for confirmation.
type DeletionIntent struct {
	GroupID    uuid.UUID `json:"group_id"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	PhotoCount int       `json:"photo_count"`
	TotalBytes int64     `json:"total_bytes"`
	Paths      []string  `json:"paths"`
}

type DeleteGalleryRequest struct {
	OwnerID   uuid.UUID
	Slug      string
	Confirmed bool
}

type DeleteGalleryResult struct {
	Slug                 string `json:"slug"`
	RowsDeleted          int64  `json:"rows_deleted"`
	StorageCleanupFailed bool   `json:"storage_cleanup_failed"`
}

type DeleteImageRequest struct {
	OwnerID   uuid.UUID
	Slug      string
	ImageURL  string
	Confirmed bool
}

type DeleteImageResult struct {
	Slug           string  `json:"slug"`
	RemainingCount int     `json:"remaining_count"`
	CoverURL       *string `json:"cover_url,omitempty"`
}

// PublicImage is one image served to gallery viewers.
type PublicImage struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Order       int    `json:"order"`
	IsCover     bool   `json:"is_cover"`
}

// PublicGallery is the viewer-facing projection of a gallery.
type PublicGallery struct {
	Title        string        `json:"title"`
	Slug         string        `json:"slug"`
	Description  *string       `json:"description,omitempty"`
	DeliveryDate *time.Time    `json:"delivery_date,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	Permissions  Permissions   `json:"permissions"`
	PhotoCount   int           `json:"photo_count"`
	Images       []PublicImage `json:"images"`
}
