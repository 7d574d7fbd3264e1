package payloads

import "github.com/google/uuid"

// GalleryPublishedEvent is emitted in the same transaction as the bulk image insert.
type GalleryPublishedEvent struct {
	GroupID    uuid.UUID `json:"groupId"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	PhotoCount int       `json:"photoCount"`
	GalleryURL string    `json:"galleryUrl"`
	CoverURL   string    `json:"coverUrl"`
	HasExpiry  bool      `json:"hasExpiry"`
	Protected  bool      `json:"protected"`
}

// GalleryDeletedEvent is emitted when every row of a gallery is removed.
type GalleryDeletedEvent struct {
	GroupID              uuid.UUID `json:"groupId"`
	OwnerID              uuid.UUID `json:"ownerId"`
	Slug                 string    `json:"slug"`
	PhotoCount           int       `json:"photoCount"`
	StorageCleanupFailed bool      `json:"storageCleanupFailed"`
}

// GalleryImageDeletedEvent is emitted after a single image is removed and the
// remaining images are renumbered.
type GalleryImageDeletedEvent struct {
	GroupID        uuid.UUID  `json:"groupId"`
	OwnerID        uuid.UUID  `json:"ownerId"`
	ImageID        uuid.UUID  `json:"imageId"`
	Slug           string     `json:"slug"`
	ImageURL       string     `json:"imageUrl"`
	RemainingCount int        `json:"remainingCount"`
	NewCoverID     *uuid.UUID `json:"newCoverId,omitempty"`
}
