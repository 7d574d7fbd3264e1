package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type check constraint in Postgres.
type OutboxAggregateType string

const (
	AggregateGallery      OutboxAggregateType = "gallery"
	AggregateGalleryImage OutboxAggregateType = "gallery_image"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGallery,
	AggregateGalleryImage,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type check constraint in Postgres.
type OutboxEventType string

const (
	EventGalleryPublished    OutboxEventType = "gallery_published"
	EventGalleryDeleted      OutboxEventType = "gallery_deleted"
	EventGalleryImageDeleted OutboxEventType = "gallery_image_deleted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGalleryPublished,
	EventGalleryDeleted,
	EventGalleryImageDeleted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
