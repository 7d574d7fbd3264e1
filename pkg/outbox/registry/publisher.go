package registry

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

var (
	// ErrMalformedPayload marks rows whose envelope or payload does not decode.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnroutable marks rows no topic is registered for.
	ErrUnroutable = errors.New("unroutable event")
)

// GalleryRef names the gallery an event belongs to. Image events carry the
// gallery's group id, so every event of one gallery shares a Key.
type GalleryRef struct {
	GroupID uuid.UUID
	OwnerID uuid.UUID
	Slug    string
}

// Key orders and dedupes deliveries per gallery.
func (g GalleryRef) Key() string {
	if g.GroupID == uuid.Nil {
		return ""
	}
	return g.GroupID.String()
}

// Gallery extracts the gallery reference from the decoded payload.
func (r *ResolvedEvent) Gallery() GalleryRef {
	if r == nil {
		return GalleryRef{}
	}
	switch p := r.Payload.(type) {
	case *payloads.GalleryPublishedEvent:
		return GalleryRef{GroupID: p.GroupID, OwnerID: p.OwnerID, Slug: p.Slug}
	case *payloads.GalleryDeletedEvent:
		return GalleryRef{GroupID: p.GroupID, OwnerID: p.OwnerID, Slug: p.Slug}
	case *payloads.GalleryImageDeletedEvent:
		return GalleryRef{GroupID: p.GroupID, OwnerID: p.OwnerID, Slug: p.Slug}
	}
	return GalleryRef{}
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.GalleryEventsTopic == "" {
		return nil, fmt.Errorf("gallery events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.GalleryEventsTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventGalleryPublished,
			AggregateType:  enums.AggregateGallery,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.GalleryPublishedEvent{} },
		},
		{
			EventType:      enums.EventGalleryDeleted,
			AggregateType:  enums.AggregateGallery,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.GalleryDeletedEvent{} },
		},
		{
			EventType:      enums.EventGalleryImageDeleted,
			AggregateType:  enums.AggregateGalleryImage,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.GalleryImageDeletedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

// Topics lists every distinct topic the registry routes to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.entries))
	topics := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w: unsupported event type %s", ErrUnroutable, event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%w: aggregate mismatch: expected %s got %s", ErrUnroutable, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("%w: missing aggregate_id", ErrMalformedPayload))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s: %v", ErrMalformedPayload, event.EventType, err))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("%w: payload factory not configured for %s", ErrUnroutable, event.EventType))
	}
	if err := envelope.DecodeData(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s: %v", ErrMalformedPayload, event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
