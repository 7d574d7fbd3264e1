package main

import (
	"context"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/registry"
)

// Message attributes. Subscribers route on event_type, claim dedupe_key
// once, and can filter by gallery without decoding the payload.
const (
	attrEventID       = "event_id"
	attrDedupeKey     = "dedupe_key"
	attrEventType     = "event_type"
	attrAggregateType = "aggregate_type"
	attrAggregateID   = "aggregate_id"
	attrGalleryID     = "gallery_id"
	attrSlug          = "slug"
	attrOwnerID       = "owner_id"
	attrCreatedAt     = "created_at"
	attrSchemaVersion = "schema_version"
)

// buildMessage wraps the stored envelope for Pub/Sub. Every event of one
// gallery shares an ordering key; rows without a gallery fall back to their
// aggregate id.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	gallery := resolved.Gallery()
	envelope := resolved.Envelope

	key := gallery.Key()
	if key == "" {
		key = event.AggregateID.String()
	}

	dedupe := envelope.EventID
	if dedupe == "" {
		dedupe = event.ID.String()
	}

	attrs := map[string]string{
		attrEventID:       envelope.EventID,
		attrDedupeKey:     dedupe,
		attrEventType:     string(event.EventType),
		attrAggregateType: string(event.AggregateType),
		attrAggregateID:   event.AggregateID.String(),
		attrCreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		attrSchemaVersion: strconv.Itoa(envelope.Version),
	}
	if gallery.GroupID != uuid.Nil {
		attrs[attrGalleryID] = gallery.GroupID.String()
	}
	if gallery.Slug != "" {
		attrs[attrSlug] = gallery.Slug
	}
	owner := gallery.OwnerID
	if owner == uuid.Nil && envelope.Actor != nil {
		owner = envelope.Actor.OwnerID
	}
	if owner != uuid.Nil {
		attrs[attrOwnerID] = owner.String()
	}

	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: key,
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{pub: p}
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.pub.Publish(ctx, msg)
}

func (g gcpPublisher) ResumePublish(orderingKey string) {
	g.pub.ResumePublish(orderingKey)
}
