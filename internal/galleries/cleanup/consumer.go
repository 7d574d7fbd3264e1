package cleanup

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

const (
	attrEventID   = "event_id"
	attrDedupeKey = "dedupe_key"
	attrEventType = "event_type"
	attrSlug      = "slug"
)

type objectSweeper interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, paths []string) error
}

type orphanRecorder interface {
	Record(ctx context.Context, paths []string, reason enums.OrphanReason, cause error) error
}

type eventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Consumer sweeps objects left under a gallery's storage prefix after the
// gallery_deleted event is published. Only objects written before the
// deletion are touched, so a gallery republished under the same slug is safe.
type Consumer struct {
	store        objectSweeper
	orphans      orphanRecorder
	guard        eventGuard
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewConsumer(store objectSweeper, orphans orphanRecorder, guard eventGuard, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if orphans == nil {
		return nil, errors.New("orphan recorder is required")
	}
	if guard == nil {
		return nil, errors.New("event guard is required")
	}
	if subscription == nil {
		return nil, errors.New("gallery cleanup subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		store:        store,
		orphans:      orphans,
		guard:        guard,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
	// swept counts the objects removed, or recorded as orphans, for this message.
	swept int
}

var (
	ack  = processResult{ack: true}
	nack = processResult{nack: true}
)

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes[attrEventType]
	eventID := msg.Attributes[attrDedupeKey]
	if eventID == "" {
		eventID = msg.Attributes[attrEventID]
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
		"event_id":   eventID,
	})

	if eventType != string(enums.EventGalleryDeleted) {
		c.logg.Debug(logCtx, "skipping gallery event")
		return ack
	}
	if strings.TrimSpace(eventID) == "" {
		c.logg.Warn(logCtx, "gallery_deleted message without event id")
		return ack
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if errors.Is(err, outbox.ErrUnsupportedVersion) {
		// a newer replica can read it
		c.logg.Warn(logCtx, "gallery_deleted envelope from a newer build")
		return nack
	}
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event envelope", err)
		return ack
	}
	var event payloads.GalleryDeletedEvent
	if err := envelope.DecodeData(&event); err != nil {
		c.logg.Error(logCtx, "failed to decode gallery_deleted payload", err)
		return ack
	}
	if event.OwnerID == uuid.Nil || strings.TrimSpace(event.Slug) == "" {
		c.logg.Warn(logCtx, "gallery_deleted payload missing owner or slug")
		return ack
	}
	if slug, ok := msg.Attributes[attrSlug]; ok && slug != event.Slug {
		c.logg.Warn(c.logg.WithField(logCtx, "attribute_slug", slug), "gallery_deleted slug attribute does not match payload")
		return ack
	}
	logCtx = c.logg.WithSlug(c.logg.WithOwnerID(logCtx, event.OwnerID.String()), event.Slug)

	claimed, err := c.guard.Claim(logCtx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "failed to claim event", err)
		return nack
	}
	if !claimed {
		c.logg.Info(logCtx, "gallery_deleted already handled")
		return ack
	}

	deletedAt := envelope.OccurredAt
	if deletedAt.IsZero() {
		deletedAt = msg.PublishTime
	}

	objects, err := c.store.List(logCtx, storage.GalleryPrefix(event.OwnerID.String(), event.Slug))
	if err != nil {
		c.logg.Error(logCtx, "failed to list gallery prefix", err)
		return c.retry(logCtx, eventID)
	}
	stale := writtenBefore(objects, deletedAt)
	if len(stale) == 0 {
		c.logg.Debug(logCtx, "no leftover gallery objects")
		return ack
	}

	logCtx = c.logg.WithField(logCtx, "objects", len(stale))
	if err := c.store.Remove(logCtx, stale); err != nil {
		c.logg.Warn(logCtx, "leftover gallery objects could not be removed")
		if recErr := c.orphans.Record(logCtx, stale, enums.OrphanReasonGalleryDelete, err); recErr != nil {
			c.logg.Error(logCtx, "failed to record storage orphans", recErr)
			return c.retry(logCtx, eventID)
		}
		return processResult{ack: true, swept: len(stale)}
	}

	c.logg.Info(logCtx, "swept leftover gallery objects")
	return processResult{ack: true, swept: len(stale)}
}

func (c *Consumer) retry(ctx context.Context, eventID string) processResult {
	if err := c.guard.Release(ctx, eventID); err != nil {
		c.logg.Error(ctx, "failed to release event claim", err)
	}
	return nack
}

// writtenBefore keeps the objects whose name carries an upload timestamp
// (unix millis before the first "-") earlier than cutoff.
func writtenBefore(objects []string, cutoff time.Time) []string {
	out := make([]string, 0, len(objects))
	for _, object := range objects {
		stamp, _, ok := strings.Cut(path.Base(object), "-")
		if !ok {
			continue
		}
		millis, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		if cutoff.IsZero() || time.UnixMilli(millis).Before(cutoff) {
			out = append(out, object)
		}
	}
	return out
}
