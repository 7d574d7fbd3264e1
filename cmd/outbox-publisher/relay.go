package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/registry"
)

const (
	resultPublished  = "published"
	resultRetry      = "retry"
	resultHeld       = "held"
	resultDeadLetter = "dead_letter"
)

type batchStats struct {
	fetched      int
	published    int
	retried      int
	held         int
	deadLettered int
}

// progressed reports whether any row left the pending set.
func (b batchStats) progressed() bool {
	return b.published+b.deadLettered > 0
}

func (b batchStats) fields() map[string]any {
	return map[string]any{
		"fetched":       b.fetched,
		"published":     b.published,
		"retried":       b.retried,
		"held":          b.held,
		"dead_lettered": b.deadLettered,
	}
}

// processBatch relays one locked batch in commit order. Once an event of a
// gallery fails, the gallery's later events in the batch are held back so a
// gallery_deleted never reaches subscribers ahead of the events before it.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		stats.fetched = len(events)

		held := make(map[string]struct{})
		for _, event := range events {
			if err := s.relay(ctx, tx, event, held, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, held map[string]struct{}, stats *batchStats) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		stats.deadLettered++
		return s.deadLetter(ctx, tx, event, nil, deadLetterReason(err), err)
	}

	msg := buildMessage(event, resolved)
	fields := s.eventFields(event, resolved)
	if _, ok := held[msg.OrderingKey]; ok {
		stats.held++
		s.count(event, resultHeld)
		s.logg.Debug(s.logg.WithFields(ctx, fields), "gallery event held behind an earlier failure")
		return nil
	}

	err = s.publish(ctx, resolved.Descriptor.Topic, msg)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		stats.published++
		s.count(event, resultPublished)
		s.logg.Info(s.logg.WithFields(ctx, fields), "gallery event published")
		return nil
	}

	held[msg.OrderingKey] = struct{}{}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		stats.deadLettered++
		return s.deadLetter(ctx, tx, event, resolved, deadLetterReason(err), err)
	}

	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		stats.deadLettered++
		return s.deadLetter(ctx, tx, event, resolved, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	fields["attempt_count"] = attempt
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "gallery event publish failed")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	stats.retried++
	s.count(event, resultRetry)
	return nil
}

// publish waits for the broker to acknowledge msg. An ordered publisher
// pauses the key after a failure, so it is resumed for the next attempt.
func (s *Service) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w: no publisher for topic %s", registry.ErrUnroutable, topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w: publisher returned no result for topic %s", registry.ErrUnroutable, topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := s.eventFields(event, resolved)
	fields["error_reason"] = reason
	fields["replayable"] = reason.Replayable()
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "gallery event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.count(event, resultDeadLetter)
	return nil
}

func deadLetterReason(err error) enums.OutboxDLQErrorReason {
	switch {
	case errors.Is(err, registry.ErrMalformedPayload):
		return enums.OutboxDLQReasonMalformedPayload
	case errors.Is(err, registry.ErrUnroutable):
		return enums.OutboxDLQReasonUnroutable
	default:
		return enums.OutboxDLQReasonNonRetryable
	}
}

func (s *Service) count(event models.OutboxEvent, result string) {
	if s.metrics != nil {
		s.metrics.Inc(string(event.EventType), result)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["topic"] = resolved.Descriptor.Topic
	if resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
	}
	gallery := resolved.Gallery()
	if gallery.Slug != "" {
		fields["slug"] = gallery.Slug
	}
	if key := gallery.Key(); key != "" {
		fields["gallery_id"] = key
	}
	return fields
}
