package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, createdAt time.Time, attempts int, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventGalleryPublished,
		AggregateType: enums.AggregateGallery,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&row).Error)
	return row.ID
}

func TestRepositoryFetchUnpublishedSkipsExhaustedRows(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	published := base

	first := seedEvent(t, db, base, 0, nil)
	second := seedEvent(t, db, base.Add(time.Minute), 2, nil)
	seedEvent(t, db, base.Add(2*time.Minute), 5, nil)
	seedEvent(t, db, base.Add(3*time.Minute), 0, &published)

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first, rows[0].ID)
	assert.Equal(t, second, rows[1].ID)
}

func TestRepositoryMarkTransitions(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	failing := seedEvent(t, db, base, 0, nil)
	done := seedEvent(t, db, base.Add(time.Minute), 0, nil)
	terminal := seedEvent(t, db, base.Add(2*time.Minute), 1, nil)

	require.NoError(t, repo.MarkFailedTx(db, failing, errors.New("unavailable")))
	require.NoError(t, repo.MarkPublishedTx(db, done))
	require.NoError(t, repo.MarkTerminalTx(db, terminal, errors.New("bad payload"), 10))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", failing).Error)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "unavailable", *got.LastError)

	require.NoError(t, db.First(&got, "id = ?", done).Error)
	assert.NotNil(t, got.PublishedAt)

	require.NoError(t, db.First(&got, "id = ?", terminal).Error)
	assert.Equal(t, 10, got.AttemptCount)

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, failing, rows[0].ID)
}

func TestRepositoryRequiresTransaction(t *testing.T) {
	repo := NewRepository(nil)
	_, err := repo.FetchUnpublishedForPublish(nil, 1, 1)
	assert.Error(t, err)
	assert.Error(t, repo.MarkPublishedTx(nil, uuid.New()))
	assert.Error(t, repo.MarkFailedTx(nil, uuid.New(), errors.New("x")))
	_, err = repo.DeletePublishedBefore(context.Background(), nil, time.Now(), 1)
	assert.Error(t, err)
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test"}))
	groupID := uuid.New()
	ownerID := uuid.New()

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventGalleryPublished,
		AggregateType: enums.AggregateGallery,
		AggregateID:   groupID,
		Actor:         &ActorRef{OwnerID: ownerID},
		Data:          payloads.GalleryPublishedEvent{GroupID: groupID, Slug: "beach-day", PhotoCount: 4},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "aggregate_id = ?", groupID).Error)
	assert.Equal(t, enums.EventGalleryPublished, row.EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ownerID, envelope.Actor.OwnerID)

	var data payloads.GalleryPublishedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "beach-day", data.Slug)
	assert.Equal(t, 4, data.PhotoCount)
}

func TestServiceEmitRejectsUnknownEventType(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.OutboxEventType("order_created"),
		AggregateType: enums.AggregateGallery,
		AggregateID:   uuid.New(),
	})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventGalleryDeleted})
	assert.Error(t, err)
}
