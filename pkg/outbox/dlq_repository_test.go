package outbox

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
)

func setupDLQTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := setupOutboxTestDB(t)
	ddl := `
CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func dlqEntry(eventID uuid.UUID, reason enums.OutboxDLQErrorReason, msg string, attempts int) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventGalleryDeleted,
		AggregateType: enums.AggregateGallery,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  attempts,
	}
}

func TestDLQRepositoryReplacesEntryForRequeuedEvent(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)
	eventID := uuid.New()

	require.NoError(t, repo.InsertTx(db, dlqEntry(eventID, enums.OutboxDLQReasonUnroutable, "no topic", 0)))
	require.NoError(t, repo.InsertTx(db, dlqEntry(eventID, enums.OutboxDLQReasonMaxAttempts, "unavailable", 10)))

	var rows []models.OutboxDLQ
	require.NoError(t, db.Find(&rows, "event_id = ?", eventID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, rows[0].ErrorReason)
	assert.Equal(t, 10, rows[0].AttemptCount)
	require.NotNil(t, rows[0].ErrorMessage)
	assert.Equal(t, "unavailable", *rows[0].ErrorMessage)
}

func TestDLQRepositoryTruncatesOnCharacterBoundary(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)
	eventID := uuid.New()

	// 'é' is two bytes, so an odd prefix pushes the cut into a character.
	long := "x" + strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, repo.InsertTx(db, dlqEntry(eventID, enums.OutboxDLQReasonNonRetryable, long, 1)))

	var row models.OutboxDLQ
	require.NoError(t, db.First(&row, "event_id = ?", eventID).Error)
	require.NotNil(t, row.ErrorMessage)
	assert.LessOrEqual(t, len(*row.ErrorMessage), maxDLQErrorLen)
	assert.True(t, utf8.ValidString(*row.ErrorMessage))
	assert.True(t, strings.HasPrefix(long, *row.ErrorMessage))
}

func TestDLQRepositoryRejectsInvalidEntries(t *testing.T) {
	db := setupDLQTestDB(t)
	repo := NewDLQRepository(db)

	assert.Error(t, repo.InsertTx(nil, dlqEntry(uuid.New(), enums.OutboxDLQReasonMaxAttempts, "x", 1)))
	assert.Error(t, repo.InsertTx(db, dlqEntry(uuid.Nil, enums.OutboxDLQReasonMaxAttempts, "x", 1)))
	assert.Error(t, repo.InsertTx(db, dlqEntry(uuid.New(), enums.OutboxDLQErrorReason("gave_up"), "x", 1)))
}
