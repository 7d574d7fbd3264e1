package galleries

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shutterdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/metrics"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shutterdesk-backend/pkg/security"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

type outcomeRecorder struct {
	outcomes []string
}

func (o *outcomeRecorder) ObservePublish(outcome string, d time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func TestPublishCommitsRowsAndEvent(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()

	out := h.publish(owner, "Wedding Smith", "a.jpg", "b.jpg", "c.jpg")

	require.Equal(t, "wedding-smith", out.Slug)
	require.Equal(t, "https://studio.test/gallery/wedding-smith", out.GalleryURL)
	require.Equal(t, 3, out.PhotoCount)
	require.Empty(t, out.Password)

	rows := h.rows("wedding-smith")
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Equal(t, out.GroupID, row.GroupID)
		require.Equal(t, owner, row.OwnerID)
		require.Equal(t, "Wedding Smith", row.Title)
		require.Equal(t, i+1, row.SortOrder)
		require.Equal(t, i == 0, row.IsCoverImage)
		require.Equal(t, 3, row.TotalPhotoCount)
		require.Nil(t, row.AccessPasswordHash)
		require.True(t, strings.HasPrefix(row.StoragePath, storage.GalleryPrefix(owner.String(), "wedding-smith")))
		require.Equal(t, testCDN+row.StoragePath, row.PublicURL)
	}
	require.Equal(t, "a.jpg", rows[0].OriginalFileName)
	require.Equal(t, "c.jpg", rows[2].OriginalFileName)

	objects, err := h.store.List(context.Background(), storage.GalleryPrefix(owner.String(), "wedding-smith"))
	require.NoError(t, err)
	require.Len(t, objects, 3)

	events := h.outboxEvents()
	require.Len(t, events, 1)
	require.Equal(t, enums.EventGalleryPublished, events[0].EventType)
	require.Equal(t, out.GroupID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var data payloads.GalleryPublishedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "wedding-smith", data.Slug)
	require.Equal(t, 3, data.PhotoCount)
	require.Equal(t, rows[0].PublicURL, data.CoverURL)
	require.False(t, data.Protected)
}

func TestPublishSameTitleGetsNextSlug(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()

	first := h.publish(owner, "Wedding Smith", "a.jpg")
	second := h.publish(owner, "Wedding Smith", "b.jpg", "c.jpg")
	third := h.publish(uuid.New(), "wedding   smith!", "d.jpg")

	require.Equal(t, "wedding-smith", first.Slug)
	require.Equal(t, "wedding-smith-1", second.Slug)
	require.Equal(t, "wedding-smith-2", third.Slug)
	require.NotEqual(t, first.GroupID, second.GroupID)

	require.Len(t, h.rows("wedding-smith"), 1)
	require.Len(t, h.rows("wedding-smith-1"), 2)
	require.Len(t, h.rows("wedding-smith-2"), 1)
}

func TestPublishUploadFailureLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	recorder := &outcomeRecorder{}
	h.publisher.metrics = recorder
	h.store.failPut["-3-c.jpg"] = errInjected

	out, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID:  uuid.New(),
		Metadata: Metadata{Title: "Beach Day"},
		Files:    filesOf("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"),
	}, nil)

	require.Nil(t, out)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Contains(t, err.Error(), "c.jpg")
	require.ErrorIs(t, err, errInjected)

	require.Empty(t, h.rows("beach-day"))
	require.Zero(t, h.store.count())
	require.Empty(t, h.outboxEvents())
	require.Empty(t, h.pendingOrphans())
	require.Equal(t, []string{metrics.OutcomeUploadFailed}, recorder.outcomes)
}

func TestPublishUploadFailureRecordsOrphansWhenCleanupFails(t *testing.T) {
	h := newHarness(t)
	h.store.failPut["-2-b.jpg"] = errInjected
	h.store.removeErr = errInjected

	_, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID:  uuid.New(),
		Metadata: Metadata{Title: "Beach Day"},
		Files:    filesOf("a.jpg", "b.jpg", "c.jpg"),
	}, nil)
	require.Error(t, err)

	orphans := h.pendingOrphans()
	require.Len(t, orphans, 3)
	for _, o := range orphans {
		require.Equal(t, enums.OrphanReasonUploadAbandoned, o.Reason)
		require.NotNil(t, o.LastError)
	}
	require.Empty(t, h.rows("beach-day"))
}

func TestPublishReportsProgressBands(t *testing.T) {
	h := newHarness(t)

	var got []Progress
	names := make([]string, 12)
	for i := range names {
		names[i] = "img" + string(rune('a'+i)) + ".jpg"
	}
	_, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID:  uuid.New(),
		Metadata: Metadata{Title: "Progress"},
		Files:    filesOf(names...),
	}, func(p Progress) { got = append(got, p) })
	require.NoError(t, err)

	want := []Progress{
		{Stage: StageAllocating, Percent: 0, Done: 0, Total: 12},
		{Stage: StageAllocating, Percent: 20, Done: 0, Total: 12},
		{Stage: StageUploading, Percent: 45, Done: 5, Total: 12},
		{Stage: StageUploading, Percent: 70, Done: 10, Total: 12},
		{Stage: StageUploading, Percent: 80, Done: 12, Total: 12},
		{Stage: StageCommitting, Percent: 80, Done: 12, Total: 12},
		{Stage: StageDone, Percent: 100, Done: 12, Total: 12},
	}
	require.Equal(t, want, got)
	for i := 1; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i].Percent, got[i-1].Percent)
	}
}

func TestPublishGeneratesAccessPassword(t *testing.T) {
	h := newHarness(t)

	out, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID: uuid.New(),
		Metadata: Metadata{
			Title:            "Private",
			GeneratePassword: true,
			Permissions:      Permissions{AllowDownload: true},
		},
		Files: filesOf("a.jpg", "b.jpg"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, out.Password, generatedPasswordLength)

	rows := h.rows("private")
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].AccessPasswordHash)
	require.Equal(t, *rows[0].AccessPasswordHash, *rows[1].AccessPasswordHash)
	require.True(t, rows[1].Permissions.AllowDownload)

	hasher := security.NewHasher(testPasswordConfig)
	ok, err := hasher.Verify(out.Password, *rows[0].AccessPasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPublishKeepsExplicitPassword(t *testing.T) {
	h := newHarness(t)

	out, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID:  uuid.New(),
		Metadata: Metadata{Title: "Private", AccessPassword: "letmein", GeneratePassword: true},
		Files:    filesOf("a.jpg"),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "letmein", out.Password)
}

func TestPublishValidation(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = "x.jpg"
	}
	empty := filesOf("a.jpg")
	empty[0].Size = 0

	cases := []struct {
		name string
		req  PublishRequest
		code pkgerrors.Code
	}{
		{"missing owner", PublishRequest{Metadata: Metadata{Title: "t"}, Files: filesOf("a.jpg")}, pkgerrors.CodeUnauthorized},
		{"blank title", PublishRequest{OwnerID: owner, Metadata: Metadata{Title: "  "}, Files: filesOf("a.jpg")}, pkgerrors.CodeValidation},
		{"long title", PublishRequest{OwnerID: owner, Metadata: Metadata{Title: strings.Repeat("a", 201)}, Files: filesOf("a.jpg")}, pkgerrors.CodeValidation},
		{"no files", PublishRequest{OwnerID: owner, Metadata: Metadata{Title: "t"}}, pkgerrors.CodeValidation},
		{"too many files", PublishRequest{OwnerID: owner, Metadata: Metadata{Title: "t"}, Files: filesOf(tooMany...)}, pkgerrors.CodeValidation},
		{"empty file", PublishRequest{OwnerID: owner, Metadata: Metadata{Title: "t"}, Files: empty}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		_, err := h.publisher.Publish(context.Background(), tc.req, nil)
		require.Truef(t, pkgerrors.IsCode(err, tc.code), "%s: expected %s, got %v", tc.name, tc.code, err)
	}
	require.Zero(t, h.store.count())
	require.Empty(t, h.outboxEvents())
}

func TestPublishStampsObjectsAfterSlugAllocation(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	calls := 0
	h.publisher.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	owner := uuid.New()

	h.publish(owner, "Stamp", "a.jpg")

	rows := h.rows("stamp")
	require.Len(t, rows, 1)
	name := fmt.Sprintf("%d-1-a.jpg", base.Add(2*time.Second).UnixMilli())
	require.Equal(t, storage.ObjectPath(owner.String(), "stamp", name), rows[0].StoragePath)
}
