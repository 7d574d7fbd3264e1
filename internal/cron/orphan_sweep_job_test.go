package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

type fakeOrphanRepo struct {
	rows        []models.StorageOrphan
	listErr     error
	lastLimit   int
	lastMax     int
	resolved    []uuid.UUID
	resolvedAt  time.Time
	failed      map[uuid.UUID]string
	markFailErr error
}

func (f *fakeOrphanRepo) ListPending(ctx context.Context, limit, maxAttempts int) ([]models.StorageOrphan, error) {
	f.lastLimit = limit
	f.lastMax = maxAttempts
	return f.rows, f.listErr
}

func (f *fakeOrphanRepo) MarkResolved(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	f.resolved = append(f.resolved, ids...)
	f.resolvedAt = at
	return nil
}

func (f *fakeOrphanRepo) MarkFailed(ctx context.Context, ids []uuid.UUID, cause error) error {
	if f.failed == nil {
		f.failed = map[uuid.UUID]string{}
	}
	for _, id := range ids {
		f.failed[id] = cause.Error()
	}
	return f.markFailErr
}

type fakeRemover struct {
	bad   map[string]bool
	calls [][]string
}

func (f *fakeRemover) Remove(ctx context.Context, paths []string) error {
	f.calls = append(f.calls, paths)
	for _, p := range paths {
		if f.bad[p] {
			return errors.New("remove " + p + ": access denied")
		}
	}
	return nil
}

type fakeItemCounter struct {
	counts map[string]int
}

func (f *fakeItemCounter) AddItems(job, outcome string, n int) {
	f.counts[job+"/"+outcome] += n
}

func orphanRows(paths ...string) []models.StorageOrphan {
	rows := make([]models.StorageOrphan, len(paths))
	for i, p := range paths {
		rows[i] = models.StorageOrphan{ID: uuid.New(), Path: p}
	}
	return rows
}

func newOrphanSweepJob(t *testing.T, repo *fakeOrphanRepo, store *fakeRemover, counter *fakeItemCounter) *orphanSweepJob {
	t.Helper()
	params := OrphanSweepJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		Store:      store,
	}
	if counter != nil {
		params.Metrics = counter
	}
	jobIface, err := NewOrphanSweepJob(params)
	if err != nil {
		t.Fatalf("NewOrphanSweepJob: %v", err)
	}
	job, ok := jobIface.(*orphanSweepJob)
	if !ok {
		t.Fatalf("expected orphanSweepJob, got %T", jobIface)
	}
	return job
}

func TestOrphanSweepRemovesBatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeOrphanRepo{rows: orphanRows("a/1.jpg", "a/2.jpg", "b/3.jpg")}
	store := &fakeRemover{}
	counter := &fakeItemCounter{counts: map[string]int{}}
	job := newOrphanSweepJob(t, repo, store, counter)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.lastLimit != orphanSweepBatchSize || repo.lastMax != orphanSweepMaxAttempts {
		t.Fatalf("unexpected list args limit=%d max=%d", repo.lastLimit, repo.lastMax)
	}
	if len(store.calls) != 1 || len(store.calls[0]) != 3 {
		t.Fatalf("expected a single batched remove, got %v", store.calls)
	}
	if len(repo.resolved) != 3 || !repo.resolvedAt.Equal(now) {
		t.Fatalf("expected 3 resolved at %s, got %d at %s", now, len(repo.resolved), repo.resolvedAt)
	}
	if counter.counts["orphan-sweep/resolved"] != 3 {
		t.Fatalf("unexpected counts %v", counter.counts)
	}
}

func TestOrphanSweepIsolatesFailingPaths(t *testing.T) {
	t.Parallel()

	repo := &fakeOrphanRepo{rows: orphanRows("a/1.jpg", "a/bad.jpg", "a/3.jpg")}
	store := &fakeRemover{bad: map[string]bool{"a/bad.jpg": true}}
	counter := &fakeItemCounter{counts: map[string]int{}}
	job := newOrphanSweepJob(t, repo, store, counter)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.calls) != 4 {
		t.Fatalf("expected batch plus three single removes, got %d calls", len(store.calls))
	}
	if len(repo.resolved) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(repo.resolved))
	}
	badID := repo.rows[1].ID
	if msg, ok := repo.failed[badID]; !ok || msg == "" {
		t.Fatalf("expected failure recorded for the bad path, got %v", repo.failed)
	}
	if counter.counts["orphan-sweep/failed"] != 1 || counter.counts["orphan-sweep/resolved"] != 2 {
		t.Fatalf("unexpected counts %v", counter.counts)
	}
}

func TestOrphanSweepErrors(t *testing.T) {
	t.Parallel()

	job := newOrphanSweepJob(t, &fakeOrphanRepo{listErr: errors.New("db down")}, &fakeRemover{}, nil)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}

	repo := &fakeOrphanRepo{rows: orphanRows("bad"), markFailErr: errors.New("update failed")}
	job = newOrphanSweepJob(t, repo, &fakeRemover{bad: map[string]bool{"bad": true}}, nil)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected mark error to surface")
	}

	empty := &fakeRemover{}
	job = newOrphanSweepJob(t, &fakeOrphanRepo{}, empty, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(empty.calls) != 0 {
		t.Fatal("nothing to sweep must not call storage")
	}
}
