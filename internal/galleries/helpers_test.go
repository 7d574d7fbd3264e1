package galleries

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	dbpkg "github.com/angelmondragon/shutterdesk-backend/pkg/db"
	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/outbox"
	"github.com/angelmondragon/shutterdesk-backend/pkg/security"
)

const testCDN = "https://cdn.test/"

var galleryTestDDL = []string{`
CREATE TABLE gallery_images (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  slug TEXT NOT NULL,
  description TEXT,
  delivery_date DATETIME,
  expires_at DATETIME,
  access_password_hash TEXT,
  allow_download INTEGER NOT NULL DEFAULT 0,
  allow_share INTEGER NOT NULL DEFAULT 0,
  watermark INTEGER NOT NULL DEFAULT 0,
  total_photo_count INTEGER NOT NULL,
  file_name TEXT NOT NULL,
  original_file_name TEXT NOT NULL,
  file_size INTEGER NOT NULL,
  content_type TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  public_url TEXT NOT NULL,
  sort_order INTEGER NOT NULL,
  is_cover_image INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (group_id, sort_order)
);`,
	`CREATE UNIQUE INDEX ux_gallery_images_cover_slug ON gallery_images (slug) WHERE is_cover_image;`,
	`CREATE TABLE gallery_access_stats (
  group_id TEXT PRIMARY KEY,
  slug TEXT NOT NULL,
  view_count INTEGER NOT NULL DEFAULT 0,
  download_count INTEGER NOT NULL DEFAULT 0,
  last_viewed_at DATETIME
);`,
	`CREATE VIEW gallery_overview AS
SELECT
  gi.group_id,
  gi.owner_id,
  gi.title,
  gi.slug,
  gi.description,
  gi.delivery_date,
  gi.expires_at,
  (gi.access_password_hash IS NOT NULL) AS has_password,
  gi.allow_download,
  gi.allow_share,
  gi.watermark,
  gi.public_url AS cover_url,
  gi.total_photo_count AS photo_count,
  (SELECT SUM(x.file_size) FROM gallery_images x WHERE x.group_id = gi.group_id) AS total_size_bytes,
  COALESCE(s.view_count, 0) AS view_count,
  COALESCE(s.download_count, 0) AS download_count,
  s.last_viewed_at,
  gi.created_at
FROM gallery_images gi
LEFT JOIN gallery_access_stats s ON s.group_id = gi.group_id
WHERE gi.is_cover_image;`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE storage_orphans (
  id TEXT PRIMARY KEY,
  path TEXT NOT NULL,
  reason TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME,
  resolved_at DATETIME
);`,
}

func setupGalleryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	for _, stmt := range galleryTestDDL {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// memStore is an in-memory object store with failure injection.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failPut   map[string]error
	removeErr error
	delay     func(path string) time.Duration

	inFlight    int32
	maxInFlight int32
	removeCalls int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failPut: map[string]error{}}
}

func (s *memStore) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&s.maxInFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&s.maxInFlight, prev, cur) {
			break
		}
	}
	if s.delay != nil {
		if d := s.delay(path); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for suffix, failErr := range s.failPut {
		if strings.HasSuffix(path, suffix) {
			return "", failErr
		}
	}
	s.objects[path] = data
	return testCDN + path, nil
}

func (s *memStore) Remove(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func fileOf(name, body string) SourceFile {
	return SourceFile{
		Name:        name,
		Size:        int64(len(body)),
		ContentType: "image/jpeg",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func filesOf(names ...string) []SourceFile {
	out := make([]SourceFile, len(names))
	for i, n := range names {
		out[i] = fileOf(n, "bytes-of-"+n)
	}
	return out
}

var errInjected = errors.New("injected failure")

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    64,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

// harness wires the full pipeline against sqlite and memStore.
type harness struct {
	t         *testing.T
	db        *gorm.DB
	store     *memStore
	repo      *Repository
	orphans   *OrphanRepository
	slugs     *SlugAllocator
	executor  *Executor
	commit    *CommitCoordinator
	publisher *Publisher
	manager   *Manager
	cache     *PublicCache
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := setupGalleryTestDB(t)
	logg := logger.Nop()
	store := newMemStore()
	repo := NewRepository(conn)
	orphans := NewOrphanRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	hasher := security.NewHasher(testPasswordConfig)
	links := Links{PublicBaseURL: "https://studio.test", DeliveryPath: "gallery"}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewPublicCache(time.Minute)

	slugs, err := NewSlugAllocator(repo, nil, logg)
	require.NoError(t, err)
	executor, err := NewExecutor(store, time.Second, nil, logg)
	require.NoError(t, err)
	commit, err := NewCommitCoordinator(CommitParams{
		DB:      dbpkg.FromGorm(conn),
		Repo:    repo,
		Outbox:  outboxSvc,
		Store:   store,
		Orphans: orphans,
		Hasher:  hasher,
		Links:   links,
		Logger:  logg,
	})
	require.NoError(t, err)
	commit.now = clock.Now
	publisher, err := NewPublisher(PublisherParams{
		Slugs:    slugs,
		Executor: executor,
		Commit:   commit,
		MaxFiles: 50,
		Logger:   logg,
	})
	require.NoError(t, err)
	manager, err := NewManager(ManagerParams{
		DB:       dbpkg.FromGorm(conn),
		Repo:     repo,
		Outbox:   outboxSvc,
		Store:    store,
		Orphans:  orphans,
		Verifier: hasher,
		Cache:    cache,
		Links:    links,
		Logger:   logg,
	})
	require.NoError(t, err)

	return &harness{
		t:         t,
		db:        conn,
		store:     store,
		repo:      repo,
		orphans:   orphans,
		slugs:     slugs,
		executor:  executor,
		commit:    commit,
		publisher: publisher,
		manager:   manager,
		cache:     cache,
		clock:     clock,
	}
}

func (h *harness) publish(ownerID uuid.UUID, title string, files ...string) *PublishResult {
	h.t.Helper()
	out, err := h.publisher.Publish(context.Background(), PublishRequest{
		OwnerID:  ownerID,
		Metadata: Metadata{Title: title},
		Files:    filesOf(files...),
	}, nil)
	require.NoError(h.t, err)
	return out
}

func (h *harness) rows(slug string) []models.GalleryImage {
	h.t.Helper()
	var rows []models.GalleryImage
	require.NoError(h.t, h.db.Where("slug = ?", slug).Order("sort_order ASC").Find(&rows).Error)
	return rows
}

func (h *harness) outboxEvents() []models.OutboxEvent {
	h.t.Helper()
	var rows []models.OutboxEvent
	require.NoError(h.t, h.db.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (h *harness) pendingOrphans() []models.StorageOrphan {
	h.t.Helper()
	rows, err := h.orphans.ListPending(context.Background(), 100, 0)
	require.NoError(h.t, err)
	return rows
}
