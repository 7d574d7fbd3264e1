package galleries

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
)

func TestPublicCacheCopiesEntries(t *testing.T) {
	t.Parallel()

	cache := NewPublicCache(time.Minute)
	rows := []models.GalleryImage{{ID: uuid.New(), Slug: "beach", SortOrder: 1}}
	cache.Set("beach", rows)
	rows[0].SortOrder = 99

	got, ok := cache.Get("beach")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got[0].SortOrder != 1 {
		t.Fatalf("cache entry was mutated through the caller's slice")
	}
	got[0].SortOrder = 42
	again, _ := cache.Get("beach")
	if again[0].SortOrder != 1 {
		t.Fatalf("cache entry was mutated through a returned slice")
	}

	cache.Invalidate(context.Background(), "beach")
	if _, ok := cache.Get("beach"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestPublicCacheSkipsEmptyAndNil(t *testing.T) {
	t.Parallel()

	cache := NewPublicCache(0)
	cache.Set("empty", nil)
	if cache.Len() != 0 {
		t.Fatal("empty results must not be cached")
	}

	var disabled *PublicCache
	disabled.Set("x", []models.GalleryImage{{}})
	disabled.Invalidate(context.Background(), "x")
	if _, ok := disabled.Get("x"); ok || disabled.Len() != 0 {
		t.Fatal("nil cache must behave as always-miss")
	}
}

func TestPublicCacheExpires(t *testing.T) {
	t.Parallel()

	cache := NewPublicCache(10 * time.Millisecond)
	cache.Set("beach", []models.GalleryImage{{ID: uuid.New()}})
	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("beach"); ok {
		t.Fatal("expected entry to expire")
	}
}

// memBus delivers published payloads to in-process subscribers.
type memBus struct {
	mu         sync.Mutex
	subs       map[string][]func(string)
	subscribed chan struct{}
	failNext   error
	publishErr error
}

func newMemBus() *memBus {
	return &memBus{subs: map[string][]func(string){}, subscribed: make(chan struct{}, 4)}
}

func (b *memBus) Publish(_ context.Context, channel, payload string) error {
	b.mu.Lock()
	fns := append([]func(string){}, b.subs[channel]...)
	err := b.publishErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	for _, fn := range fns {
		fn(payload)
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string, fn func(string)) error {
	b.mu.Lock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		b.mu.Unlock()
		b.subscribed <- struct{}{}
		return err
	}
	b.subs[channel] = append(b.subs[channel], fn)
	b.mu.Unlock()
	b.subscribed <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func waitSubscribed(t *testing.T, bus *memBus) {
	t.Helper()
	select {
	case <-bus.subscribed:
	case <-time.After(3 * time.Second):
		t.Fatal("listener never subscribed")
	}
}

func TestPublicCacheInvalidationReachesOtherReplicas(t *testing.T) {
	bus := newMemBus()
	replicaA, replicaB := NewPublicCache(time.Minute), NewPublicCache(time.Minute)
	replicaA.Broadcast(bus, "sd:channel:public-gallery", nil)
	replicaB.Broadcast(bus, "sd:channel:public-gallery", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- replicaB.Listen(ctx) }()
	waitSubscribed(t, bus)

	rows := []models.GalleryImage{{ID: uuid.New(), Slug: "wedding-smith"}}
	replicaA.Set("wedding-smith", rows)
	replicaB.Set("wedding-smith", rows)
	replicaB.Set("beach", rows)

	// replica A served the delete request
	replicaA.Invalidate(context.Background(), "wedding-smith")

	if _, ok := replicaA.Get("wedding-smith"); ok {
		t.Fatal("expected local eviction")
	}
	if _, ok := replicaB.Get("wedding-smith"); ok {
		t.Fatal("expected the other replica to evict the deleted gallery")
	}
	if _, ok := replicaB.Get("beach"); !ok {
		t.Fatal("unrelated galleries must stay cached")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Listen to stop on cancel, got %v", err)
	}
}

func TestPublicCacheFlushesWhenSubscriptionDrops(t *testing.T) {
	bus := newMemBus()
	bus.failNext = errors.New("redis connection reset")
	cache := NewPublicCache(time.Minute)
	cache.Broadcast(bus, "sd:channel:public-gallery", nil)
	cache.Set("wedding-smith", []models.GalleryImage{{ID: uuid.New()}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cache.Listen(ctx) }()
	waitSubscribed(t, bus)
	waitSubscribed(t, bus)

	if cache.Len() != 0 {
		t.Fatal("expected cache flushed after a lost subscription")
	}
}

func TestPublicCacheInvalidateSurvivesBusFailure(t *testing.T) {
	bus := newMemBus()
	bus.publishErr = errors.New("redis down")
	cache := NewPublicCache(time.Minute)
	cache.Broadcast(bus, "sd:channel:public-gallery", nil)
	cache.Set("beach", []models.GalleryImage{{ID: uuid.New()}})

	cache.Invalidate(context.Background(), "beach")
	if _, ok := cache.Get("beach"); ok {
		t.Fatal("local eviction must not depend on the bus")
	}
	if err := NewPublicCache(time.Minute).Listen(context.Background()); err == nil {
		t.Fatal("expected Listen to require a bus")
	}
}
