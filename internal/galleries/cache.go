package galleries

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/angelmondragon/shutterdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

const (
	defaultPublicCacheTTL = 2 * time.Minute
	resubscribeDelay      = time.Second
)

// CacheBus fans invalidations out to every API replica.
type CacheBus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, fn func(payload string)) error
}

// PublicCache keeps recently viewed galleries in memory, keyed by slug.
// Each API process holds its own copy. With a bus attached, Invalidate also
// evicts the slug on every other replica; without one, or when a broadcast is
// lost, other replicas may serve the old rows until the TTL expires.
type PublicCache struct {
	items   *gocache.Cache
	bus     CacheBus
	channel string
	logg    *logger.Logger
}

func NewPublicCache(ttl time.Duration) *PublicCache {
	if ttl <= 0 {
		ttl = defaultPublicCacheTTL
	}
	return &PublicCache{items: gocache.New(ttl, 2*ttl)}
}

// Get returns a copy of the cached rows so callers cannot mutate the entry.
func (c *PublicCache) Get(slug string) ([]models.GalleryImage, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.items.Get(slug)
	if !ok {
		return nil, false
	}
	rows := v.([]models.GalleryImage)
	out := make([]models.GalleryImage, len(rows))
	copy(out, rows)
	return out, true
}

func (c *PublicCache) Set(slug string, rows []models.GalleryImage) {
	if c == nil || len(rows) == 0 {
		return
	}
	stored := make([]models.GalleryImage, len(rows))
	copy(stored, rows)
	c.items.SetDefault(slug, stored)
}

// Broadcast attaches the bus Invalidate publishes to and Listen reads from.
func (c *PublicCache) Broadcast(bus CacheBus, channel string, logg *logger.Logger) {
	if c == nil {
		return
	}
	c.bus, c.channel, c.logg = bus, channel, logg
}

// Invalidate evicts slug here and asks the other replicas to do the same.
func (c *PublicCache) Invalidate(ctx context.Context, slug string) {
	if c == nil {
		return
	}
	c.items.Delete(slug)
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, c.channel, slug); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithField(c.logg.WithSlug(ctx, slug), "error", err.Error()), "public cache invalidation not broadcast")
	}
}

// Listen applies invalidations from other replicas until ctx ends. Whenever
// the subscription has to be re-established the whole cache is dropped,
// since notices sent in the gap are gone.
func (c *PublicCache) Listen(ctx context.Context) error {
	if c == nil || c.bus == nil {
		return errors.New("public cache has no invalidation bus")
	}
	for {
		err := c.bus.Subscribe(ctx, c.channel, func(slug string) {
			c.items.Delete(slug)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.items.Flush()
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", errString(err)), "public cache subscription lost; cache flushed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *PublicCache) Len() int {
	if c == nil {
		return 0
	}
	return c.items.ItemCount()
}
