package galleries

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

const fallbackSlug = "gallery"

// letterFolds transliterates lowercase letters that have no NFD decomposition.
var letterFolds = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"ł", "l",
	"đ", "d",
	"ð", "d",
	"þ", "th",
	"ħ", "h",
	"ı", "i",
)

// Slugify lowercases title, strips diacritics, transliterates the letters in
// letterFolds and collapses every run of characters outside [a-z0-9] into a
// single hyphen.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	folded = letterFolds.Replace(strings.ToLower(folded))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}

type slugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// SlugReserver holds a short-lived claim on a slug between allocation and commit.
type SlugReserver interface {
	Reserve(ctx context.Context, slug string) (token string, ok bool, err error)
	Release(ctx context.Context, slug, token string) error
}

// SlugAllocator turns titles into slugs that no active gallery uses.
type SlugAllocator struct {
	repo     slugChecker
	reserver SlugReserver
	logg     *logger.Logger
}

// NewSlugAllocator builds an allocator. reserver may be nil, in which case
// concurrent publishes of the same title are only caught by the unique index.
func NewSlugAllocator(repo slugChecker, reserver SlugReserver, logg *logger.Logger) (*SlugAllocator, error) {
	if repo == nil {
		return nil, fmt.Errorf("gallery repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SlugAllocator{repo: repo, reserver: reserver, logg: logg}, nil
}

// Allocation is an allocated slug plus its reservation, if any.
type Allocation struct {
	Slug     string
	token    string
	reserver SlugReserver
}

// Release drops the reservation. Safe to call more than once.
func (a *Allocation) Release(ctx context.Context) error {
	if a == nil || a.reserver == nil || a.token == "" {
		return nil
	}
	token := a.token
	a.token = ""
	return a.reserver.Release(ctx, a.Slug, token)
}

// Allocate tries base, base-1, base-2, ... and returns the first candidate
// with no rows that could also be reserved.
func (a *SlugAllocator) Allocate(ctx context.Context, title string) (*Allocation, error) {
	base := Slugify(title)
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := base
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d", base, n)
		}

		exists, err := a.repo.SlugExists(ctx, candidate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check slug availability")
		}
		if exists {
			continue
		}

		alloc := &Allocation{Slug: candidate}
		if a.reserver != nil {
			token, ok, err := a.reserver.Reserve(ctx, candidate)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve slug")
			}
			if !ok {
				continue
			}
			alloc.token = token
			alloc.reserver = a.reserver
		}

		logCtx := a.logg.WithFields(ctx, map[string]any{"slug": candidate, "collisions": n})
		a.logg.Info(logCtx, "gallery slug allocated")
		return alloc, nil
	}
}

type slugReservationStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
	SlugReservationKey(slug string) string
}

// RedisSlugReserver claims slugs with SETNX so two publishes racing on the
// same title end up with different slugs.
type RedisSlugReserver struct {
	store    slugReservationStore
	ttl      time.Duration
	newToken func() string
}

func NewRedisSlugReserver(store slugReservationStore, ttl time.Duration) *RedisSlugReserver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisSlugReserver{store: store, ttl: ttl, newToken: uuid.NewString}
}

func (r *RedisSlugReserver) Reserve(ctx context.Context, slug string) (string, bool, error) {
	token := r.newToken()
	ok, err := r.store.SetNX(ctx, r.store.SlugReservationKey(slug), token, r.ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisSlugReserver) Release(ctx context.Context, slug, token string) error {
	_, err := r.store.ReleaseIfOwner(ctx, r.store.SlugReservationKey(slug), token)
	return err
}
