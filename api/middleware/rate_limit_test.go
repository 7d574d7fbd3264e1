package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func publicGalleryRouter(policy RateLimitPolicy, store rateLimiterStore) http.Handler {
	r := chi.NewRouter()
	r.With(RateLimit(policy, store, nil)).Get("/api/public/galleries/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func publicRequest(slug, ip, password string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/public/galleries/"+slug, nil)
	req.RemoteAddr = ip + ":5678"
	if password != "" {
		req.Header.Set(GalleryPasswordHeader, password)
	}
	return req
}

func assertRateLimited(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeRateLimit, payload.Error.Code)
	}
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	handler := publicGalleryRouter(NewRateLimitPolicy("public", time.Minute, 2, 2), newFakeRateStore())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitIPLimitTriggers(t *testing.T) {
	handler := publicGalleryRouter(NewRateLimitPolicy("public", time.Minute, 2, 0), newFakeRateStore())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", ""))
		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("expected success before limit, got %d", rec.Code)
			}
			continue
		}
		assertRateLimited(t, rec)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("wedding-smith", "5.6.7.8", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("other clients should not be throttled, got %d", rec.Code)
	}
}

func TestRateLimitPasswordAttemptsArePerSlug(t *testing.T) {
	store := newFakeRateStore()
	handler := publicGalleryRouter(NewRateLimitPolicy("public", time.Minute, 0, 1), store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", "guess-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first attempt should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", "guess-2"))
	assertRateLimited(t, rec)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("beach-day", "1.2.3.4", "guess-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("password attempts on another slug should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("requests without a password are not counted, got %d", rec.Code)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := publicGalleryRouter(NewRateLimitPolicy("public", time.Minute, 5, 0), store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", ""))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := publicGalleryRouter(NewRateLimitPolicy("public", 0, 1, 1), nil)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, publicRequest("wedding-smith", "1.2.3.4", "pw"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}
	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}
