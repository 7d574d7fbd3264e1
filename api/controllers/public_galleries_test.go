package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/shutterdesk-backend/api/middleware"
	"github.com/angelmondragon/shutterdesk-backend/internal/galleries"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

type stubPublicReader struct {
	slug     string
	password string
	gallery  *galleries.PublicGallery
	err      error
}

func (s *stubPublicReader) GetPublic(ctx context.Context, slug, password string) (*galleries.PublicGallery, error) {
	s.slug = slug
	s.password = password
	return s.gallery, s.err
}

func TestPublicGalleryFetchPassesPassword(t *testing.T) {
	svc := &stubPublicReader{gallery: &galleries.PublicGallery{Slug: "wedding-smith", PhotoCount: 1}}
	handler := PublicGalleryFetch(svc, nil)
	req := withSlug(httptest.NewRequest(http.MethodGet, "/api/public/galleries/wedding-smith", nil), "wedding-smith")
	req.Header.Set(middleware.GalleryPasswordHeader, "s3cret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.slug != "wedding-smith" || svc.password != "s3cret" {
		t.Fatalf("unexpected lookup %q %q", svc.slug, svc.password)
	}
	if rec.Header().Get("Cache-Control") != "private, no-store" {
		t.Fatalf("expected no-store cache header, got %q", rec.Header().Get("Cache-Control"))
	}
}

func TestPublicGalleryFetchErrors(t *testing.T) {
	cases := []struct {
		code pkgerrors.Code
		want int
	}{
		{pkgerrors.CodeUnauthorized, http.StatusUnauthorized},
		{pkgerrors.CodeNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		handler := PublicGalleryFetch(&stubPublicReader{err: pkgerrors.New(tc.code, "nope")}, nil)
		req := withSlug(httptest.NewRequest(http.MethodGet, "/api/public/galleries/x", nil), "x")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.code, tc.want, rec.Code)
		}
	}
}
