package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/shutterdesk-backend/api/middleware"
	"github.com/angelmondragon/shutterdesk-backend/api/responses"
	"github.com/angelmondragon/shutterdesk-backend/internal/galleries"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

// PublicGalleryReader serves galleries to viewers.
type PublicGalleryReader interface {
	GetPublic(ctx context.Context, slug, password string) (*galleries.PublicGallery, error)
}

// PublicGalleryFetch returns the viewer projection of a gallery. Protected
// galleries need the access code in the X-Gallery-Password header.
func PublicGalleryFetch(svc PublicGalleryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery service unavailable"))
			return
		}

		gallery, err := svc.GetPublic(r.Context(), chi.URLParam(r, "slug"), r.Header.Get(middleware.GalleryPasswordHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Cache-Control", "private, no-store")
		responses.WriteSuccess(w, gallery)
	}
}
