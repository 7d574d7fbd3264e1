package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shutterdesk-backend/api/middleware"
	"github.com/angelmondragon/shutterdesk-backend/api/responses"
	"github.com/angelmondragon/shutterdesk-backend/api/validators"
	"github.com/angelmondragon/shutterdesk-backend/internal/galleries"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/pagination"
)

const (
	uploadFileField      = "files"
	maxDescriptionLength = 2000
	maxPasswordLength    = 128
	maxCursorLength      = 512
)

// GalleryPublisher runs the publishing pipeline for one upload.
type GalleryPublisher interface {
	Publish(ctx context.Context, req galleries.PublishRequest, onProgress galleries.ProgressFunc) (*galleries.PublishResult, error)
}

// GalleryManager lists and removes an owner's galleries.
type GalleryManager interface {
	List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*galleries.ListResult, error)
	PlanDeletion(ctx context.Context, ownerID uuid.UUID, slug string) (*galleries.DeletionIntent, error)
	DeleteGallery(ctx context.Context, req galleries.DeleteGalleryRequest) (*galleries.DeleteGalleryResult, error)
	DeleteImage(ctx context.Context, req galleries.DeleteImageRequest) (*galleries.DeleteImageResult, error)
}

type deleteImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,http_url,max=2048"`
	Confirm  bool   `json:"confirm"`
}

// GalleryPublish accepts a multipart upload and publishes it as a gallery.
func GalleryPublish(svc GalleryPublisher, limits validators.UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery publisher unavailable"))
			return
		}

		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		form, err := validators.ParseUploadForm(w, r, uploadFileField, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer form.RemoveAll()

		meta, err := metadataFromForm(form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		files := make([]galleries.SourceFile, 0, len(form.Files))
		for _, f := range form.Files {
			files = append(files, galleries.SourceFile{
				Name:        f.Name,
				Size:        f.Size,
				ContentType: f.ContentType,
				Open:        f.Open,
			})
		}

		ctx := r.Context()
		onProgress := func(p galleries.Progress) {
			if logg == nil {
				return
			}
			logg.Debug(logg.WithFields(ctx, map[string]any{
				"stage":   string(p.Stage),
				"percent": p.Percent,
				"done":    p.Done,
				"total":   p.Total,
			}), "gallery.publish.progress")
		}

		result, err := svc.Publish(ctx, galleries.PublishRequest{
			OwnerID:  ownerID,
			Metadata: meta,
			Files:    files,
		}, onProgress)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// GalleryList returns the owner's galleries newest first.
func GalleryList(svc GalleryManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery manager unavailable"))
			return
		}

		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		q := validators.QueryOf(r)
		limit, err := q.Int("limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := q.Token("cursor", maxCursorLength)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), ownerID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WritePage(w, result.Galleries, len(result.Galleries), result.NextCursor)
	}
}

// GalleryDeletionIntent describes what deleting the gallery would remove.
func GalleryDeletionIntent(svc GalleryManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery manager unavailable"))
			return
		}

		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.PlanDeletion(r.Context(), ownerID, chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, intent)
	}
}

// GalleryDelete removes a gallery. The caller must pass confirm=true.
func GalleryDelete(svc GalleryManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery manager unavailable"))
			return
		}

		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmed, err := validators.QueryOf(r).Bool("confirm")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.DeleteGallery(r.Context(), galleries.DeleteGalleryRequest{
			OwnerID:   ownerID,
			Slug:      chi.URLParam(r, "slug"),
			Confirmed: confirmed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// GalleryDeleteImage removes one image and renumbers the rest.
func GalleryDeleteImage(svc GalleryManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gallery manager unavailable"))
			return
		}

		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deleteImageRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.DeleteImage(r.Context(), galleries.DeleteImageRequest{
			OwnerID:   ownerID,
			Slug:      chi.URLParam(r, "slug"),
			ImageURL:  payload.ImageURL,
			Confirmed: payload.Confirm,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.OwnerIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid owner id")
	}
	return id, nil
}

func metadataFromForm(form *validators.UploadForm) (galleries.Metadata, error) {
	meta := galleries.Metadata{Title: form.Value("title")}

	var err error
	if meta.AccessPassword, err = form.Text("access_password", maxPasswordLength); err != nil {
		return galleries.Metadata{}, err
	}
	desc, err := form.Text("description", maxDescriptionLength)
	if err != nil {
		return galleries.Metadata{}, err
	}
	if desc != "" {
		meta.Description = &desc
	}
	if meta.DeliveryDate, err = form.Time("delivery_date"); err != nil {
		return galleries.Metadata{}, err
	}
	if meta.ExpiresAt, err = form.Time("expires_at"); err != nil {
		return galleries.Metadata{}, err
	}
	if meta.GeneratePassword, err = form.Bool("generate_password"); err != nil {
		return galleries.Metadata{}, err
	}
	if meta.Permissions.AllowDownload, err = form.Bool("allow_download"); err != nil {
		return galleries.Metadata{}, err
	}
	if meta.Permissions.AllowShare, err = form.Bool("allow_share"); err != nil {
		return galleries.Metadata{}, err
	}
	if meta.Permissions.Watermark, err = form.Bool("watermark"); err != nil {
		return galleries.Metadata{}, err
	}
	return meta, nil
}
