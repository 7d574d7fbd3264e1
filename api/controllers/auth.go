package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/shutterdesk-backend/api/middleware"
	"github.com/angelmondragon/shutterdesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

type tokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// AuthLogout revokes the presented access token.
func AuthLogout(revoker tokenRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if revoker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable"))
			return
		}

		tokenID := middleware.TokenIDFromContext(r.Context())
		if tokenID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token context missing"))
			return
		}

		if err := revoker.Revoke(r.Context(), tokenID, middleware.TokenExpiryFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}
