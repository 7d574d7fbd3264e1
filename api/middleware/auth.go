package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/shutterdesk-backend/api/responses"
	pkgAuth "github.com/angelmondragon/shutterdesk-backend/pkg/auth"
	"github.com/angelmondragon/shutterdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

// Auth guards the studio API. It accepts a bearer access token whose session
// is still live and puts the owning photographer on the request context.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if logg != nil {
				ctx = logg.WithOwnerID(ctx, OwnerIDFromContext(ctx))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker) (context.Context, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing token id")
	}
	ownerID, err := claims.OwnerID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject")
	}

	if verifier != nil {
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked")
		}
	}

	ctx := WithOwnerID(r.Context(), ownerID.String())
	ctx = context.WithValue(ctx, ctxTokenID, claims.ID)
	if claims.ExpiresAt != nil {
		ctx = context.WithValue(ctx, ctxTokenExpiry, claims.ExpiresAt.Time)
	}
	return ctx, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
