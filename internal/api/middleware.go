package api

import (
	"context"
	"net/http"

	"loopchat/backend/internal/model"
)

// Identity resolution for the API layer. The frontend sends either an
// authenticated user id or an anonymous browser-session id as a header;
// real token verification sits in front of this service, so by the time a
// request arrives here the headers are trusted.
const (
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
)

type contextKey string

const identityKey contextKey = "identity"

// identityMiddleware resolves the caller identity from request headers and
// stores it in the request context. Requests without any principal are
// rejected up front; every route behind this middleware can assume a valid
// identity.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := model.Identity{
			UserID:    r.Header.Get(headerUserID),
			SessionID: r.Header.Get(headerSessionID),
		}
		if !ident.Valid() {
			respondWithJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "No caller identity was provided."})
			return
		}
		// An authenticated user id wins over a stale session header.
		if ident.UserID != "" {
			ident.SessionID = ""
		}
		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFromContext returns the identity stored by identityMiddleware.
// The zero identity is returned for requests that bypassed the middleware.
func identityFromContext(ctx context.Context) model.Identity {
	ident, _ := ctx.Value(identityKey).(model.Identity)
	return ident
}
