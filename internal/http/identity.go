package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// UserIDHeader carries the caller's identity in both directions.
	UserIDHeader = "X-User-ID"
	// ShareTokenHeader carries a share-link token.
	ShareTokenHeader = "X-Share-Token"

	anonymousPrefix = "user_"
	maxUserIDLen    = 128
)

type contextKey string

const userIDKey contextKey = "user_id"

// identityMiddleware resolves the caller. Requests without an identity get a
// fresh anonymous one, returned in the response header for reuse.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get(UserIDHeader))
		if id == "" || len(id) > maxUserIDLen {
			id = anonymousPrefix + uuid.NewString()
		}
		w.Header().Set(UserIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// userID returns the identity resolved by identityMiddleware.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// shareToken reads the share-link token from the header or the query string.
func shareToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(ShareTokenHeader)); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
