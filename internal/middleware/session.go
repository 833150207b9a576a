package middleware

import (
	"context"
	"net/http"

	"github.com/pliu/palaver/internal/auth"
	"github.com/pliu/palaver/internal/chat"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	usernameKey  contextKey = "username"
)

// SessionID returns the validated session id stored by Session, or "".
func SessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionIDKey).(string)
	return id
}

// Username returns the session owner stored by Session, or "".
func Username(r *http.Request) string {
	u, _ := r.Context().Value(usernameKey).(string)
	return u
}

// Session authenticates requests by session id, taken from the signed
// session cookie or an X-Session-ID header. Invalid or expired sessions get
// 401 so clients know to log in again.
func Session(manager *chat.Manager, cookies *auth.CookieSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-ID")
			if sessionID == "" {
				cookie, err := r.Cookie("session_id")
				if err != nil {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				sessionID, err = cookies.Verify(cookie.Value)
				if err != nil {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			if !manager.ValidateSession(sessionID) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			username, ok := manager.SessionOwner(sessionID)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			ctx = context.WithValue(ctx, usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
