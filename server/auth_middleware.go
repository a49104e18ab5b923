package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jrsteele09/mcp-oauth-server/oauth2"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyUserID stores the logged in user ID
const ContextKeyUserID ContextKey = "user_id"

// RequireRegistrationToken guards client registration when a registration token is
// configured. Without one, registration is open.
func (s *Server) RequireRegistrationToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := s.config.GetRegistrationToken()
		if expected == "" {
			next(w, r)
			return
		}
		presented, _ := bearerFromHeader(r)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidToken, "a valid registration token is required"))
			return
		}
		next(w, r)
	}
}

// RequireLoginSession loads the signed login cookie, redirecting to the login page when it
// is missing or invalid.
func (s *Server) RequireLoginSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.loggedInUser(r)
		if !ok {
			http.Redirect(w, r, loginURL(r.URL.RequestURI(), ""), http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) bearerToken(r *http.Request) string {
	if t, ok := bearerFromHeader(r); ok {
		return t
	}
	if s.config.GetAllowBearerInQuery() {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func bearerFromHeader(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	t := strings.TrimSpace(parts[1])
	return t, t != ""
}
