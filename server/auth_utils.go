package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/mcp-oauth-server/server/loginsession"
	"github.com/rs/zerolog/log"
)

// SetLoginSessionCookie stores a signed session for userID.
func (s *Server) SetLoginSessionCookie(w http.ResponseWriter, r *http.Request, userID string) error {
	raw, session, err := s.sessions.Issue(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loginsession.CookieName,
		Value:    raw,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) ClearLoginSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginsession.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) loggedInUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(loginsession.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	session, err := s.sessions.Verify(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("[loggedInUser] rejecting login session")
		return "", false
	}
	return session.UserID, true
}

// safeReturnTo only allows local absolute paths, so the login form cannot be used as an
// open redirect.
func safeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, "/\\") {
		return "/"
	}
	return returnTo
}

func loginURL(returnTo, errorMsg string) string {
	q := url.Values{}
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	if errorMsg != "" {
		q.Set("error", errorMsg)
	}
	if len(q) == 0 {
		return RouteLogin
	}
	return RouteLogin + "?" + q.Encode()
}
