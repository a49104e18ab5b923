package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/rs/zerolog/log"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SignupHandler registers a user from a JSON body and returns the stored profile.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "invalid JSON body"))
			return
		}

		user, err := s.auth.Signup(r.Context(), req.Username, req.Email, req.Name, req.Password)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrDuplicate):
			writeJSON(w, http.StatusConflict, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "username or email already registered"))
			return
		case errors.Is(err, errors.ErrInvalidRequest):
			writeOAuthError(w, oauth2.WrapError(err, oauth2.ErrCodeInvalidRequest, err.Error()))
			return
		default:
			log.Err(err).Str("username", req.Username).Msg("[SignupHandler] failed")
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeServerError, "failed to create user"))
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}
