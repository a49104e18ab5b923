package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem seeds the admin user when ADMIN_PASSWORD is configured. An existing
// admin is left untouched, so restarts never reset the password.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	password := s.config.GetAdminPassword()
	if password == "" {
		return nil
	}
	username := s.config.GetAdminUsername()

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		log.Debug().Str("username", username).Msg("[InitialiseSystem] admin user already exists")
		return nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("[Server InitialiseSystem] failed to look up admin user: %w", err)
	}

	email := s.config.GetAdminEmail()
	if email == "" {
		email = generateEmailFromBaseURL(username, s.config.GetBaseURL())
	}

	admin, err := users.NewUser(username, email, "System Administrator", password)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] invalid admin credentials: %w", err)
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to create admin user: %w", err)
	}

	log.Info().Str("username", admin.Username).Str("email", admin.Email).Msg("[InitialiseSystem] admin user created")
	return nil
}

// generateEmailFromBaseURL creates an email address from a username and base URL
// Example: ("admin", "https://auth.example.com/path") -> "admin@auth.example.com"
func generateEmailFromBaseURL(user, baseURL string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	domain = strings.SplitN(domain, "/", 2)[0]
	domain = strings.SplitN(domain, ":", 2)[0]
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("%s@%s", user, domain)
}
