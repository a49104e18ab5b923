package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/auth"
	"github.com/jrsteele09/mcp-oauth-server/internal/config"
	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/jrsteele09/mcp-oauth-server/server/loginsession"
	"github.com/jrsteele09/mcp-oauth-server/users"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.AuthorizationService
	users    users.Repo
	sessions *loginsession.Signer
	nowTime  func() time.Time
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithNowTime sets the clock used by the server, its sessions and its authorization service.
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, model *oauthmodel.Model, userRepo users.Repo, options ...Option) (*Server, error) {
	if model == nil {
		return nil, fmt.Errorf("[Server New] model is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("[Server New] users repo is required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		users:   userRepo,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	authService, err := auth.NewAuthorizationService(model, userRepo,
		auth.WithNowTime(s.nowTime),
		auth.WithRequirePKCE(cfg.GetRequirePKCE()),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}
	s.auth = authService

	s.sessions, err = loginsession.NewSigner(cfg.GetSessionSecret(), cfg.GetMaxSessionAge(), s.nowTime)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create session signer: %w", err)
	}

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	displayMethod := Gray + paddedMethod + ResetColor
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// issuer is the configured base URL, or the request's own origin when none is set.
func (s *Server) issuer(r *http.Request) string {
	if base := s.config.GetBaseURL(); base != "" {
		return base
	}
	return getScheme(r) + "://" + r.Host
}
