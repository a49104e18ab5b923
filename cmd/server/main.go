package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/internal/cache"
	"github.com/jrsteele09/mcp-oauth-server/internal/config"
	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/jrsteele09/mcp-oauth-server/server"
	"github.com/jrsteele09/mcp-oauth-server/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	configureLogging(c)

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{
		Driver: store.Driver(c.GetStoreDriver()),
		DSN:    c.GetStoreDSN(),
	})
	if err != nil {
		return fmt.Errorf("store.Open: %w", err)
	}
	defer s.Close()

	clientRepo, closeCache, err := clientRepository(ctx, c, s.Clients())
	if err != nil {
		return err
	}
	defer closeCache()

	model, err := oauthmodel.New(oauthmodel.Repos{
		Clients: clientRepo,
		Users:   s.Users(),
		Grants:  s.Grants(),
		Tokens:  s.Tokens(),
	}, oauthmodel.ConfigFrom(c))
	if err != nil {
		return fmt.Errorf("oauthmodel.New: %w", err)
	}

	handler, err := server.New(c, model, s.Users())
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// clientRepository wraps the store's client repo in the configured read-through cache.
func clientRepository(ctx context.Context, c config.Config, repo clients.Repo) (clients.Repo, func(), error) {
	noop := func() {}
	switch c.GetClientCache() {
	case "":
		return repo, noop, nil
	case "memory":
		log.Info().Dur("ttl", c.GetClientCacheTTL()).Msg("client cache: memory")
		return clients.NewCachedRepo(repo, cache.NewMemory(), c.GetClientCacheTTL()), noop, nil
	case "redis":
		rc, err := cache.NewRedis(ctx, c.GetRedisURL(), "mcp-oauth:")
		if err != nil {
			return nil, noop, fmt.Errorf("cache.NewRedis: %w", err)
		}
		log.Info().Dur("ttl", c.GetClientCacheTTL()).Msg("client cache: redis")
		return clients.NewCachedRepo(repo, rc, c.GetClientCacheTTL()), func() { _ = rc.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown client cache %q", c.GetClientCache())
	}
}

func configureLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if c.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
