// Command purge deletes expired authorization codes and token rows. Run it from cron.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/config"
	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/jrsteele09/mcp-oauth-server/store"
	"github.com/rs/zerolog/log"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "maximum time to spend purging")
	flag.Parse()

	c := config.New()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, err := store.Open(ctx, store.Options{
		Driver: store.Driver(c.GetStoreDriver()),
		DSN:    c.GetStoreDSN(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("store.Open")
	}
	defer s.Close()

	// Rows are kept until their refresh half has aged past the refresh lifetime, measured
	// from creation. With sliding expiry this caps how long an idle refresh token lives.
	refreshLifetime := oauthmodel.ConfigFrom(c).RefreshTokenLifetime
	if refreshLifetime <= 0 {
		refreshLifetime = oauthmodel.DefaultConfig().RefreshTokenLifetime
	}

	grantsDeleted, tokensDeleted, err := s.PurgeExpired(ctx, time.Now().UTC(), refreshLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("PurgeExpired")
	}
	log.Info().Int64("grants", grantsDeleted).Int64("tokens", tokensDeleted).Msg("purge complete")
}
