package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"agent-league/internal/config"
	"agent-league/internal/constants"
	fxmodules "agent-league/internal/fx"
	"agent-league/internal/player"
)

const (
	registerRetries  = 10
	registerInterval = 2 * time.Second
)

func main() {
	fx.New(
		fxmodules.PlayerModule,
		fx.Invoke(runAgent),
	).Run()
}

func runAgent(
	lc fx.Lifecycle,
	p *player.Player,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: p.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("player agent starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			// Registration needs a referee already present on the manager
			// side, so keep retrying while the league assembles.
			go func() {
				bgCtx := context.Background()
				var err error
				for attempt := 1; attempt <= registerRetries; attempt++ {
					if err = p.Register(bgCtx); err == nil {
						break
					}
					logger.Warn().Err(err).Int("attempt", attempt).Msg("registration attempt failed")
					time.Sleep(registerInterval)
				}
				if err != nil {
					logger.Error().Err(err).Msg("could not register with league manager")
					return
				}
				if err := p.SendReady(bgCtx); err != nil {
					logger.Error().Err(err).Msg("could not signal ready")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down player agent")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
