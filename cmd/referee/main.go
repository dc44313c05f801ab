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
	"agent-league/internal/referee"
)

const (
	registerRetries  = 10
	registerInterval = 2 * time.Second
)

func main() {
	fx.New(
		fxmodules.RefereeModule,
		fx.Invoke(runAgent),
	).Run()
}

func runAgent(
	lc fx.Lifecycle,
	ref *referee.Referee,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: ref.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("referee agent starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			// The manager may still be coming up; retry registration
			// before giving up.
			go func() {
				bgCtx := context.Background()
				var err error
				for attempt := 1; attempt <= registerRetries; attempt++ {
					if err = ref.Register(bgCtx); err == nil {
						break
					}
					logger.Warn().Err(err).Int("attempt", attempt).Msg("registration attempt failed")
					time.Sleep(registerInterval)
				}
				if err != nil {
					logger.Error().Err(err).Msg("could not register with league manager")
					return
				}
				if err := ref.SendReady(bgCtx); err != nil {
					logger.Error().Err(err).Msg("could not signal ready")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down referee agent")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
