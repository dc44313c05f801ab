package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"agent-league/internal/config"
	"agent-league/internal/constants"
	fxmodules "agent-league/internal/fx"
	"agent-league/internal/middleware"
	"agent-league/internal/server"
	"agent-league/internal/service"
)

func main() {
	fx.New(
		fxmodules.ManagerModule,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	leagueServer *server.Server,
	state *service.LeagueState,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)
	handler := requestIDMiddleware(c.Handler(leagueServer.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := state.Initialize(ctx); err != nil {
				return err
			}
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("league manager starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down league manager")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("league manager stopped gracefully")
			return nil
		},
	})
}
