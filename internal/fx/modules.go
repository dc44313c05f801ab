// Package fx wires the dependency graphs for the three binaries.
package fx

import (
	"time"

	"go.uber.org/fx"

	"agent-league/internal/auth"
	"agent-league/internal/config"
	"agent-league/internal/database"
	"agent-league/internal/game"
	gametictactoe "agent-league/internal/game/tictactoe"
	"agent-league/internal/logger"
	"agent-league/internal/player"
	"agent-league/internal/referee"
	"agent-league/internal/repository"
	"agent-league/internal/server"
	"agent-league/internal/service"
	"agent-league/internal/strategy"
	strattictactoe "agent-league/internal/strategy/tictactoe"
	"agent-league/internal/transport"
)

func provideSender(client *transport.Client) service.AssignmentSender {
	return client
}

func provideGameRegistry() *game.Registry {
	registry := game.NewRegistry()
	registry.Register(gametictactoe.GameType, gametictactoe.New)
	return registry
}

func provideStrategyRegistry() *strategy.Registry {
	registry := strategy.NewRegistry()
	registry.Register(gametictactoe.GameType, strattictactoe.NewRandom(time.Now().UnixNano()))
	registry.Register(gametictactoe.GameType, strattictactoe.NewSmart())
	return registry
}

// ManagerModule is the League Manager dependency graph.
var ManagerModule = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(auth.NewManager),
	// repos
	fx.Provide(repository.NewLeagueRepository),
	fx.Provide(repository.NewAgentRepository),
	fx.Provide(repository.NewRoundRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewResultRepository),
	fx.Provide(repository.NewStandingsRepository),
	// outbound client
	fx.Provide(transport.NewClient),
	fx.Provide(provideSender),
	// svc
	fx.Provide(service.NewLeagueState),
	fx.Provide(service.NewScheduler),
	fx.Provide(service.NewMatchAssigner),
	fx.Provide(service.NewStandingsEngine),
	// server
	fx.Provide(server.NewServer),
)

// RefereeModule is the referee agent dependency graph.
var RefereeModule = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(transport.NewClient),
	fx.Provide(provideGameRegistry),
	fx.Provide(referee.New),
)

// PlayerModule is the player agent dependency graph.
var PlayerModule = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(transport.NewClient),
	fx.Provide(provideStrategyRegistry),
	fx.Provide(player.New),
)
