// Package game defines the pluggable game engine contract used by
// referees to run matches, plus the registry that maps game type names
// to engine constructors.
package game

import (
	"fmt"

	"agent-league/internal/domain"
)

// Result carries the final outcome of one match in the shape the league
// standings engine aggregates.
type Result struct {
	Outcome  map[string]domain.Outcome `json:"outcome"`
	Points   map[string]int            `json:"points"`
	Metadata map[string]any            `json:"metadata"`
}

// Engine is one in-progress match. Implementations are not safe for
// concurrent use; the referee drives a match from a single goroutine.
type Engine interface {
	// CurrentPlayer returns the ID of the player whose move is awaited.
	CurrentPlayer() string
	// StateView returns the serializable game state sent to players
	// alongside a move request.
	StateView() map[string]any
	// ApplyMove applies a move for the given player. An error means the
	// move is illegal and the player forfeits.
	ApplyMove(playerID string, move map[string]any) error
	// Over reports whether the match has ended.
	Over() bool
	// Result is only meaningful after Over returns true, or after
	// Forfeit.
	Result() Result
	// Forfeit ends the match immediately with the given player losing.
	Forfeit(playerID string)
}

// Factory constructs an engine for one match between the given players.
// Player order is significant; the first player moves first.
type Factory func(players []string) (Engine, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(gameType string, factory Factory) {
	r.factories[gameType] = factory
}

func (r *Registry) New(gameType string, players []string) (Engine, error) {
	factory, ok := r.factories[gameType]
	if !ok {
		return nil, fmt.Errorf("unknown game type: %s", gameType)
	}
	return factory(players)
}
