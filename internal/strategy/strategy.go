// Package strategy defines how a player agent picks moves from the game
// state a referee sends, and the registry keyed by game type and
// strategy name.
package strategy

import "fmt"

// Strategy computes the next move from the state view delivered with a
// move request. Implementations must be safe for concurrent use; one
// player can sit in several matches at once.
type Strategy interface {
	Name() string
	ChooseMove(state map[string]any) (map[string]any, error)
}

type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(gameType string, s Strategy) {
	r.strategies[key(gameType, s.Name())] = s
}

func (r *Registry) Get(gameType, name string) (Strategy, error) {
	s, ok := r.strategies[key(gameType, name)]
	if !ok {
		return nil, fmt.Errorf("no strategy %q for game type %q", name, gameType)
	}
	return s, nil
}

func key(gameType, name string) string {
	return gameType + "/" + name
}
