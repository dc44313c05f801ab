package referee

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agent-league/internal/constants"
	"agent-league/internal/game"
	"agent-league/internal/protocol"
)

type assignmentPayload struct {
	MatchID         string            `json:"match_id"`
	RoundID         string            `json:"round_id"`
	GameType        string            `json:"game_type"`
	Players         []string          `json:"players"`
	PlayerEndpoints map[string]string `json:"player_endpoints"`
}

// runMatch drives one match to completion: invite players, alternate
// move requests, settle the outcome, notify everyone. A player that
// times out, returns garbage, or plays an illegal move forfeits on the
// spot; the match still produces a result.
func (r *Referee) runMatch(assignment assignmentPayload) {
	defer func() {
		r.mu.Lock()
		delete(r.running, assignment.MatchID)
		r.mu.Unlock()
	}()

	ctx := context.Background()
	logger := r.logger.With().Str("match_id", assignment.MatchID).Logger()

	engine, err := r.games.New(assignment.GameType, assignment.Players)
	if err != nil {
		logger.Error().Err(err).Str("game_type", assignment.GameType).Msg("cannot create game engine")
		return
	}

	if forfeiter := r.invitePlayers(ctx, assignment, logger); forfeiter != "" {
		logger.Warn().Str("player_id", forfeiter).Msg("player failed to join, forfeiting")
		engine.Forfeit(forfeiter)
	}

	for !engine.Over() {
		current := engine.CurrentPlayer()
		move, err := r.requestMove(ctx, assignment, current, engine.StateView())
		if err != nil {
			logger.Warn().Err(err).Str("player_id", current).Msg("move request failed, forfeiting")
			engine.Forfeit(current)
			break
		}
		if err := engine.ApplyMove(current, move); err != nil {
			logger.Warn().Err(err).Str("player_id", current).Msg("illegal move, forfeiting")
			engine.Forfeit(current)
			break
		}
	}

	result := engine.Result()
	logger.Info().Interface("points", result.Points).Msg("match finished")

	r.notifyGameOver(ctx, assignment, result)

	if err := r.reportResult(ctx, assignment, result); err != nil {
		logger.Error().Err(err).Msg("failed to report match result")
	}
}

// invitePlayers sends GAME_INVITATION to every player concurrently and
// returns the ID of a player whose invitation failed, or empty when all
// joined.
func (r *Referee) invitePlayers(ctx context.Context, assignment assignmentPayload, logger zerolog.Logger) string {
	var (
		mu        sync.Mutex
		forfeiter string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, playerID := range assignment.Players {
		playerID := playerID
		g.Go(func() error {
			endpoint, ok := assignment.PlayerEndpoints[playerID]
			if !ok {
				mu.Lock()
				forfeiter = playerID
				mu.Unlock()
				return nil
			}

			env := r.matchEnvelope(protocol.GameInvitation, assignment)
			payload := map[string]any{
				"match_id":  assignment.MatchID,
				"round_id":  assignment.RoundID,
				"game_type": assignment.GameType,
				"players":   assignment.Players,
			}

			callCtx, cancel := context.WithTimeout(gctx, constants.DeliveryTimeout)
			defer cancel()
			if _, err := r.client.Send(callCtx, endpoint, env, payload); err != nil {
				logger.Warn().Err(err).Str("player_id", playerID).Msg("game invitation failed")
				mu.Lock()
				forfeiter = playerID
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return forfeiter
}

// requestMove asks one player for a move, bounded by the move timeout.
func (r *Referee) requestMove(ctx context.Context, assignment assignmentPayload, playerID string, state map[string]any) (map[string]any, error) {
	endpoint, ok := assignment.PlayerEndpoints[playerID]
	if !ok {
		return nil, fmt.Errorf("no endpoint for player %s", playerID)
	}

	env := r.matchEnvelope(protocol.RequestMove, assignment)
	payload := map[string]any{
		"match_id":   assignment.MatchID,
		"game_state": state,
	}

	callCtx, cancel := context.WithTimeout(ctx, constants.MoveTimeout)
	defer cancel()
	result, err := r.client.Send(callCtx, endpoint, env, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Move map[string]any `json:"move"`
	}
	if err := decodePayload(result.Payload, &resp); err != nil {
		return nil, fmt.Errorf("malformed move response: %w", err)
	}
	if resp.Move == nil {
		return nil, fmt.Errorf("move response missing 'move'")
	}
	return resp.Move, nil
}

// notifyGameOver is fire-and-forget to both players. A player that
// cannot receive the notification has no effect on the recorded result.
func (r *Referee) notifyGameOver(ctx context.Context, assignment assignmentPayload, result game.Result) {
	payload := map[string]any{
		"match_id": assignment.MatchID,
		"outcome":  result.Outcome,
		"points":   result.Points,
		"metadata": result.Metadata,
	}
	for _, playerID := range assignment.Players {
		endpoint, ok := assignment.PlayerEndpoints[playerID]
		if !ok {
			continue
		}
		env := r.matchEnvelope(protocol.GameOver, assignment)
		callCtx, cancel := context.WithTimeout(ctx, constants.DeliveryTimeout)
		r.client.SendNoReply(callCtx, endpoint, env, payload)
		cancel()
	}
}

func (r *Referee) reportResult(ctx context.Context, assignment assignmentPayload, result game.Result) error {
	env := r.envelope(protocol.MatchResultReport)
	env.MatchID = assignment.MatchID
	env.RoundID = assignment.RoundID

	payload := map[string]any{
		"match_id":      assignment.MatchID,
		"outcome":       result.Outcome,
		"points":        result.Points,
		"game_metadata": result.Metadata,
	}

	callCtx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()
	_, err := r.client.Send(callCtx, r.cfg.ManagerURL, env, payload)
	return err
}

func (r *Referee) matchEnvelope(messageType protocol.MessageType, assignment assignmentPayload) protocol.Envelope {
	env := r.envelope(messageType)
	env.MatchID = assignment.MatchID
	env.RoundID = assignment.RoundID
	env.GameType = assignment.GameType
	return env
}
