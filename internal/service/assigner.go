package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
	"agent-league/internal/protocol"
	"agent-league/internal/repository"
)

// AssignmentSender delivers a MATCH_ASSIGNMENT to a referee endpoint.
// Implemented by transport.Client.
type AssignmentSender interface {
	Send(ctx context.Context, url string, envelope protocol.Envelope, payload any) (*protocol.Result, error)
}

type Assignment struct {
	MatchID    string    `json:"match_id"`
	RefereeID  string    `json:"referee_id"`
	RoundID    string    `json:"round_id"`
	GameType   string    `json:"game_type"`
	Players    []string  `json:"players"`
	AssignedAt time.Time `json:"assigned_at"`
}

// MatchAssigner distributes pending matches across ACTIVE referees. The
// availability cache is transient and reconstructable from the store.
type MatchAssigner struct {
	agents  *repository.AgentRepository
	rounds  *repository.RoundRepository
	matches *repository.MatchRepository
	sender  AssignmentSender
	logger  zerolog.Logger

	mu           sync.Mutex
	availability map[string]bool
}

func NewMatchAssigner(
	agents *repository.AgentRepository,
	rounds *repository.RoundRepository,
	matches *repository.MatchRepository,
	sender AssignmentSender,
	logger zerolog.Logger,
) *MatchAssigner {
	return &MatchAssigner{
		agents:       agents,
		rounds:       rounds,
		matches:      matches,
		sender:       sender,
		logger:       logger,
		availability: make(map[string]bool),
	}
}

// AssignPending assigns every PENDING match round-robin over the ACTIVE
// referees, wrapping around so load stays balanced when matches outnumber
// referees. The round-robin index starts at zero on every call. No active
// referee is an expected transient state and returns an empty list.
func (a *MatchAssigner) AssignPending(ctx context.Context, leagueID string) ([]Assignment, error) {
	pending, err := a.matches.ListPendingByLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		a.logger.Debug().Str("league_id", leagueID).Msg("no pending matches to assign")
		return []Assignment{}, nil
	}

	referees, err := a.agents.ListByStatus(ctx, repository.KindReferee, leagueID, domain.AgentActive)
	if err != nil {
		return nil, err
	}
	if len(referees) == 0 {
		a.logger.Warn().Str("league_id", leagueID).Msg("no active referees available for match assignment")
		return []Assignment{}, nil
	}

	assignments := []Assignment{}
	for i, match := range pending {
		referee := referees[i%len(referees)]

		assignment, err := a.assign(ctx, match, referee)
		if err != nil {
			// A failed delivery must not abort assignment of the rest.
			a.logger.Error().Err(err).
				Str("match_id", match.MatchID).
				Str("referee_id", referee.AgentID).
				Msg("failed to assign match")
			continue
		}
		assignments = append(assignments, *assignment)
	}

	a.logger.Info().
		Str("league_id", leagueID).
		Int("assigned", len(assignments)).
		Msg("assigned matches to referees")
	return assignments, nil
}

// assign persists the assignment before attempting delivery, so a
// delivery failure leaves the match durably assigned rather than silently
// dropped. Automatic reassignment is deliberately not implemented.
func (a *MatchAssigner) assign(ctx context.Context, match domain.Match, referee domain.Agent) (*Assignment, error) {
	if referee.EndpointURL == "" {
		return nil, protocol.NewError(protocol.CodeInvalidRefereeID,
			fmt.Sprintf("Referee %s not found or has no endpoint URL", referee.AgentID), nil)
	}

	assignedAt := time.Now().UTC()
	if err := a.matches.Assign(ctx, match.MatchID, referee.AgentID, assignedAt); err != nil {
		return nil, err
	}
	// The round enters play as soon as any of its matches is assigned.
	if err := a.rounds.UpdateStatus(ctx, match.RoundID, domain.RoundActive); err != nil {
		return nil, err
	}

	// Player endpoints go in the payload so the referee can reach players
	// directly without another manager round-trip.
	playerEndpoints := make(map[string]string, len(match.Players))
	for _, playerID := range match.Players {
		player, err := a.agents.Get(ctx, repository.KindPlayer, playerID)
		if err != nil {
			return nil, err
		}
		if player == nil || player.EndpointURL == "" {
			a.logger.Warn().Str("player_id", playerID).Msg("player has no endpoint URL")
			continue
		}
		playerEndpoints[playerID] = player.EndpointURL
	}

	envelope := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(protocol.MatchAssignment),
		Sender:         "league_manager",
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		MatchID:        match.MatchID,
		RoundID:        match.RoundID,
		GameType:       match.GameType,
	}
	payload := map[string]any{
		"match_id":         match.MatchID,
		"round_id":         match.RoundID,
		"game_type":        match.GameType,
		"players":          match.Players,
		"player_endpoints": playerEndpoints,
	}

	if _, err := a.sender.Send(ctx, referee.EndpointURL, envelope, payload); err != nil {
		return nil, protocol.NewError(protocol.CodeCommunicationError,
			fmt.Sprintf("Failed to send assignment to referee: %s", err), nil)
	}

	a.logger.Info().
		Str("match_id", match.MatchID).
		Str("referee_id", referee.AgentID).
		Str("url", referee.EndpointURL).
		Msg("sent match assignment")

	return &Assignment{
		MatchID:    match.MatchID,
		RefereeID:  referee.AgentID,
		RoundID:    match.RoundID,
		GameType:   match.GameType,
		Players:    match.Players,
		AssignedAt: assignedAt,
	}, nil
}

func (a *MatchAssigner) MarkBusy(refereeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.availability[refereeID] = false
}

func (a *MatchAssigner) MarkIdle(refereeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.availability[refereeID] = true
}

func (a *MatchAssigner) IsAvailable(refereeID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idle, ok := a.availability[refereeID]; ok {
		return idle
	}
	return true
}
