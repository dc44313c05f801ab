package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"agent-league/internal/auth"
	"agent-league/internal/constants"
	"agent-league/internal/domain"
	"agent-league/internal/protocol"
	"agent-league/internal/repository"
)

type registerRefereePayload struct {
	RefereeID string `json:"referee_id"`
	Endpoint  string `json:"endpoint"`
}

func (s *Server) handleRegisterReferee(ctx context.Context, env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var payload registerRefereePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, protocol.NewValidationError("Malformed registration payload", "")
	}
	if payload.RefereeID == "" {
		return nil, protocol.NewValidationError("Missing referee_id", "referee_id")
	}
	if payload.Endpoint == "" {
		return nil, protocol.NewValidationError("Missing endpoint", "endpoint")
	}
	if env.Sender != "referee:"+payload.RefereeID {
		return nil, protocol.NewValidationError(
			fmt.Sprintf("Sender %s does not match referee_id %s", env.Sender, payload.RefereeID), "sender")
	}

	if !s.state.IsRegistrationOpen() {
		return nil, protocol.NewRegistrationClosedError()
	}

	existing, err := s.agents.Get(ctx, repository.KindReferee, payload.RefereeID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if existing != nil {
		return nil, protocol.NewDuplicateRegistrationError(payload.RefereeID)
	}

	// A token may already exist if an earlier registration died between
	// token issue and the store write. Issue is idempotent, so the agent
	// gets the same token back.
	if s.auth.HasToken(payload.RefereeID) {
		s.logger.Warn().
			Str("referee_id", payload.RefereeID).
			Msg("re-issuing token from an incomplete earlier registration")
	}
	token := s.auth.Issue(payload.RefereeID, auth.TypeReferee)
	agent := &domain.Agent{
		AgentID:      payload.RefereeID,
		LeagueID:     s.state.LeagueID(),
		AuthToken:    token,
		EndpointURL:  payload.Endpoint,
		Status:       domain.AgentRegistered,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.agents.Register(ctx, repository.KindReferee, agent); err != nil {
		return nil, protocol.AsError(err)
	}

	s.logger.Info().
		Str("referee_id", payload.RefereeID).
		Str("endpoint", payload.Endpoint).
		Msg("referee registered")

	return map[string]any{
		"status":     "registered",
		"referee_id": payload.RefereeID,
		"league_id":  s.state.LeagueID(),
		"game_type":  s.cfg.GameType,
		"auth_token": token,
	}, nil
}

type registerPlayerPayload struct {
	PlayerID string `json:"player_id"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleRegisterPlayer(ctx context.Context, env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var payload registerPlayerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, protocol.NewValidationError("Malformed registration payload", "")
	}
	if payload.PlayerID == "" {
		return nil, protocol.NewValidationError("Missing player_id", "player_id")
	}
	if payload.Endpoint == "" {
		return nil, protocol.NewValidationError("Missing endpoint", "endpoint")
	}
	if env.Sender != "player:"+payload.PlayerID {
		return nil, protocol.NewValidationError(
			fmt.Sprintf("Sender %s does not match player_id %s", env.Sender, payload.PlayerID), "sender")
	}

	if !s.state.IsRegistrationOpen() {
		return nil, protocol.NewRegistrationClosedError()
	}

	// Players cannot join a league that has no referee to run their
	// matches.
	referees, err := s.state.RefereeCount(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if referees == 0 {
		return nil, protocol.NewPreconditionFailedError(
			"At least one referee must be registered before players can join", nil)
	}

	players, err := s.state.PlayerCount(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if players >= s.cfg.MaxPlayers {
		return nil, protocol.NewPreconditionFailedError(
			fmt.Sprintf("League is full (%d players)", s.cfg.MaxPlayers),
			map[string]any{"max_players": s.cfg.MaxPlayers})
	}

	existing, err := s.agents.Get(ctx, repository.KindPlayer, payload.PlayerID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if existing != nil {
		return nil, protocol.NewDuplicateRegistrationError(payload.PlayerID)
	}

	if s.auth.HasToken(payload.PlayerID) {
		s.logger.Warn().
			Str("player_id", payload.PlayerID).
			Msg("re-issuing token from an incomplete earlier registration")
	}
	token := s.auth.Issue(payload.PlayerID, auth.TypePlayer)
	agent := &domain.Agent{
		AgentID:      payload.PlayerID,
		LeagueID:     s.state.LeagueID(),
		AuthToken:    token,
		EndpointURL:  payload.Endpoint,
		Status:       domain.AgentRegistered,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.agents.Register(ctx, repository.KindPlayer, agent); err != nil {
		return nil, protocol.AsError(err)
	}

	s.logger.Info().
		Str("player_id", payload.PlayerID).
		Str("endpoint", payload.Endpoint).
		Msg("player registered")

	return map[string]any{
		"status":     "registered",
		"player_id":  payload.PlayerID,
		"league_id":  s.state.LeagueID(),
		"game_type":  s.cfg.GameType,
		"auth_token": token,
	}, nil
}

// handleAgentReady flips the sender's status to ACTIVE. The identity
// comes from the envelope sender, which the auth gate already verified
// against the token.
func (s *Server) handleAgentReady(ctx context.Context, env *protocol.Envelope) (any, *protocol.Error) {
	kindName, agentID, ok := strings.Cut(env.Sender, ":")
	if !ok {
		return nil, protocol.NewError(protocol.CodeInvalidSenderFormat,
			fmt.Sprintf("Ready signal requires a referee or player sender, got %s", env.Sender), nil)
	}

	var kind repository.AgentKind
	switch kindName {
	case "referee":
		kind = repository.KindReferee
	case "player":
		kind = repository.KindPlayer
	default:
		return nil, protocol.NewError(protocol.CodeInvalidSenderFormat,
			fmt.Sprintf("Ready signal requires a referee or player sender, got %s", env.Sender), nil)
	}

	agent, err := s.agents.Get(ctx, kind, agentID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if agent == nil {
		code := protocol.CodeInvalidRefereeID
		if kind == repository.KindPlayer {
			code = protocol.CodeInvalidPlayerID
		}
		return nil, protocol.NewError(code,
			fmt.Sprintf("Unknown %s: %s", kindName, agentID), nil)
	}

	if err := s.agents.UpdateStatus(ctx, kind, agentID, domain.AgentActive); err != nil {
		return nil, protocol.AsError(err)
	}

	s.logger.Info().
		Str("agent_id", agentID).
		Str("agent_type", kindName).
		Msg("agent ready")

	return map[string]any{
		"status":      "ready",
		"agent_id":    agentID,
		"agent_state": string(domain.AgentActive),
	}, nil
}

type matchResultPayload struct {
	MatchID      string                    `json:"match_id"`
	Outcome      map[string]domain.Outcome `json:"outcome"`
	Points       map[string]int            `json:"points"`
	GameMetadata map[string]any            `json:"game_metadata"`
}

func (s *Server) handleMatchResult(ctx context.Context, env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var payload matchResultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, protocol.NewValidationError("Malformed result payload", "")
	}

	matchID := payload.MatchID
	if matchID == "" {
		matchID = env.MatchID
	}
	if matchID == "" {
		return nil, protocol.NewValidationError("Missing match_id", "match_id")
	}
	if len(payload.Outcome) == 0 {
		return nil, protocol.NewValidationError("Missing outcome", "outcome")
	}

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if match == nil {
		return nil, protocol.NewError(protocol.CodeInvalidMatchID,
			fmt.Sprintf("Unknown match: %s", matchID), nil)
	}

	// Only the referee the match was assigned to may report its result.
	if match.RefereeID != "" && env.Sender != "referee:"+match.RefereeID {
		return nil, protocol.NewAuthorizationError(
			fmt.Sprintf("Match %s is assigned to referee %s", matchID, match.RefereeID),
			"referee:"+match.RefereeID, env.Sender)
	}

	existing, err := s.results.GetByMatch(ctx, matchID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if existing != nil {
		return nil, protocol.NewDuplicateResultError(matchID)
	}

	resultID, err := gonanoid.New()
	if err != nil {
		return nil, protocol.AsError(err)
	}
	result := &domain.MatchResult{
		ResultID:     "result-" + resultID,
		MatchID:      matchID,
		Outcome:      payload.Outcome,
		Points:       payload.Points,
		GameMetadata: payload.GameMetadata,
		ReportedAt:   time.Now().UTC(),
	}
	if err := s.results.Store(ctx, result); err != nil {
		return nil, protocol.AsError(err)
	}
	if err := s.matches.UpdateStatus(ctx, matchID, domain.MatchCompleted); err != nil {
		return nil, protocol.AsError(err)
	}

	roundIncomplete, err := s.matches.CountIncompleteByRound(ctx, match.RoundID)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if roundIncomplete == 0 {
		if err := s.rounds.UpdateStatus(ctx, match.RoundID, domain.RoundCompleted); err != nil {
			return nil, protocol.AsError(err)
		}
	}

	// Standings republish synchronously so a query right after the ack
	// already reflects this result. The snapshot carries the reporting
	// round's scope so round-scoped queries can find it.
	snapshotID, err := s.standings.Publish(ctx, s.state.LeagueID(), env.RoundID)
	if err != nil {
		return nil, protocol.AsError(err)
	}

	incomplete, err := s.matches.CountIncomplete(ctx, s.state.LeagueID())
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if incomplete == 0 {
		s.state.TransitionTo(ctx, domain.LeagueCompleted)
	}

	s.logger.Info().
		Str("match_id", matchID).
		Str("snapshot_id", snapshotID).
		Int("incomplete_matches", incomplete).
		Msg("match result recorded")

	return map[string]any{
		"status":        "result_recorded",
		"match_id":      matchID,
		"snapshot_id":   snapshotID,
		"league_status": string(s.state.Status()),
	}, nil
}

func (s *Server) handleQueryStandings(ctx context.Context, env *protocol.Envelope) (any, *protocol.Error) {
	snapshot, err := s.standings.Get(ctx, s.state.LeagueID(), env.RoundID)
	if err != nil {
		return nil, protocol.AsError(err)
	}

	return map[string]any{
		"league_id":   s.state.LeagueID(),
		"snapshot_id": snapshot.SnapshotID,
		"computed_at": snapshot.ComputedAt.UTC().Format(time.RFC3339),
		"rankings":    snapshot.Rankings,
	}, nil
}

// handleAdminStartLeague closes registration, generates the full
// schedule, waits briefly for referees to signal readiness, and assigns
// the first wave of matches. The call is synchronous; the admin gets the
// final counts in the response.
func (s *Server) handleAdminStartLeague(ctx context.Context, env *protocol.Envelope) (any, *protocol.Error) {
	if env.Sender != "admin" {
		return nil, protocol.NewAuthorizationError(
			"Only admin may start the league", "admin", env.Sender)
	}

	quorum, err := s.state.CanCloseRegistration(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	if !quorum {
		referees, _ := s.state.RefereeCount(ctx)
		players, _ := s.state.PlayerCount(ctx)
		return nil, protocol.NewPreconditionFailedError(
			"Registration quorum not met",
			map[string]any{
				"referee_count": referees,
				"player_count":  players,
				"min_referees":  s.cfg.MinReferees,
				"min_players":   s.cfg.MinPlayers,
			})
	}

	if !s.state.TransitionTo(ctx, domain.LeagueScheduling) {
		return nil, protocol.NewPreconditionFailedError(
			fmt.Sprintf("League cannot start from status %s", s.state.Status()),
			map[string]any{"status": string(s.state.Status())})
	}

	players, err := s.agents.ListByStatus(ctx, repository.KindPlayer, s.state.LeagueID(),
		domain.AgentRegistered, domain.AgentActive)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	playerIDs := make([]string, 0, len(players))
	for _, p := range players {
		playerIDs = append(playerIDs, p.AgentID)
	}

	schedule, err := s.scheduler.Generate(ctx, s.state.LeagueID(), playerIDs, s.cfg.GameType)
	if err != nil {
		return nil, protocol.AsError(err)
	}

	if !s.state.TransitionTo(ctx, domain.LeagueActive) {
		return nil, protocol.NewError(protocol.CodeStateCorruption,
			fmt.Sprintf("Failed to activate league from status %s", s.state.Status()), nil)
	}

	if !s.waitForActiveReferee(ctx) {
		s.logger.Warn().
			Dur("waited", constants.RefereeReadyMaxWait).
			Msg("no referee became active in time, assigning anyway")
	}

	assignments, err := s.assigner.AssignPending(ctx, s.state.LeagueID())
	if err != nil {
		return nil, protocol.AsError(err)
	}

	s.logger.Info().
		Int("rounds", schedule.TotalRounds).
		Int("matches", schedule.TotalMatches).
		Int("assigned", len(assignments)).
		Msg("league started")

	return map[string]any{
		"status":           "started",
		"league_id":        s.state.LeagueID(),
		"total_rounds":     schedule.TotalRounds,
		"total_matches":    schedule.TotalMatches,
		"assignments_sent": len(assignments),
	}, nil
}

// waitForActiveReferee polls until at least one referee is ACTIVE or the
// bounded wait expires. Referees usually send their ready signal within
// the first poll interval.
func (s *Server) waitForActiveReferee(ctx context.Context) bool {
	deadline := time.Now().Add(constants.RefereeReadyMaxWait)
	for {
		referees, err := s.agents.ListByStatus(ctx, repository.KindReferee, s.state.LeagueID(),
			domain.AgentActive)
		if err == nil && len(referees) > 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(constants.RefereeReadyPollInterval):
		}
	}
}

func (s *Server) handleAdminGetStatus(ctx context.Context) (any, *protocol.Error) {
	referees, err := s.state.RefereeCount(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	players, err := s.state.PlayerCount(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}
	quorum, err := s.state.CanCloseRegistration(ctx)
	if err != nil {
		return nil, protocol.AsError(err)
	}

	return map[string]any{
		"league_id":     s.state.LeagueID(),
		"status":        string(s.state.Status()),
		"referee_count": referees,
		"player_count":  players,
		"quorum_met":    quorum,
	}, nil
}
