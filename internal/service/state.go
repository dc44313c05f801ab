package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent-league/internal/config"
	"agent-league/internal/domain"
	"agent-league/internal/repository"
)

var leagueTransitions = map[domain.LeagueStatus][]domain.LeagueStatus{
	domain.LeagueInit:         {domain.LeagueRegistration},
	domain.LeagueRegistration: {domain.LeagueScheduling},
	domain.LeagueScheduling:   {domain.LeagueActive},
	domain.LeagueActive:       {domain.LeagueCompleted},
	domain.LeagueCompleted:    {},
}

// LeagueState manages the league lifecycle over the store. The in-memory
// status is a reconstructable cache of the persisted row.
type LeagueState struct {
	leagueID string
	cfg      *config.Config
	leagues  *repository.LeagueRepository
	agents   *repository.AgentRepository
	logger   zerolog.Logger

	mu     sync.RWMutex
	status domain.LeagueStatus
}

func NewLeagueState(
	cfg *config.Config,
	leagues *repository.LeagueRepository,
	agents *repository.AgentRepository,
	logger zerolog.Logger,
) *LeagueState {
	return &LeagueState{
		leagueID: cfg.LeagueID,
		cfg:      cfg,
		leagues:  leagues,
		agents:   agents,
		logger:   logger,
		status:   domain.LeagueInit,
	}
}

// Initialize loads the league row, creating it at REGISTRATION on first
// use. On restart the persisted status is reloaded as-is; recovery is
// "read current row", not replay.
func (s *LeagueState) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.leagues.Get(ctx, s.leagueID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.status = existing.Status
		s.logger.Info().
			Str("league_id", s.leagueID).
			Str("status", string(s.status)).
			Msg("loaded existing league")
		return nil
	}

	league := &domain.League{
		LeagueID:  s.leagueID,
		Status:    domain.LeagueRegistration,
		CreatedAt: time.Now().UTC(),
		Config: domain.LeagueConfig{
			Name:        s.cfg.LeagueName,
			MinPlayers:  s.cfg.MinPlayers,
			MaxPlayers:  s.cfg.MaxPlayers,
			MinReferees: s.cfg.MinReferees,
		},
	}
	if err := s.leagues.Create(ctx, league); err != nil {
		return err
	}
	s.status = domain.LeagueRegistration
	s.logger.Info().Str("league_id", s.leagueID).Msg("created new league")
	return nil
}

// TransitionTo attempts a lifecycle transition. Illegal transitions are
// rejected with a false return and a log line; the state is unchanged.
func (s *LeagueState) TransitionTo(ctx context.Context, next domain.LeagueStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := false
	for _, target := range leagueTransitions[s.status] {
		if target == next {
			allowed = true
			break
		}
	}
	if !allowed {
		s.logger.Error().
			Str("league_id", s.leagueID).
			Str("from", string(s.status)).
			Str("to", string(next)).
			Msg("invalid league transition")
		return false
	}

	if err := s.leagues.UpdateStatus(ctx, s.leagueID, next); err != nil {
		s.logger.Error().Err(err).
			Str("league_id", s.leagueID).
			Str("to", string(next)).
			Msg("failed to persist league transition")
		return false
	}

	s.logger.Info().
		Str("league_id", s.leagueID).
		Str("from", string(s.status)).
		Str("to", string(next)).
		Msg("league transitioned")
	s.status = next
	return true
}

func (s *LeagueState) LeagueID() string {
	return s.leagueID
}

func (s *LeagueState) Status() domain.LeagueStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *LeagueState) IsRegistrationOpen() bool {
	return s.Status() == domain.LeagueRegistration
}

func (s *LeagueState) RefereeCount(ctx context.Context) (int, error) {
	return s.agents.CountByStatus(ctx, repository.KindReferee, s.leagueID,
		domain.AgentRegistered, domain.AgentActive)
}

func (s *LeagueState) PlayerCount(ctx context.Context) (int, error) {
	return s.agents.CountByStatus(ctx, repository.KindPlayer, s.leagueID,
		domain.AgentRegistered, domain.AgentActive)
}

// CanCloseRegistration checks the configured quorum independently for
// referees and players.
func (s *LeagueState) CanCloseRegistration(ctx context.Context) (bool, error) {
	referees, err := s.RefereeCount(ctx)
	if err != nil {
		return false, err
	}
	players, err := s.PlayerCount(ctx)
	if err != nil {
		return false, err
	}
	return referees >= s.cfg.MinReferees && players >= s.cfg.MinPlayers, nil
}
