package service

import (
	"context"
	"fmt"
	"sort"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"agent-league/internal/domain"
	"agent-league/internal/repository"
)

type pair struct {
	a, b string
}

type ScheduledRound struct {
	RoundID     string         `json:"round_id"`
	RoundNumber int            `json:"round_number"`
	Matches     []domain.Match `json:"matches"`
}

type Schedule struct {
	Rounds       []ScheduledRound `json:"rounds"`
	TotalRounds  int              `json:"total_rounds"`
	TotalMatches int              `json:"total_matches"`
}

// Scheduler generates deterministic round-robin schedules: every player
// pair competes exactly once, no player appears twice within a round, and
// the same player set always yields the same round structure.
type Scheduler struct {
	rounds  *repository.RoundRepository
	matches *repository.MatchRepository
	logger  zerolog.Logger
}

func NewScheduler(
	rounds *repository.RoundRepository,
	matches *repository.MatchRepository,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{rounds: rounds, matches: matches, logger: logger}
}

// Generate builds and persists the full schedule. Fewer than 2 players
// yields an empty schedule, not an error.
func (s *Scheduler) Generate(ctx context.Context, leagueID string, playerIDs []string, gameType string) (*Schedule, error) {
	// Lexicographic sort is the single source of determinism: the output
	// depends only on the player set, never on input order.
	sorted := make([]string, len(playerIDs))
	copy(sorted, playerIDs)
	sort.Strings(sorted)

	if len(sorted) < 2 {
		s.logger.Warn().Int("players", len(sorted)).Msg("need at least 2 players for scheduling")
		return &Schedule{Rounds: []ScheduledRound{}}, nil
	}

	var pairs []pair
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			pairs = append(pairs, pair{a: sorted[i], b: sorted[j]})
		}
	}

	s.logger.Info().
		Int("players", len(sorted)).
		Int("total_matches", len(pairs)).
		Msg("generating schedule")

	grouped := groupIntoRounds(pairs)

	schedule := &Schedule{TotalMatches: len(pairs), TotalRounds: len(grouped)}
	for i, roundPairs := range grouped {
		roundID, err := newID("round")
		if err != nil {
			return nil, err
		}
		round := &domain.Round{
			RoundID:     roundID,
			LeagueID:    leagueID,
			RoundNumber: i + 1,
			Status:      domain.RoundPending,
		}
		if err := s.rounds.Create(ctx, round); err != nil {
			return nil, err
		}

		scheduled := ScheduledRound{RoundID: roundID, RoundNumber: i + 1}
		for _, p := range roundPairs {
			matchID, err := newID("match")
			if err != nil {
				return nil, err
			}
			match := &domain.Match{
				MatchID:  matchID,
				RoundID:  roundID,
				GameType: gameType,
				Players:  []string{p.a, p.b},
				Status:   domain.MatchPending,
			}
			if err := s.matches.Create(ctx, match); err != nil {
				return nil, err
			}
			scheduled.Matches = append(scheduled.Matches, *match)
		}
		schedule.Rounds = append(schedule.Rounds, scheduled)
	}

	s.logger.Info().
		Int("rounds", schedule.TotalRounds).
		Int("matches", schedule.TotalMatches).
		Msg("schedule created")
	return schedule, nil
}

// groupIntoRounds packs pairs greedily: scan remaining pairs in order and
// take each one whose players are both unused in the round under
// construction. First-fit is not proven round-count-optimal; it is
// deterministic and stable, which is what the schedule contract requires.
func groupIntoRounds(pairs []pair) [][]pair {
	remaining := make([]pair, len(pairs))
	copy(remaining, pairs)

	var rounds [][]pair
	for len(remaining) > 0 {
		var current []pair
		used := make(map[string]struct{})
		var leftover []pair

		for _, p := range remaining {
			if _, ok := used[p.a]; ok {
				leftover = append(leftover, p)
				continue
			}
			if _, ok := used[p.b]; ok {
				leftover = append(leftover, p)
				continue
			}
			current = append(current, p)
			used[p.a] = struct{}{}
			used[p.b] = struct{}{}
		}

		rounds = append(rounds, current)
		remaining = leftover
	}
	return rounds
}

func newID(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate %s id: %w", prefix, err)
	}
	return prefix + "-" + id, nil
}
