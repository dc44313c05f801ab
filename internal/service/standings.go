package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
	"agent-league/internal/repository"
)

// StandingsEngine aggregates match results into ranked, tie-broken
// standings and persists them as immutable snapshots.
type StandingsEngine struct {
	agents    *repository.AgentRepository
	results   *repository.ResultRepository
	standings *repository.StandingsRepository
	logger    zerolog.Logger
}

func NewStandingsEngine(
	agents *repository.AgentRepository,
	results *repository.ResultRepository,
	standings *repository.StandingsRepository,
	logger zerolog.Logger,
) *StandingsEngine {
	return &StandingsEngine{
		agents:    agents,
		results:   results,
		standings: standings,
		logger:    logger,
	}
}

type playerStats struct {
	points        int
	wins          int
	draws         int
	losses        int
	matchesPlayed int
}

// Compute aggregates all stored results for the league. The sort key is
// points desc, wins desc, draws desc, player ID asc; the final criterion
// makes the order a total order even under full numeric ties, which keeps
// standings reproducible for tests and audits. Registered players with no
// results are appended after all players with results, alphabetically,
// with ranks continuing the sequence.
func (e *StandingsEngine) Compute(ctx context.Context, leagueID, roundID string) ([]domain.PlayerRanking, error) {
	results, err := e.results.ListByLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]*playerStats)
	for _, result := range results {
		for playerID, outcome := range result.Outcome {
			s, ok := stats[playerID]
			if !ok {
				s = &playerStats{}
				stats[playerID] = s
			}
			s.points += result.Points[playerID]
			s.matchesPlayed++

			switch outcome {
			case domain.OutcomeWin:
				s.wins++
			case domain.OutcomeDraw:
				s.draws++
			case domain.OutcomeLoss:
				s.losses++
			}
		}
	}

	scored := make([]string, 0, len(stats))
	for playerID := range stats {
		scored = append(scored, playerID)
	}
	sort.Slice(scored, func(i, j int) bool {
		a, b := stats[scored[i]], stats[scored[j]]
		if a.points != b.points {
			return a.points > b.points
		}
		if a.wins != b.wins {
			return a.wins > b.wins
		}
		if a.draws != b.draws {
			return a.draws > b.draws
		}
		return scored[i] < scored[j]
	})

	rankings := make([]domain.PlayerRanking, 0, len(scored))
	for i, playerID := range scored {
		s := stats[playerID]
		rankings = append(rankings, domain.PlayerRanking{
			Rank:          i + 1,
			PlayerID:      playerID,
			Points:        s.points,
			Wins:          s.wins,
			Draws:         s.draws,
			Losses:        s.losses,
			MatchesPlayed: s.matchesPlayed,
		})
	}

	players, err := e.agents.ListByLeague(ctx, repository.KindPlayer, leagueID)
	if err != nil {
		return nil, err
	}
	var unscored []string
	for _, player := range players {
		if _, ok := stats[player.AgentID]; !ok {
			unscored = append(unscored, player.AgentID)
		}
	}
	sort.Strings(unscored)
	for _, playerID := range unscored {
		rankings = append(rankings, domain.PlayerRanking{
			Rank:     len(rankings) + 1,
			PlayerID: playerID,
		})
	}

	e.logger.Info().
		Str("league_id", leagueID).
		Int("players", len(rankings)).
		Msg("computed standings")
	return rankings, nil
}

// Publish computes and persists a fresh snapshot, returning its ID.
func (e *StandingsEngine) Publish(ctx context.Context, leagueID, roundID string) (string, error) {
	rankings, err := e.Compute(ctx, leagueID, roundID)
	if err != nil {
		return "", err
	}

	snapshotID, err := newID("snapshot")
	if err != nil {
		return "", err
	}
	snapshot := &domain.StandingsSnapshot{
		SnapshotID: snapshotID,
		LeagueID:   leagueID,
		RoundID:    roundID,
		ComputedAt: time.Now().UTC(),
		Rankings:   rankings,
	}
	if err := e.standings.CreateSnapshot(ctx, snapshot); err != nil {
		return "", err
	}

	e.logger.Info().Str("snapshot_id", snapshotID).Msg("published standings snapshot")
	return snapshotID, nil
}

// Get returns the most recently published snapshot for the scope. Before
// the first publish it returns an empty snapshot, never an error.
func (e *StandingsEngine) Get(ctx context.Context, leagueID, roundID string) (*domain.StandingsSnapshot, error) {
	snapshot, err := e.standings.GetLatest(ctx, leagueID, roundID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return &domain.StandingsSnapshot{
			LeagueID:   leagueID,
			RoundID:    roundID,
			ComputedAt: time.Now().UTC(),
			Rankings:   []domain.PlayerRanking{},
		}, nil
	}
	if snapshot.Rankings == nil {
		snapshot.Rankings = []domain.PlayerRanking{}
	}
	return snapshot, nil
}
