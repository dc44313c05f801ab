package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
)

type StandingsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStandingsRepository(db *sql.DB, logger zerolog.Logger) *StandingsRepository {
	return &StandingsRepository{db: db, logger: logger}
}

// CreateSnapshot persists a snapshot and its rankings in one transaction.
// Snapshots are immutable; a prior snapshot is never updated in place.
func (r *StandingsRepository) CreateSnapshot(ctx context.Context, snapshot *domain.StandingsSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var roundID sql.NullString
	if snapshot.RoundID != "" {
		roundID = sql.NullString{String: snapshot.RoundID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO standings_snapshots (snapshot_id, league_id, round_id, computed_at) VALUES (?, ?, ?, ?)`,
		snapshot.SnapshotID, snapshot.LeagueID, roundID, snapshot.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", snapshot.SnapshotID, err)
	}

	for _, ranking := range snapshot.Rankings {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_rankings (snapshot_id, player_id, rank, points, wins, draws, losses, matches_played)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshot.SnapshotID, ranking.PlayerID, ranking.Rank, ranking.Points,
			ranking.Wins, ranking.Draws, ranking.Losses, ranking.MatchesPlayed)
		if err != nil {
			return fmt.Errorf("failed to store ranking for player %s: %w", ranking.PlayerID, err)
		}
	}

	return tx.Commit()
}

// GetLatest returns the most recently created snapshot for the scope, or
// nil without error when none exists yet. An empty roundID selects
// league-wide snapshots.
func (r *StandingsRepository) GetLatest(ctx context.Context, leagueID, roundID string) (*domain.StandingsSnapshot, error) {
	var row *sql.Row
	if roundID != "" {
		row = r.db.QueryRowContext(ctx,
			`SELECT snapshot_id, league_id, COALESCE(round_id, ''), computed_at
			 FROM standings_snapshots WHERE league_id = ? AND round_id = ?
			 ORDER BY computed_at DESC, snapshot_id DESC LIMIT 1`,
			leagueID, roundID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT snapshot_id, league_id, COALESCE(round_id, ''), computed_at
			 FROM standings_snapshots WHERE league_id = ?
			 ORDER BY computed_at DESC, snapshot_id DESC LIMIT 1`,
			leagueID)
	}

	var snapshot domain.StandingsSnapshot
	err := row.Scan(&snapshot.SnapshotID, &snapshot.LeagueID, &snapshot.RoundID, &snapshot.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot for league %s: %w", leagueID, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT rank, player_id, points, wins, draws, losses, matches_played
		 FROM player_rankings WHERE snapshot_id = ? ORDER BY rank`,
		snapshot.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rankings for snapshot %s: %w", snapshot.SnapshotID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ranking domain.PlayerRanking
		if err := rows.Scan(&ranking.Rank, &ranking.PlayerID, &ranking.Points,
			&ranking.Wins, &ranking.Draws, &ranking.Losses, &ranking.MatchesPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		snapshot.Rankings = append(snapshot.Rankings, ranking)
	}
	return &snapshot, rows.Err()
}
