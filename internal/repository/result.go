package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
)

type ResultRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewResultRepository(db *sql.DB, logger zerolog.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger}
}

// Store persists a match result. The match_id UNIQUE constraint enforces
// at-most-once result semantics at the storage layer.
func (r *ResultRepository) Store(ctx context.Context, result *domain.MatchResult) error {
	outcome, err := json.Marshal(result.Outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome for result %s: %w", result.ResultID, err)
	}
	points, err := json.Marshal(result.Points)
	if err != nil {
		return fmt.Errorf("failed to encode points for result %s: %w", result.ResultID, err)
	}

	var metadata sql.NullString
	if result.GameMetadata != nil {
		raw, err := json.Marshal(result.GameMetadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for result %s: %w", result.ResultID, err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO match_results (result_id, match_id, outcome, points, game_metadata, reported_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.ResultID, result.MatchID, string(outcome), string(points), metadata, result.ReportedAt)
	if err != nil {
		return fmt.Errorf("failed to store result for match %s: %w", result.MatchID, err)
	}
	return nil
}

// GetByMatch returns nil without error when no result is stored yet.
func (r *ResultRepository) GetByMatch(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT result_id, match_id, outcome, points, game_metadata, reported_at
		 FROM match_results WHERE match_id = ?`, matchID)

	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for match %s: %w", matchID, err)
	}
	return result, nil
}

func (r *ResultRepository) ListByLeague(ctx context.Context, leagueID string) ([]domain.MatchResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mr.result_id, mr.match_id, mr.outcome, mr.points, mr.game_metadata, mr.reported_at
		 FROM match_results mr
		 JOIN matches m ON mr.match_id = m.match_id
		 JOIN rounds r ON m.round_id = r.round_id
		 WHERE r.league_id = ?`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for league %s: %w", leagueID, err)
	}
	defer rows.Close()

	var results []domain.MatchResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, rows.Err()
}

func scanResult(row rowScanner) (*domain.MatchResult, error) {
	var result domain.MatchResult
	var outcome, points string
	var metadata sql.NullString

	if err := row.Scan(&result.ResultID, &result.MatchID, &outcome, &points,
		&metadata, &result.ReportedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(outcome), &result.Outcome); err != nil {
		return nil, fmt.Errorf("failed to decode outcome for result %s: %w", result.ResultID, err)
	}
	if err := json.Unmarshal([]byte(points), &result.Points); err != nil {
		return nil, fmt.Errorf("failed to decode points for result %s: %w", result.ResultID, err)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &result.GameMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for result %s: %w", result.ResultID, err)
		}
	}
	return &result, nil
}
