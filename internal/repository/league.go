package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
)

type LeagueRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewLeagueRepository(db *sql.DB, logger zerolog.Logger) *LeagueRepository {
	return &LeagueRepository{db: db, logger: logger}
}

func (r *LeagueRepository) Create(ctx context.Context, league *domain.League) error {
	cfg, err := json.Marshal(league.Config)
	if err != nil {
		return fmt.Errorf("failed to encode league config: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO leagues (league_id, status, created_at, config) VALUES (?, ?, ?, ?)`,
		league.LeagueID, league.Status, league.CreatedAt, string(cfg))
	if err != nil {
		return fmt.Errorf("failed to create league %s: %w", league.LeagueID, err)
	}
	return nil
}

// Get returns nil without error when the league does not exist.
func (r *LeagueRepository) Get(ctx context.Context, leagueID string) (*domain.League, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT league_id, status, created_at, config FROM leagues WHERE league_id = ?`,
		leagueID)

	var league domain.League
	var cfg string
	err := row.Scan(&league.LeagueID, &league.Status, &league.CreatedAt, &cfg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get league %s: %w", leagueID, err)
	}

	if err := json.Unmarshal([]byte(cfg), &league.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for league %s: %w", leagueID, err)
	}
	return &league, nil
}

func (r *LeagueRepository) UpdateStatus(ctx context.Context, leagueID string, status domain.LeagueStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leagues SET status = ? WHERE league_id = ?`,
		status, leagueID)
	if err != nil {
		return fmt.Errorf("failed to update league %s status: %w", leagueID, err)
	}
	return nil
}
