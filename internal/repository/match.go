package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
)

type RoundRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRoundRepository(db *sql.DB, logger zerolog.Logger) *RoundRepository {
	return &RoundRepository{db: db, logger: logger}
}

func (r *RoundRepository) Create(ctx context.Context, round *domain.Round) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rounds (round_id, league_id, round_number, status) VALUES (?, ?, ?, ?)`,
		round.RoundID, round.LeagueID, round.RoundNumber, round.Status)
	if err != nil {
		return fmt.Errorf("failed to create round %s: %w", round.RoundID, err)
	}
	return nil
}

func (r *RoundRepository) UpdateStatus(ctx context.Context, roundID string, status domain.RoundStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rounds SET status = ? WHERE round_id = ?`, status, roundID)
	if err != nil {
		return fmt.Errorf("failed to update round %s status: %w", roundID, err)
	}
	return nil
}

func (r *RoundRepository) ListByLeague(ctx context.Context, leagueID string) ([]domain.Round, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT round_id, league_id, round_number, status FROM rounds WHERE league_id = ? ORDER BY round_number`,
		leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds for league %s: %w", leagueID, err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		var round domain.Round
		if err := rows.Scan(&round.RoundID, &round.LeagueID, &round.RoundNumber, &round.Status); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(db *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: db, logger: logger}
}

func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) error {
	players, err := json.Marshal(match.Players)
	if err != nil {
		return fmt.Errorf("failed to encode players for match %s: %w", match.MatchID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO matches (match_id, round_id, game_type, players, status) VALUES (?, ?, ?, ?, ?)`,
		match.MatchID, match.RoundID, match.GameType, string(players), match.Status)
	if err != nil {
		return fmt.Errorf("failed to create match %s: %w", match.MatchID, err)
	}
	return nil
}

// Get returns nil without error when the match does not exist.
func (r *MatchRepository) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT match_id, round_id, COALESCE(referee_id, ''), game_type, players, status, assigned_at
		 FROM matches WHERE match_id = ?`, matchID)

	match, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
	}
	return match, nil
}

// Assign durably records the referee assignment. This runs before any
// delivery attempt, so a delivery failure still leaves the match assigned.
func (r *MatchRepository) Assign(ctx context.Context, matchID, refereeID string, assignedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET referee_id = ?, status = ?, assigned_at = ? WHERE match_id = ?`,
		refereeID, domain.MatchAssigned, assignedAt, matchID)
	if err != nil {
		return fmt.Errorf("failed to assign match %s: %w", matchID, err)
	}
	return nil
}

func (r *MatchRepository) UpdateStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = ? WHERE match_id = ?`, status, matchID)
	if err != nil {
		return fmt.Errorf("failed to update match %s status: %w", matchID, err)
	}
	return nil
}

func (r *MatchRepository) ListPendingByLeague(ctx context.Context, leagueID string) ([]domain.Match, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.match_id, m.round_id, COALESCE(m.referee_id, ''), m.game_type, m.players, m.status, m.assigned_at
		 FROM matches m
		 JOIN rounds r ON m.round_id = r.round_id
		 WHERE r.league_id = ? AND m.status = ?
		 ORDER BY r.round_number, m.match_id`,
		leagueID, domain.MatchPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches for league %s: %w", leagueID, err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func (r *MatchRepository) ListByLeague(ctx context.Context, leagueID string) ([]domain.Match, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.match_id, m.round_id, COALESCE(m.referee_id, ''), m.game_type, m.players, m.status, m.assigned_at
		 FROM matches m
		 JOIN rounds r ON m.round_id = r.round_id
		 WHERE r.league_id = ?
		 ORDER BY r.round_number, m.match_id`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for league %s: %w", leagueID, err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

// CountIncompleteByRound counts the round's matches that have not
// reached COMPLETED.
func (r *MatchRepository) CountIncompleteByRound(ctx context.Context, roundID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE round_id = ? AND status != ?`,
		roundID, domain.MatchCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incomplete matches for round %s: %w", roundID, err)
	}
	return count, nil
}

// CountIncomplete counts league matches that have not reached COMPLETED.
func (r *MatchRepository) CountIncomplete(ctx context.Context, leagueID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches m
		 JOIN rounds r ON m.round_id = r.round_id
		 WHERE r.league_id = ? AND m.status != ?`,
		leagueID, domain.MatchCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incomplete matches for league %s: %w", leagueID, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var match domain.Match
	var players string
	var assignedAt sql.NullTime

	if err := row.Scan(&match.MatchID, &match.RoundID, &match.RefereeID,
		&match.GameType, &players, &match.Status, &assignedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(players), &match.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players for match %s: %w", match.MatchID, err)
	}
	if assignedAt.Valid {
		match.AssignedAt = &assignedAt.Time
	}
	return &match, nil
}

func collectMatches(rows *sql.Rows) ([]domain.Match, error) {
	var matches []domain.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}
