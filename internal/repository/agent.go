package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"agent-league/internal/domain"
)

// AgentKind selects the referee or player table. Referees and players
// share one schema shape but live in separate tables with separate
// identifier spaces.
type AgentKind string

const (
	KindReferee AgentKind = "referee"
	KindPlayer  AgentKind = "player"
)

func (k AgentKind) table() string {
	if k == KindReferee {
		return "referees"
	}
	return "players"
}

func (k AgentKind) idColumn() string {
	if k == KindReferee {
		return "referee_id"
	}
	return "player_id"
}

type AgentRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAgentRepository(db *sql.DB, logger zerolog.Logger) *AgentRepository {
	return &AgentRepository{db: db, logger: logger}
}

func (r *AgentRepository) Register(ctx context.Context, kind AgentKind, agent *domain.Agent) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, league_id, auth_token, endpoint_url, status, registered_at) VALUES (?, ?, ?, ?, ?, ?)`,
		kind.table(), kind.idColumn())

	_, err := r.db.ExecContext(ctx, query,
		agent.AgentID, agent.LeagueID, agent.AuthToken, agent.EndpointURL,
		agent.Status, agent.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to register %s %s: %w", kind, agent.AgentID, err)
	}
	return nil
}

// Get returns nil without error when the agent does not exist.
func (r *AgentRepository) Get(ctx context.Context, kind AgentKind, agentID string) (*domain.Agent, error) {
	query := fmt.Sprintf(
		`SELECT %s, league_id, auth_token, COALESCE(endpoint_url, ''), status, registered_at FROM %s WHERE %s = ?`,
		kind.idColumn(), kind.table(), kind.idColumn())

	var agent domain.Agent
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&agent.AgentID, &agent.LeagueID, &agent.AuthToken,
		&agent.EndpointURL, &agent.Status, &agent.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, agentID, err)
	}
	return &agent, nil
}

func (r *AgentRepository) ListByLeague(ctx context.Context, kind AgentKind, leagueID string) ([]domain.Agent, error) {
	query := fmt.Sprintf(
		`SELECT %s, league_id, auth_token, COALESCE(endpoint_url, ''), status, registered_at FROM %s WHERE league_id = ? ORDER BY %s`,
		kind.idColumn(), kind.table(), kind.idColumn())

	rows, err := r.db.QueryContext(ctx, query, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss for league %s: %w", kind, leagueID, err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(&agent.AgentID, &agent.LeagueID, &agent.AuthToken,
			&agent.EndpointURL, &agent.Status, &agent.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// ListByStatus returns league agents whose status is in the given set.
func (r *AgentRepository) ListByStatus(ctx context.Context, kind AgentKind, leagueID string, statuses ...domain.AgentStatus) ([]domain.Agent, error) {
	agents, err := r.ListByLeague(ctx, kind, leagueID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[domain.AgentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}

	filtered := agents[:0]
	for _, agent := range agents {
		if _, ok := allowed[agent.Status]; ok {
			filtered = append(filtered, agent)
		}
	}
	return filtered, nil
}

func (r *AgentRepository) UpdateStatus(ctx context.Context, kind AgentKind, agentID string, status domain.AgentStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET status = ? WHERE %s = ?`, kind.table(), kind.idColumn())

	res, err := r.db.ExecContext(ctx, query, status, agentID)
	if err != nil {
		return fmt.Errorf("failed to update %s %s status: %w", kind, agentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s not found", kind, agentID)
	}
	return nil
}

func (r *AgentRepository) CountByStatus(ctx context.Context, kind AgentKind, leagueID string, statuses ...domain.AgentStatus) (int, error) {
	agents, err := r.ListByStatus(ctx, kind, leagueID, statuses...)
	if err != nil {
		return 0, err
	}
	return len(agents), nil
}
