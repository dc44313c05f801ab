package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"agent-league/internal/config"
	"agent-league/internal/database"
	"agent-league/internal/domain"
	"agent-league/internal/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "league.db")}
	db, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestLeague(t *testing.T, db *sql.DB, leagueID string) {
	t.Helper()

	leagues := repository.NewLeagueRepository(db, zerolog.Nop())
	err := leagues.Create(context.Background(), &domain.League{
		LeagueID:  leagueID,
		Status:    domain.LeagueRegistration,
		CreatedAt: time.Now().UTC(),
		Config:    domain.LeagueConfig{Name: "test", MinPlayers: 2, MaxPlayers: 16, MinReferees: 1},
	})
	require.NoError(t, err)
}

func registerTestAgent(t *testing.T, db *sql.DB, kind repository.AgentKind, leagueID, agentID, endpoint string, status domain.AgentStatus) {
	t.Helper()

	agents := repository.NewAgentRepository(db, zerolog.Nop())
	err := agents.Register(context.Background(), kind, &domain.Agent{
		AgentID:      agentID,
		LeagueID:     leagueID,
		AuthToken:    "token-" + agentID,
		EndpointURL:  endpoint,
		Status:       status,
		RegisteredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}
