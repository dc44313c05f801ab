package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-league/internal/repository"
)

func newTestScheduler(t *testing.T) (*Scheduler, string) {
	t.Helper()

	db := newTestDB(t)
	createTestLeague(t, db, "league-1")
	scheduler := NewScheduler(
		repository.NewRoundRepository(db, zerolog.Nop()),
		repository.NewMatchRepository(db, zerolog.Nop()),
		zerolog.Nop())
	return scheduler, "league-1"
}

func TestGenerateFourPlayers(t *testing.T) {
	scheduler, leagueID := newTestScheduler(t)
	players := []string{"alice", "bob", "carol", "dave"}

	schedule, err := scheduler.Generate(context.Background(), leagueID, players, "tic_tac_toe")
	require.NoError(t, err)

	assert.Equal(t, 6, schedule.TotalMatches)
	assert.GreaterOrEqual(t, schedule.TotalRounds, 3)

	seen := map[string]int{}
	for _, round := range schedule.Rounds {
		inRound := map[string]struct{}{}
		for _, match := range round.Matches {
			require.Len(t, match.Players, 2)
			for _, p := range match.Players {
				_, dup := inRound[p]
				assert.False(t, dup, "player %s appears twice in round %d", p, round.RoundNumber)
				inRound[p] = struct{}{}
			}
			key := match.Players[0] + "|" + match.Players[1]
			seen[key]++
		}
	}

	assert.Len(t, seen, 6)
	for key, count := range seen {
		assert.Equal(t, 1, count, "pair %s scheduled more than once", key)
	}
}

// The schedule depends only on the player set, not the order players
// happened to register in.
func TestGenerateOrderIndependent(t *testing.T) {
	first, leagueA := newTestScheduler(t)
	second, leagueB := newTestScheduler(t)

	a, err := first.Generate(context.Background(), leagueA, []string{"alice", "bob", "carol", "dave"}, "tic_tac_toe")
	require.NoError(t, err)
	b, err := second.Generate(context.Background(), leagueB, []string{"dave", "carol", "alice", "bob"}, "tic_tac_toe")
	require.NoError(t, err)

	require.Equal(t, len(a.Rounds), len(b.Rounds))
	for i := range a.Rounds {
		require.Equal(t, len(a.Rounds[i].Matches), len(b.Rounds[i].Matches), "round %d", i+1)
		for j := range a.Rounds[i].Matches {
			assert.Equal(t, a.Rounds[i].Matches[j].Players, b.Rounds[i].Matches[j].Players)
		}
	}
}

func TestGenerateTooFewPlayers(t *testing.T) {
	scheduler, leagueID := newTestScheduler(t)

	schedule, err := scheduler.Generate(context.Background(), leagueID, []string{"alone"}, "tic_tac_toe")
	require.NoError(t, err)
	assert.Empty(t, schedule.Rounds)
	assert.Zero(t, schedule.TotalMatches)
}

func TestGenerateRoundNumbersFromOne(t *testing.T) {
	scheduler, leagueID := newTestScheduler(t)

	schedule, err := scheduler.Generate(context.Background(), leagueID, []string{"alice", "bob", "carol"}, "tic_tac_toe")
	require.NoError(t, err)

	for i, round := range schedule.Rounds {
		assert.Equal(t, i+1, round.RoundNumber)
	}
}

func TestGroupIntoRounds(t *testing.T) {
	pairs := []pair{
		{"a", "b"}, {"a", "c"}, {"a", "d"},
		{"b", "c"}, {"b", "d"}, {"c", "d"},
	}

	rounds := groupIntoRounds(pairs)
	require.NotEmpty(t, rounds)

	total := 0
	for _, round := range rounds {
		used := map[string]struct{}{}
		for _, p := range round {
			_, dupA := used[p.a]
			_, dupB := used[p.b]
			assert.False(t, dupA || dupB)
			used[p.a] = struct{}{}
			used[p.b] = struct{}{}
			total++
		}
	}
	assert.Equal(t, len(pairs), total)
}
