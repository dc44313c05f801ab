package tictactoe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-league/internal/domain"
	"agent-league/internal/game"
)

func newGame(t *testing.T) game.Engine {
	t.Helper()
	engine, err := New([]string{"alice", "bob"})
	require.NoError(t, err)
	return engine
}

func mv(row, col int) map[string]any {
	return map[string]any{"row": float64(row), "col": float64(col)}
}

func TestRequiresTwoPlayers(t *testing.T) {
	_, err := New([]string{"alice"})
	assert.Error(t, err)
	_, err = New([]string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestFirstPlayerIsX(t *testing.T) {
	engine := newGame(t)

	assert.Equal(t, "alice", engine.CurrentPlayer())
	state := engine.StateView()
	assert.Equal(t, "X", state["your_mark"])
}

func TestWinByRow(t *testing.T) {
	engine := newGame(t)

	// alice takes the top row, bob plays elsewhere.
	require.NoError(t, engine.ApplyMove("alice", mv(0, 0)))
	require.NoError(t, engine.ApplyMove("bob", mv(1, 0)))
	require.NoError(t, engine.ApplyMove("alice", mv(0, 1)))
	require.NoError(t, engine.ApplyMove("bob", mv(1, 1)))
	require.NoError(t, engine.ApplyMove("alice", mv(0, 2)))

	require.True(t, engine.Over())
	result := engine.Result()
	assert.Equal(t, domain.OutcomeWin, result.Outcome["alice"])
	assert.Equal(t, domain.OutcomeLoss, result.Outcome["bob"])
	assert.Equal(t, WinPoints, result.Points["alice"])
	assert.Equal(t, LossPoints, result.Points["bob"])
}

func TestDraw(t *testing.T) {
	engine := newGame(t)

	// X O X / X O O / O X X is a full board with no line.
	moves := []struct {
		player string
		row    int
		col    int
	}{
		{"alice", 0, 0}, {"bob", 0, 1}, {"alice", 0, 2},
		{"bob", 1, 1}, {"alice", 1, 0}, {"bob", 1, 2},
		{"alice", 2, 1}, {"bob", 2, 0}, {"alice", 2, 2},
	}
	for _, m := range moves {
		require.NoError(t, engine.ApplyMove(m.player, mv(m.row, m.col)))
	}

	require.True(t, engine.Over())
	result := engine.Result()
	assert.Equal(t, domain.OutcomeDraw, result.Outcome["alice"])
	assert.Equal(t, domain.OutcomeDraw, result.Outcome["bob"])
	assert.Equal(t, DrawPoints, result.Points["alice"])
	assert.Equal(t, DrawPoints, result.Points["bob"])
}

func TestIllegalMoves(t *testing.T) {
	engine := newGame(t)

	// Out of turn.
	assert.Error(t, engine.ApplyMove("bob", mv(0, 0)))

	require.NoError(t, engine.ApplyMove("alice", mv(0, 0)))
	// Occupied cell.
	assert.Error(t, engine.ApplyMove("bob", mv(0, 0)))
	// Out of range.
	assert.Error(t, engine.ApplyMove("bob", mv(3, 0)))
	// Missing fields.
	assert.Error(t, engine.ApplyMove("bob", map[string]any{"row": float64(1)}))

	// The game itself is unaffected by rejected moves.
	assert.False(t, engine.Over())
	assert.Equal(t, "bob", engine.CurrentPlayer())
}

func TestForfeit(t *testing.T) {
	engine := newGame(t)
	require.NoError(t, engine.ApplyMove("alice", mv(0, 0)))

	engine.Forfeit("bob")

	require.True(t, engine.Over())
	result := engine.Result()
	assert.Equal(t, domain.OutcomeWin, result.Outcome["alice"])
	assert.Equal(t, domain.OutcomeLoss, result.Outcome["bob"])
	assert.Equal(t, WinPoints, result.Points["alice"])
	assert.Equal(t, LossPoints, result.Points["bob"])
}
