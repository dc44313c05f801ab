package tictactoe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(board [9]string, mark string) map[string]any {
	cells := make([]any, 9)
	for i, c := range board {
		cells[i] = c
	}
	return map[string]any{"board": cells, "your_mark": mark}
}

func cellOf(t *testing.T, move map[string]any) int {
	t.Helper()
	row, ok := move["row"].(int)
	require.True(t, ok)
	col, ok := move["col"].(int)
	require.True(t, ok)
	return row*3 + col
}

func TestRandomPicksEmptyCell(t *testing.T) {
	random := NewRandom(1)
	board := [9]string{"X", "O", "X", "O", "", "X", "O", "X", "O"}

	move, err := random.ChooseMove(stateWith(board, "X"))
	require.NoError(t, err)
	assert.Equal(t, 4, cellOf(t, move))
}

func TestRandomFullBoard(t *testing.T) {
	random := NewRandom(1)
	board := [9]string{"X", "O", "X", "O", "X", "X", "O", "X", "O"}

	_, err := random.ChooseMove(stateWith(board, "X"))
	assert.Error(t, err)
}

func TestSmartTakesWin(t *testing.T) {
	smart := NewSmart()
	// X X _ on the top row with X to move.
	board := [9]string{"X", "X", "", "O", "O", "", "", "", ""}

	move, err := smart.ChooseMove(stateWith(board, "X"))
	require.NoError(t, err)
	assert.Equal(t, 2, cellOf(t, move))
}

func TestSmartBlocksOpponent(t *testing.T) {
	smart := NewSmart()
	// O threatens the middle row; X must block at cell 5.
	board := [9]string{"X", "", "", "O", "O", "", "X", "", ""}

	move, err := smart.ChooseMove(stateWith(board, "X"))
	require.NoError(t, err)
	assert.Equal(t, 5, cellOf(t, move))
}

func TestSmartPrefersCenter(t *testing.T) {
	smart := NewSmart()
	board := [9]string{"X", "", "", "", "", "", "", "", ""}

	move, err := smart.ChooseMove(stateWith(board, "O"))
	require.NoError(t, err)
	assert.Equal(t, 4, cellOf(t, move))
}

func TestSmartWinBeatsBlock(t *testing.T) {
	smart := NewSmart()
	// Both sides have two in a row; taking the win comes first.
	board := [9]string{"X", "X", "", "O", "O", "", "", "", ""}

	move, err := smart.ChooseMove(stateWith(board, "O"))
	require.NoError(t, err)
	assert.Equal(t, 5, cellOf(t, move))
}

func TestMalformedState(t *testing.T) {
	smart := NewSmart()

	_, err := smart.ChooseMove(map[string]any{"board": []any{"X"}})
	assert.Error(t, err)
	_, err = smart.ChooseMove(map[string]any{"your_mark": "X"})
	assert.Error(t, err)
}
