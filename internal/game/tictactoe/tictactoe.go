// Package tictactoe implements the 3x3 tic-tac-toe engine. The first
// player in the match listing plays X and moves first.
package tictactoe

import (
	"fmt"

	"agent-league/internal/domain"
	"agent-league/internal/game"
)

const (
	GameType = "tic_tac_toe"

	WinPoints  = 3
	DrawPoints = 1
	LossPoints = 0
)

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

type engine struct {
	board   [9]string
	players [2]string // players[0] is X, players[1] is O
	turn    int       // index into players
	moves   int

	over   bool
	winner string // player ID, empty on draw
	draw   bool
}

// New builds an engine for exactly two players.
func New(players []string) (game.Engine, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("tictactoe requires exactly 2 players, got %d", len(players))
	}
	return &engine{players: [2]string{players[0], players[1]}}, nil
}

func (e *engine) CurrentPlayer() string {
	return e.players[e.turn]
}

func (e *engine) mark(playerID string) string {
	if playerID == e.players[0] {
		return "X"
	}
	return "O"
}

func (e *engine) StateView() map[string]any {
	board := make([]string, 9)
	copy(board, e.board[:])
	return map[string]any{
		"board":          board,
		"current_player": e.CurrentPlayer(),
		"your_mark":      e.mark(e.CurrentPlayer()),
		"move_number":    e.moves + 1,
	}
}

// ApplyMove expects {"row": 0..2, "col": 0..2}. Out-of-turn moves,
// out-of-range cells, and occupied cells are all illegal.
func (e *engine) ApplyMove(playerID string, move map[string]any) error {
	if e.over {
		return fmt.Errorf("game is already over")
	}
	if playerID != e.CurrentPlayer() {
		return fmt.Errorf("not %s's turn", playerID)
	}

	row, ok := intField(move, "row")
	if !ok {
		return fmt.Errorf("move missing integer field 'row'")
	}
	col, ok := intField(move, "col")
	if !ok {
		return fmt.Errorf("move missing integer field 'col'")
	}
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return fmt.Errorf("cell (%d,%d) out of range", row, col)
	}

	cell := row*3 + col
	if e.board[cell] != "" {
		return fmt.Errorf("cell (%d,%d) already occupied", row, col)
	}

	e.board[cell] = e.mark(playerID)
	e.moves++

	if e.hasWin(e.board[cell]) {
		e.over = true
		e.winner = playerID
		return nil
	}
	if e.moves == 9 {
		e.over = true
		e.draw = true
		return nil
	}

	e.turn = 1 - e.turn
	return nil
}

func (e *engine) hasWin(mark string) bool {
	for _, line := range winningLines {
		if e.board[line[0]] == mark && e.board[line[1]] == mark && e.board[line[2]] == mark {
			return true
		}
	}
	return false
}

func (e *engine) Over() bool {
	return e.over
}

func (e *engine) Forfeit(playerID string) {
	e.over = true
	e.draw = false
	if playerID == e.players[0] {
		e.winner = e.players[1]
	} else {
		e.winner = e.players[0]
	}
}

func (e *engine) Result() game.Result {
	outcome := make(map[string]domain.Outcome, 2)
	points := make(map[string]int, 2)

	for _, playerID := range e.players {
		switch {
		case e.draw:
			outcome[playerID] = domain.OutcomeDraw
			points[playerID] = DrawPoints
		case playerID == e.winner:
			outcome[playerID] = domain.OutcomeWin
			points[playerID] = WinPoints
		default:
			outcome[playerID] = domain.OutcomeLoss
			points[playerID] = LossPoints
		}
	}

	board := make([]string, 9)
	copy(board, e.board[:])
	return game.Result{
		Outcome: outcome,
		Points:  points,
		Metadata: map[string]any{
			"final_board": board,
			"total_moves": e.moves,
		},
	}
}

// intField tolerates the numeric types JSON decoding can produce.
func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
