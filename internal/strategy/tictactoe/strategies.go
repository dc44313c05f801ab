// Package tictactoe provides the built-in tic-tac-toe strategies:
// "random" picks any empty cell, "smart" plays a simple heuristic of
// win, block, center, corner, first empty.
package tictactoe

import (
	"fmt"
	"math/rand"
	"sync"
)

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func parseState(state map[string]any) (board []string, mark string, err error) {
	rawBoard, ok := state["board"].([]any)
	if !ok || len(rawBoard) != 9 {
		return nil, "", fmt.Errorf("state missing 9-cell 'board'")
	}
	board = make([]string, 9)
	for i, cell := range rawBoard {
		s, ok := cell.(string)
		if !ok {
			return nil, "", fmt.Errorf("board cell %d is not a string", i)
		}
		board[i] = s
	}

	mark, ok = state["your_mark"].(string)
	if !ok || mark == "" {
		return nil, "", fmt.Errorf("state missing 'your_mark'")
	}
	return board, mark, nil
}

func emptyCells(board []string) []int {
	var cells []int
	for i, cell := range board {
		if cell == "" {
			cells = append(cells, i)
		}
	}
	return cells
}

func move(cell int) map[string]any {
	return map[string]any{"row": cell / 3, "col": cell % 3}
}

// Random picks a uniformly random empty cell.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "random" }

func (r *Random) ChooseMove(state map[string]any) (map[string]any, error) {
	board, _, err := parseState(state)
	if err != nil {
		return nil, err
	}
	cells := emptyCells(board)
	if len(cells) == 0 {
		return nil, fmt.Errorf("no empty cells")
	}
	r.mu.Lock()
	cell := cells[r.rng.Intn(len(cells))]
	r.mu.Unlock()
	return move(cell), nil
}

// Smart plays win-if-possible, then block, then center, then a corner,
// then the first empty cell.
type Smart struct{}

func NewSmart() *Smart { return &Smart{} }

func (s *Smart) Name() string { return "smart" }

func (s *Smart) ChooseMove(state map[string]any) (map[string]any, error) {
	board, mark, err := parseState(state)
	if err != nil {
		return nil, err
	}
	cells := emptyCells(board)
	if len(cells) == 0 {
		return nil, fmt.Errorf("no empty cells")
	}

	opponent := "O"
	if mark == "O" {
		opponent = "X"
	}

	if cell, ok := winningCell(board, mark); ok {
		return move(cell), nil
	}
	if cell, ok := winningCell(board, opponent); ok {
		return move(cell), nil
	}
	if board[4] == "" {
		return move(4), nil
	}
	for _, corner := range []int{0, 2, 6, 8} {
		if board[corner] == "" {
			return move(corner), nil
		}
	}
	return move(cells[0]), nil
}

// winningCell finds an empty cell that completes a line for mark.
func winningCell(board []string, mark string) (int, bool) {
	for _, line := range winningLines {
		var empty, count = -1, 0
		for _, cell := range line {
			switch board[cell] {
			case mark:
				count++
			case "":
				empty = cell
			}
		}
		if count == 2 && empty >= 0 {
			return empty, true
		}
	}
	return 0, false
}
