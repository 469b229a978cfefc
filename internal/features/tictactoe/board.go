package tictactoe

// Cell values. The first player marks +1 and the second -1, so a line summing
// to ±3 is a win.
const (
	empty = 0
	cross = 1
	nought = -1
)

// Board is a 3x3 grid indexed [row][col].
type Board [3][3]int

// Winner returns cross or nought for a completed line and empty otherwise.
func (b Board) Winner() int {
	sums := make([]int, 0, 8)
	for i := 0; i < 3; i++ {
		sums = append(sums,
			b[i][0]+b[i][1]+b[i][2],
			b[0][i]+b[1][i]+b[2][i],
		)
	}
	sums = append(sums,
		b[0][0]+b[1][1]+b[2][2],
		b[0][2]+b[1][1]+b[2][0],
	)
	for _, s := range sums {
		switch s {
		case 3:
			return cross
		case -3:
			return nought
		}
	}
	return empty
}

// Full reports whether no cell is left.
func (b Board) Full() bool {
	for _, row := range b {
		for _, v := range row {
			if v == empty {
				return false
			}
		}
	}
	return true
}

func inBounds(r, c int) bool {
	return r >= 0 && r < 3 && c >= 0 && c < 3
}

func symbol(v int) string {
	switch v {
	case cross:
		return "❌"
	case nought:
		return "⭕"
	}
	return "⬜"
}

// lines lists the cells of every row, column and diagonal.
var lines = func() [8][3][2]int {
	var out [8][3][2]int
	for i := range 3 {
		for j := range 3 {
			out[i][j] = [2]int{i, j}
			out[3+i][j] = [2]int{j, i}
		}
		out[6][i] = [2]int{i, i}
		out[7][i] = [2]int{i, 2 - i}
	}
	return out
}()

// BotMove picks the bot's cell: complete or block the first line two marks
// short of a win, else the centre, else a corner, else any free cell. The
// second return is false on a full board.
func (b Board) BotMove() (r, c int, ok bool) {
	for _, line := range lines {
		sum, free := 0, [2]int{-1, -1}
		for _, p := range line {
			v := b[p[0]][p[1]]
			sum += v
			if v == empty && free[0] < 0 {
				free = p
			}
		}
		if (sum == 2 || sum == -2) && free[0] >= 0 {
			return free[0], free[1], true
		}
	}
	if b[1][1] == empty {
		return 1, 1, true
	}
	for _, p := range [][2]int{{0, 0}, {0, 2}, {2, 0}, {2, 2}} {
		if b[p[0]][p[1]] == empty {
			return p[0], p[1], true
		}
	}
	for r := range 3 {
		for c := range 3 {
			if b[r][c] == empty {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}
