package sorter

// Move relocates Length items starting at Start so they land before InsertBefore, where
// InsertBefore indexes the list as it is before the move.
type Move struct {
	Start        int `json:"range_start"`
	Length       int `json:"range_length"`
	InsertBefore int `json:"insert_before"`
}

// PlanMoves returns the single-item moves that turn the identity order into order.
//
// Position t is settled in ascending order: the item that belongs there is located in the
// simulated list and moved only if it is elsewhere, so already placed items cost nothing.
func PlanMoves(order []int) []Move {
	n := len(order)
	cur := make([]int, n)
	pos := make([]int, n)
	for i := range n {
		cur[i] = i
		pos[i] = i
	}

	var moves []Move
	for t, want := range order {
		p := pos[want]
		if p == t {
			continue
		}

		insertBefore := t
		if p < t {
			insertBefore = t + 1
		}
		moves = append(moves, Move{Start: p, Length: 1, InsertBefore: insertBefore})

		// Shift the items between t and p one slot right, then drop want at t.
		if p > t {
			copy(cur[t+1:p+1], cur[t:p])
		} else {
			copy(cur[p:t], cur[p+1:t+1])
		}
		cur[t] = want
		lo, hi := min(p, t), max(p, t)
		for i := lo; i <= hi; i++ {
			pos[cur[i]] = i
		}
	}
	return moves
}
