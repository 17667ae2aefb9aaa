package sorter

import (
	"math"
	"slices"

	"github.com/desertthunder/polish/internal/models"
)

// TargetOrder returns the permutation that sorts items: the item that belongs at position i is
// items[order[i]]. The sort is stable in both directions, so equal keys keep their current order.
func TargetOrder(items []models.Item, field models.SortField, dir models.Direction) []int {
	keys := make([]Key, len(items))
	order := make([]int, len(items))
	for i, it := range items {
		keys[i] = SortKey(it, field)
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int {
		c := keys[a].Compare(keys[b])
		if dir == models.Desc {
			return -c
		}
		return c
	})
	return order
}

// Apply returns items rearranged by order.
func Apply(items []models.Item, order []int) []models.Item {
	out := make([]models.Item, len(order))
	for i, idx := range order {
		out[i] = items[idx]
	}
	return out
}

// MovesNeeded counts the positions whose track id differs between current and target. It is an
// upper bound on the moves the preserve strategy makes.
func MovesNeeded(current, target []models.Item) int {
	moves := 0
	for i := range min(len(current), len(target)) {
		if current[i].ID != target[i].ID {
			moves++
		}
	}
	return moves
}

// EstimateSeconds predicts the wall time of a sort.
//
//	fast:     max(5, ceil(n/100) * 0.5)
//	preserve: max(10, moves*0.5 + (moves/10)*0.1)
func EstimateSeconds(method models.Method, n, moves int) int {
	var est float64
	switch method {
	case models.MethodFast:
		batches := (n + 99) / 100
		est = math.Max(5, float64(batches)*0.5)
	default:
		pauses := float64(moves/10) * 0.1
		est = math.Max(10, float64(moves)*0.5+pauses)
	}
	return int(math.Ceil(est))
}
