package sorter

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
)

const (
	pauseEvery    = 10
	pauseDuration = 100 * time.Millisecond
)

// Result describes what a strategy did to the remote playlist.
type Result struct {
	Moves         int
	Calls         int
	Cancelled     bool
	SnapshotAfter string
}

// Options are the hooks a strategy reports through.
type Options struct {
	// Progress receives the number of items written (fast) or moves made (preserve).
	Progress func(done int)
	// Cancelled is polled between remote calls.
	Cancelled func() bool
	// Pause sleeps between move bursts. Defaults to a context-aware sleep.
	Pause func(ctx context.Context, d time.Duration) error
}

func (o Options) progress(done int) {
	if o.Progress != nil {
		o.Progress(done)
	}
}

func (o Options) cancelled() bool {
	return o.Cancelled != nil && o.Cancelled()
}

func (o Options) pause(ctx context.Context, d time.Duration) error {
	if o.Pause != nil {
		return o.Pause(ctx, d)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func identity(order []int) bool {
	for i, idx := range order {
		if i != idx {
			return false
		}
	}
	return true
}

// Run dispatches to [Fast] or [Preserve] by method.
func Run(ctx context.Context, c services.Collection, id string, method models.Method, items []models.Item, order []int, token string, opts Options) (Result, error) {
	if method == models.MethodFast {
		return Fast(ctx, c, id, items, order, token, opts)
	}
	return Preserve(ctx, c, id, order, token, opts)
}

// Fast rewrites the playlist in the target order, replacing the first batch and appending the
// rest. Added-at dates are reset by the remote. Cancellation is honored only before the first
// write since stopping mid-way would drop the unwritten tail.
func Fast(ctx context.Context, c services.Collection, id string, items []models.Item, order []int, token string, opts Options) (Result, error) {
	res := Result{SnapshotAfter: token}
	if identity(order) {
		opts.progress(len(items))
		return res, nil
	}
	if opts.cancelled() {
		res.Cancelled = true
		return res, nil
	}

	uris := make([]string, 0, len(order))
	for _, idx := range order {
		if items[idx].URI == "" {
			return res, fmt.Errorf("%w: item at position %d has no uri and cannot be rewritten", shared.ErrValidation, idx)
		}
		uris = append(uris, items[idx].URI)
	}

	after, err := services.ReplaceAll(ctx, c, id, uris, func(written int) error {
		res.Calls++
		opts.progress(written)
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Moves = len(uris)
	res.SnapshotAfter = after
	return res, nil
}

// Preserve applies [PlanMoves] one move at a time, chaining the version token through each call
// and pausing briefly every ten moves. The playlist is left partially sorted on cancellation.
func Preserve(ctx context.Context, c services.Collection, id string, order []int, token string, opts Options) (Result, error) {
	res := Result{SnapshotAfter: token}
	plan := PlanMoves(order)

	for i, mv := range plan {
		if opts.cancelled() {
			res.Cancelled = true
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		next, err := c.MoveRange(ctx, id, mv.Start, mv.Length, mv.InsertBefore, res.SnapshotAfter)
		res.Calls++
		if err != nil {
			return res, fmt.Errorf("move %d/%d failed: %w", i+1, len(plan), err)
		}
		res.SnapshotAfter = next
		res.Moves++
		opts.progress(res.Moves)

		if res.Moves%pauseEvery == 0 && res.Moves < len(plan) {
			if err := opts.pause(ctx, pauseDuration); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
