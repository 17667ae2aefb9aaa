package sorter

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
	th "github.com/desertthunder/polish/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// simulate applies moves to ids the way the remote does.
func simulate(ids []string, moves []Move) []string {
	out := append([]string(nil), ids...)
	for _, mv := range moves {
		moved := append([]string(nil), out[mv.Start:mv.Start+mv.Length]...)
		rest := append(append([]string(nil), out[:mv.Start]...), out[mv.Start+mv.Length:]...)
		at := mv.InsertBefore
		if at > mv.Start {
			at -= mv.Length
		}
		out = append(rest[:at], append(moved, rest[at:]...)...)
	}
	return out
}

func ids(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func nopPause(context.Context, time.Duration) error { return nil }

func TestSortKey(t *testing.T) {
	item := models.Item{
		Title:       "Hello",
		Artists:     []string{"Zed", "Amy"},
		Album:       "LOUD",
		ReleaseDate: "2001-02-03",
		AddedAt:     time.Date(2020, 5, 6, 7, 8, 9, 0, time.FixedZone("x", 3600)),
		DurationMS:  2500,
	}

	assert.Equal(t, Key{Text: "hello"}, SortKey(item, models.FieldTitle))
	assert.Equal(t, Key{Text: "zed"}, SortKey(item, models.FieldArtist))
	assert.Equal(t, Key{Text: "loud"}, SortKey(item, models.FieldAlbum))
	assert.Equal(t, Key{Text: "2001-02-03"}, SortKey(item, models.FieldReleaseDate))
	assert.Equal(t, Key{Text: "2020-05-06T06:08:09Z"}, SortKey(item, models.FieldDateAdded))
	assert.Equal(t, Key{Num: 2500}, SortKey(item, models.FieldDuration))

	t.Run("missing values", func(t *testing.T) {
		var empty models.Item
		assert.Equal(t, Key{}, SortKey(empty, models.FieldTitle))
		assert.Equal(t, Key{}, SortKey(empty, models.FieldArtist))
		assert.Equal(t, Key{Text: "0000-00-00"}, SortKey(empty, models.FieldReleaseDate))
		assert.Equal(t, Key{Text: "1970-01-01T00:00:00Z"}, SortKey(empty, models.FieldDateAdded))
		assert.Equal(t, Key{Num: 0}, SortKey(empty, models.FieldDuration))
	})
}

func TestTargetOrder(t *testing.T) {
	items := th.MakeItems(base, "b", "A", "c", "a")

	t.Run("ascending is case-insensitive and stable", func(t *testing.T) {
		order := TargetOrder(items, models.FieldTitle, models.Asc)
		assert.Equal(t, []int{1, 3, 0, 2}, order)
	})

	t.Run("descending keeps ties in current order", func(t *testing.T) {
		order := TargetOrder(items, models.FieldTitle, models.Desc)
		assert.Equal(t, []int{2, 0, 1, 3}, order)
	})

	t.Run("duration sorts numerically", func(t *testing.T) {
		items := th.MakeItems(base, "x", "y", "z")
		items[0].DurationMS = 900000
		items[1].DurationMS = 90000
		items[2].DurationMS = 9000
		assert.Equal(t, []int{2, 1, 0}, TargetOrder(items, models.FieldDuration, models.Asc))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, TargetOrder(nil, models.FieldTitle, models.Asc))
	})
}

func TestMovesNeeded(t *testing.T) {
	items := th.MakeItems(base, "c", "b", "a")
	target := Apply(items, TargetOrder(items, models.FieldTitle, models.Asc))

	assert.Equal(t, 2, MovesNeeded(items, target))
	assert.Equal(t, 0, MovesNeeded(target, target))
	assert.Equal(t, 0, MovesNeeded(nil, nil))
}

func TestEstimateSeconds(t *testing.T) {
	tests := []struct {
		name   string
		method models.Method
		n      int
		moves  int
		want   int
	}{
		{"fast floor", models.MethodFast, 50, 0, 5},
		{"fast large", models.MethodFast, 2500, 0, 13},
		{"preserve floor", models.MethodPreserve, 100, 3, 10},
		{"preserve large", models.MethodPreserve, 1000, 100, 51},
		{"preserve fractional", models.MethodPreserve, 1000, 25, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateSeconds(tt.method, tt.n, tt.moves))
		})
	}
}

func TestPlanMoves(t *testing.T) {
	t.Run("already sorted plans nothing", func(t *testing.T) {
		assert.Empty(t, PlanMoves([]int{0, 1, 2, 3}))
		assert.Empty(t, PlanMoves(nil))
	})

	t.Run("insert before rule", func(t *testing.T) {
		moves := PlanMoves([]int{2, 0, 1})
		assert.Equal(t, []Move{{Start: 2, Length: 1, InsertBefore: 0}}, moves)
	})

	t.Run("reversed", func(t *testing.T) {
		order := []int{4, 3, 2, 1, 0}
		moves := PlanMoves(order)
		assert.Equal(t, []string{"4", "3", "2", "1", "0"}, simulate([]string{"0", "1", "2", "3", "4"}, moves))
		assert.Len(t, moves, 4)
	})

	t.Run("random permutations reach the target", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for n := 1; n <= 40; n++ {
			order := rng.Perm(n)
			start := make([]string, n)
			want := make([]string, n)
			for i := range n {
				start[i] = string(rune('A' + i))
			}
			for i, idx := range order {
				want[i] = start[idx]
			}

			moves := PlanMoves(order)
			require.Equal(t, want, simulate(start, moves), "n=%d order=%v", n, order)
			assert.LessOrEqual(t, len(moves), n)
			for _, mv := range moves {
				assert.Equal(t, 1, mv.Length)
			}
		}
	})
}

func TestPreserve(t *testing.T) {
	ctx := context.Background()

	t.Run("sorts and keeps added dates", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "d", "b", "a", "c")
		mock.Seed("pl", items)

		order := TargetOrder(items, models.FieldTitle, models.Asc)
		var progress []int
		res, err := Preserve(ctx, mock, "pl", order, mock.Token("pl"), Options{
			Progress: func(done int) { progress = append(progress, done) },
			Pause:    nopPause,
		})
		require.NoError(t, err)

		assert.Equal(t, ids(Apply(items, order)), mock.IDs("pl"))
		assert.Equal(t, res.Moves, res.Calls)
		assert.Equal(t, mock.Token("pl"), res.SnapshotAfter)
		assert.Len(t, progress, res.Moves)
		for i, it := range mock.Snapshot("pl") {
			orig := items[order[i]]
			assert.Equal(t, orig.AddedAt, it.AddedAt)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "c", "a", "b")
		mock.Seed("pl", items)

		_, err := Preserve(ctx, mock, "pl", TargetOrder(items, models.FieldTitle, models.Asc), "", Options{Pause: nopPause})
		require.NoError(t, err)
		before := mock.Mutations()

		sorted := mock.Snapshot("pl")
		res, err := Preserve(ctx, mock, "pl", TargetOrder(sorted, models.FieldTitle, models.Asc), mock.Token("pl"), Options{Pause: nopPause})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Moves)
		assert.Equal(t, before, mock.Mutations())
	})

	t.Run("duplicate keys and duplicate tracks", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "b", "a", "b", "a")
		items[2] = items[0]
		mock.Seed("pl", items)

		order := TargetOrder(items, models.FieldTitle, models.Asc)
		assert.Equal(t, []int{1, 3, 0, 2}, order)

		_, err := Preserve(ctx, mock, "pl", order, "", Options{Pause: nopPause})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t3", "t0", "t0"}, mock.IDs("pl"))
	})

	t.Run("pauses every ten moves", func(t *testing.T) {
		mock := th.NewMockCollection()
		titles := make([]string, 25)
		for i := range titles {
			titles[i] = string(rune('z' - i))
		}
		items := th.MakeItems(base, titles...)
		mock.Seed("pl", items)

		pauses := 0
		res, err := Preserve(ctx, mock, "pl", TargetOrder(items, models.FieldTitle, models.Asc), "", Options{
			Pause: func(_ context.Context, d time.Duration) error {
				assert.Equal(t, 100*time.Millisecond, d)
				pauses++
				return nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 24, res.Moves)
		assert.Equal(t, 2, pauses)
	})

	t.Run("cancellation stops between moves", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "e", "d", "c", "b", "a")
		mock.Seed("pl", items)

		moved := 0
		res, err := Preserve(ctx, mock, "pl", TargetOrder(items, models.FieldTitle, models.Asc), "", Options{
			Progress:  func(done int) { moved = done },
			Cancelled: func() bool { return moved >= 2 },
			Pause:     nopPause,
		})
		require.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.Equal(t, 2, res.Moves)
		assert.Equal(t, 2, mock.Calls(th.CallMoveRange))
	})

	t.Run("remote failure", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "c", "b", "a")
		mock.Seed("pl", items)
		mock.FailAfter(th.CallMoveRange, 1, shared.ErrRemoteAPI)

		res, err := Preserve(ctx, mock, "pl", TargetOrder(items, models.FieldTitle, models.Asc), "", Options{Pause: nopPause})
		assert.ErrorIs(t, err, shared.ErrRemoteAPI)
		assert.Equal(t, 1, res.Moves)
		assert.Equal(t, 2, res.Calls)
	})
}

func TestFast(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites in batches", func(t *testing.T) {
		mock := th.NewMockCollection()
		titles := make([]string, 230)
		for i := range titles {
			titles[i] = string(rune(0x4e00 + 229 - i))
		}
		items := th.MakeItems(base, titles...)
		mock.Seed("pl", items)

		order := TargetOrder(items, models.FieldTitle, models.Asc)
		var progress []int
		res, err := Fast(ctx, mock, "pl", items, order, mock.Token("pl"), Options{
			Progress: func(done int) { progress = append(progress, done) },
		})
		require.NoError(t, err)

		assert.Equal(t, ids(Apply(items, order)), mock.IDs("pl"))
		assert.Equal(t, []int{100, 200, 230}, progress)
		assert.Equal(t, 3, res.Calls)
		assert.Equal(t, 1, mock.Calls(th.CallReplaceItems))
		assert.Equal(t, 2, mock.Calls(th.CallAppendItems))
		assert.Equal(t, mock.Token("pl"), res.SnapshotAfter)
	})

	t.Run("sorted playlist is left alone", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "a", "b", "c")
		mock.Seed("pl", items)

		res, err := Fast(ctx, mock, "pl", items, TargetOrder(items, models.FieldTitle, models.Asc), "snap-1", Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, mock.Mutations())
		assert.Equal(t, "snap-1", res.SnapshotAfter)
	})

	t.Run("refuses items without uri", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "b", "a")
		items[1].URI = ""
		mock.Seed("pl", items)

		_, err := Fast(ctx, mock, "pl", items, []int{1, 0}, "", Options{})
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, 0, mock.Mutations())
	})

	t.Run("cancelled before writing", func(t *testing.T) {
		mock := th.NewMockCollection()
		items := th.MakeItems(base, "b", "a")
		mock.Seed("pl", items)

		res, err := Fast(ctx, mock, "pl", items, []int{1, 0}, "", Options{Cancelled: func() bool { return true }})
		require.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.Equal(t, 0, mock.Mutations())
	})
}

func TestRun(t *testing.T) {
	mock := th.NewMockCollection()
	items := th.MakeItems(base, "b", "a")
	mock.Seed("pl", items)

	res, err := Run(context.Background(), mock, "pl", models.MethodPreserve, items, []int{1, 0}, "", Options{Pause: nopPause})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Moves)
	assert.Equal(t, 1, mock.Calls(th.CallMoveRange))

	_, err = Run(context.Background(), mock, "missing", models.MethodFast, items, []int{1, 0}, "", Options{})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
