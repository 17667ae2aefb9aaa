package tasks

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	th "github.com/desertthunder/polish/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func duplicated() []models.Item {
	items := th.MakeItems(t0, "a", "b", "c", "d", "e")
	items[2] = items[0]
	items[4] = items[1]
	return items
}

func TestFindDuplicates(t *testing.T) {
	ctx := context.Background()

	t.Run("exact", func(t *testing.T) {
		f := setup(t)
		f.remote.Seed("pl", duplicated())
		d := NewDeduplicator(f.remote, f.log, log.New(io.Discard))

		groups, err := d.Find(ctx, "pl", false)
		require.NoError(t, err)
		require.Len(t, groups, 2)

		assert.Equal(t, "t0", groups[0].TrackID)
		assert.Equal(t, 1, groups[0].Extra())
		assert.Equal(t, []int{0, 2}, positions(groups[0]))
		assert.Equal(t, []int{1, 4}, positions(groups[1]))
		for _, o := range groups[1].Occurrences {
			assert.Equal(t, ReasonExact, o.Reason)
		}
	})

	t.Run("similar", func(t *testing.T) {
		f := setup(t)
		items := th.MakeItems(t0, "Song", "Other", "song ")
		items[2].Artists = []string{"ARTIST   song"}
		items = append(items, items[0])
		f.remote.Seed("pl", items)
		d := NewDeduplicator(f.remote, f.log, log.New(io.Discard))

		exact, err := d.Find(ctx, "pl", false)
		require.NoError(t, err)
		require.Len(t, exact, 1)
		assert.Equal(t, []int{0, 3}, positions(exact[0]))

		groups, err := d.Find(ctx, "pl", true)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "song|artist song", groups[0].Key)
		assert.Equal(t, []int{0, 2, 3}, positions(groups[0]))

		reasons := map[int]MatchReason{}
		for _, o := range groups[0].Occurrences {
			reasons[o.Position] = o.Reason
		}
		assert.Equal(t, map[int]MatchReason{0: ReasonExact, 2: ReasonSimilar, 3: ReasonExact}, reasons)
	})

	t.Run("no duplicates", func(t *testing.T) {
		f := setup(t)
		f.remote.Seed("pl", th.MakeItems(t0, "a", "b"))
		d := NewDeduplicator(f.remote, f.log, nil)

		groups, err := d.Find(ctx, "pl", false)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})
}

func positions(g DuplicateGroup) []int {
	var out []int
	for _, o := range g.Occurrences {
		out = append(out, o.Position)
	}
	return out
}

func TestRemoveDuplicates(t *testing.T) {
	ctx := context.Background()

	t.Run("removes and undoes", func(t *testing.T) {
		f := setup(t)
		f.remote.Seed("pl", duplicated())
		d := NewDeduplicator(f.remote, f.log, log.New(io.Discard))

		res, err := d.Remove(ctx, "pl", "u1", []Selection{
			{URI: "spotify:track:t1", Position: 4},
			{URI: "spotify:track:t0", Position: 2},
			{URI: "spotify:track:t1", Position: 3},
			{URI: "spotify:track:t9", Position: 99},
			{URI: "spotify:track:t0", Position: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Removed)
		assert.Equal(t, []string{"t0", "t1", "t3"}, f.remote.IDs("pl"))
		assert.Equal(t, f.remote.Token("pl"), res.SnapshotAfter)
		assert.Equal(t, 1, f.remote.Calls(th.CallRemovePositions))

		require.Len(t, res.Items, 2)
		assert.Equal(t, 2, res.Items[0].Position)
		assert.Equal(t, 4, res.Items[1].Position)
		assert.Equal(t, "a", res.Items[0].Name)

		require.NotNil(t, res.Operation)
		assert.Equal(t, models.OpDuplicatesRemove, res.Operation.Type)

		undo, err := f.log.Undo(ctx, "pl", "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, undo.Restored)
		assert.Equal(t, []string{"t0", "t1", "t0", "t3", "t1"}, f.remote.IDs("pl"))
	})

	t.Run("nothing selected", func(t *testing.T) {
		f := setup(t)
		f.remote.Seed("pl", duplicated())
		d := NewDeduplicator(f.remote, f.log, log.New(io.Discard))

		res, err := d.Remove(ctx, "pl", "u1", nil)
		require.NoError(t, err)
		assert.Zero(t, res.Removed)
		assert.Equal(t, "No duplicates selected", res.Message)
		assert.Zero(t, f.remote.Mutations())
	})

	t.Run("stale selections", func(t *testing.T) {
		f := setup(t)
		f.remote.Seed("pl", duplicated())
		d := NewDeduplicator(f.remote, f.log, log.New(io.Discard))

		res, err := d.Remove(ctx, "pl", "u1", []Selection{{URI: "spotify:track:t3", Position: 0}})
		require.NoError(t, err)
		assert.Zero(t, res.Removed)
		assert.Equal(t, "No duplicates removed", res.Message)
		assert.Zero(t, f.remote.Mutations())

		history, err := f.log.AllHistory(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestCancellationRegistry(t *testing.T) {
	r := NewCancellationRegistry()

	assert.False(t, r.Signal("job"), "unknown ids cannot be signalled")
	assert.False(t, r.Cancelled("job"))

	ch := r.Register("job")
	assert.Equal(t, ch, r.Register("job"))
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Cancelled("job"))

	assert.True(t, r.Signal("job"))
	assert.True(t, r.Signal("job"), "signalling twice is safe")
	assert.True(t, r.Cancelled("job"))

	select {
	case <-ch:
	default:
		t.Fatal("channel should be closed")
	}

	r.Clear("job")
	assert.Zero(t, r.Len())
	assert.False(t, r.Cancelled("job"))
}
