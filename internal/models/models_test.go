package models

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/polish/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortSpec(t *testing.T) {
	t.Run("ParseSortSpec applies defaults", func(t *testing.T) {
		spec, err := ParseSortSpec("", "", "")
		require.NoError(t, err)
		assert.Equal(t, DefaultSortSpec, spec)
	})

	t.Run("ParseSortSpec normalizes case", func(t *testing.T) {
		spec, err := ParseSortSpec(" Title ", "ASC", "Fast")
		require.NoError(t, err)
		assert.Equal(t, SortSpec{Field: FieldTitle, Direction: Asc, Method: MethodFast}, spec)
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		for _, tc := range [][3]string{
			{"popularity", "asc", "fast"},
			{"title", "up", "fast"},
			{"title", "asc", "slow"},
		} {
			_, err := ParseSortSpec(tc[0], tc[1], tc[2])
			assert.ErrorIs(t, err, shared.ErrValidation, "input %v", tc)
		}
	})
}

func TestJobUpdate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := NewJob("pl1", "u1", DefaultSortSpec, now)

	require.Equal(t, JobPending, job.Status)
	require.Nil(t, job.CompletedAt)

	JobUpdate{Status: Ptr(JobInProgress), Message: Ptr("working")}.Apply(job, now.Add(time.Second))
	assert.Equal(t, JobInProgress, job.Status)
	assert.Equal(t, "working", job.Message)
	assert.Nil(t, job.CompletedAt, "completed_at is only set on terminal transitions")

	later := now.Add(time.Minute)
	JobUpdate{Status: Ptr(JobCompleted), Progress: Ptr(10), Total: Ptr(10)}.Apply(job, later)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(later))
	assert.Equal(t, 1.0, job.Percent())
}

func TestDecodeParams(t *testing.T) {
	t.Run("sort", func(t *testing.T) {
		p, err := DecodeParams(ActionSort, []byte(`{"schedule_type":"weekly","hour_of_day":7,"day_of_week":"fri","sort_by":"title"}`))
		require.NoError(t, err)

		sp, ok := p.(SortParams)
		require.True(t, ok)
		assert.Equal(t, RecurWeekly, sp.Timing().Type)
		assert.Equal(t, 7, sp.HourOfDay)
		assert.Equal(t, SortSpec{Field: FieldTitle, Direction: Desc, Method: MethodPreserve}, sp.Spec())
	})

	t.Run("unknown action keeps recurrence", func(t *testing.T) {
		p, err := DecodeParams("reshuffle", []byte(`{"schedule_type":"daily","hour_of_day":3}`))
		require.NoError(t, err)
		assert.Equal(t, ActionType("reshuffle"), p.Action())
		assert.Equal(t, 3, p.Timing().HourOfDay)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeParams(ActionSort, []byte(`{`))
		assert.Error(t, err)
	})
}

func TestDecodePayload(t *testing.T) {
	_, err := DecodePayload("shuffle", []byte(`{}`))
	assert.True(t, errors.Is(err, shared.ErrValidation))

	op := &Operation{CollectionID: "pl", OwnerID: "u", Type: OpSortReorder, Payload: DuplicatesRemovePayload{}}
	assert.ErrorIs(t, op.Validate(), shared.ErrValidation, "payload variant must match op type")
}
