package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flow-db/flowload/internal/common/flowerrors"
)

func TestNewPassSummary(t *testing.T) {
	results := []DispatchResult{
		{BatchIndex: 0, Outcome: Succeeded, Attempts: 1, Records: 10},
		{BatchIndex: 1, Outcome: Succeeded, Attempts: 3, Records: 10},
		{BatchIndex: 2, Outcome: Failed, Attempts: 4, Records: 10, Reason: "status 500"},
		{BatchIndex: 3, Outcome: TimedOut, Attempts: 1, Records: 10},
		{BatchIndex: 4, Outcome: Cancelled, Attempts: 0, Records: 5},
	}

	summary := NewPassSummary(2, results)

	assert.Equal(t, 2, summary.Pass)
	assert.Equal(t, 5, summary.Batches)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, 1, summary.Cancelled)
	assert.Equal(t, 40, summary.RecordsAttempted)
	assert.Equal(t, 20, summary.RecordsSucceeded)
	assert.Equal(t, 5, summary.Retries)
	assert.Equal(t, summary.Batches, summary.Succeeded+summary.Failed+summary.TimedOut+summary.Cancelled)
	assert.False(t, summary.Complete())
}

func TestNewPassSummary_Empty(t *testing.T) {
	summary := NewPassSummary(1, nil)
	assert.Equal(t, 0, summary.Batches)
	assert.True(t, summary.Complete())
}

func TestPassSummaryDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	summary := PassSummary{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, summary.Duration())
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		Succeeded:   "succeeded",
		Failed:      "failed",
		TimedOut:    "timed-out",
		Cancelled:   "cancelled",
		Outcome(42): "Outcome(42)",
	}
	for outcome, want := range tests {
		assert.Equal(t, want, outcome.String())
	}
}

func TestDispatchResultJson(t *testing.T) {
	data, err := json.Marshal(DispatchResult{Pass: 1, BatchIndex: 2, Outcome: TimedOut, Attempts: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Outcome":"timed-out"`)
	assert.NotContains(t, string(data), "Reason")
}

func TestRange(t *testing.T) {
	r := Range{Start: 10, End: 25}
	assert.Equal(t, 15, r.Len())
	assert.Equal(t, "[10, 25)", r.String())
}

func TestStrategyValid(t *testing.T) {
	assert.True(t, Deterministic.Valid())
	assert.True(t, Randomized.Valid())
	assert.False(t, Strategy("chaotic").Valid())
}

func TestStrategyUnmarshalText(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte(" Randomized ")))
	assert.Equal(t, Randomized, s)

	err := s.UnmarshalText([]byte("chaotic"))
	var invalid *flowerrors.ErrInvalidArgument
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "strategy", invalid.Name)
	assert.Equal(t, Randomized, s, "unchanged on error")
}
