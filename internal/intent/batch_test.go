package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "IntentX/internal/errors"
)

func rawIntents(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"naturalLanguage":"swap %d usdc for eth"}`, i+1))
	}
	return items
}

func TestRunBatchRejectsSize(t *testing.T) {
	coord := NewBatchCoordinator(newFixture().svc)
	ctx := context.Background()

	_, err := coord.RunBatch(ctx, BatchRequest{})
	require.Error(t, err)
	assert.Equal(t, CodeBatchInvalid, xerrors.CodeOf(err))

	_, err = coord.RunBatch(ctx, BatchRequest{Intents: rawIntents(DefaultMaxBatchSize + 1)})
	require.Error(t, err)
	assert.Equal(t, CodeBatchInvalid, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "100")
}

func TestRunBatchAtLimit(t *testing.T) {
	f := newFixture()
	coord := NewBatchCoordinator(f.svc, WithConcurrency(16))

	result, err := coord.RunBatch(context.Background(), BatchRequest{Intents: rawIntents(DefaultMaxBatchSize)})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBatchSize, result.TotalIntents)
	assert.Equal(t, DefaultMaxBatchSize, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	assert.True(t, strings.HasPrefix(result.BatchID, "batch-"))
	assert.Equal(t, DefaultMaxBatchSize, f.ledger.Len())
	for i, item := range result.Results {
		assert.Equal(t, i, item.Index)
		assert.NotEmpty(t, item.TxHash)
	}
}

func TestRunBatchPartialFailure(t *testing.T) {
	f := newFixture()
	coord := NewBatchCoordinator(f.svc)

	req := BatchRequest{
		Intents: []json.RawMessage{
			json.RawMessage(`{"naturalLanguage":"stake 1 eth"}`),
			json.RawMessage(`{"naturalLanguage":""}`),
			json.RawMessage(`42`),
			json.RawMessage(`null`),
			json.RawMessage(`{"naturalLanguage":"borrow 10 dai"}`),
		},
		Metadata: map[string]any{"source": "dashboard"},
	}
	result, err := coord.RunBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalIntents)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 3, result.FailureCount)
	assert.Equal(t, result.TotalIntents, result.SuccessCount+result.FailureCount)

	assert.Equal(t, StatusCompleted, result.Results[0].Status)
	assert.Equal(t, StatusFailed, result.Results[1].Status)
	assert.Equal(t, CodeIntentValidation, result.Results[1].Code)
	assert.Equal(t, CodeBatchItemRejected, result.Results[2].Code)
	assert.Equal(t, CodeBatchItemRejected, result.Results[3].Code)
	assert.Equal(t, StatusCompleted, result.Results[4].Status)

	assert.Equal(t, "dashboard", result.Metadata["source"])
	assert.NotEmpty(t, result.Metadata["processedAt"])
	assert.Equal(t, 2, f.ledger.Len())
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, SubmitRequest) (*Intent, error) {
	panic("boom")
}

func TestRunBatchRecoversPanics(t *testing.T) {
	coord := NewBatchCoordinator(panicRunner{})
	result, err := coord.RunBatch(context.Background(), BatchRequest{Intents: rawIntents(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, result.FailureCount)
	for _, item := range result.Results {
		assert.Equal(t, xerrors.CodeInternal, item.Code)
		assert.Equal(t, "internal error", item.Error)
	}
}

func TestRunBatchAverageUsesWallClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(1000 * time.Millisecond)
	}
	coord := NewBatchCoordinator(newFixture().svc, WithBatchClock(clock))

	result, err := coord.RunBatch(context.Background(), BatchRequest{Intents: rawIntents(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.TotalProcessingTimeMs)
	assert.Equal(t, int64(333), result.AvgTimePerIntentMs)
}
