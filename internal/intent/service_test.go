package intent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/ledger"
	"IntentX/internal/observability/alerting"
	"IntentX/internal/web3"
)

func instantSettler() Settler {
	return SettlerFunc(func(ctx context.Context) error { return ctx.Err() })
}

func blockingSettler() Settler {
	return SettlerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	ledger   *ledger.Ledger
	notifier *alerting.MemoryNotifier
}

func newFixture(opts ...ServiceOption) *fixture {
	f := &fixture{
		store:    NewMemoryStore(),
		ledger:   ledger.New(),
		notifier: &alerting.MemoryNotifier{},
	}
	base := []ServiceOption{
		WithRandomness(NewRandomness(99)),
		WithSettler(instantSettler()),
		WithGaslessSettler(instantSettler()),
		WithAlertDispatcher(alerting.NewFanout(f.notifier)),
	}
	f.svc = NewService(f.store, f.ledger, append(base, opts...)...)
	return f
}

func TestSubmitValidatesText(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{NaturalLanguage: "  "})
	require.Error(t, err)
	assert.Equal(t, CodeIntentValidation, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "naturalLanguage")

	_, err = f.svc.Submit(ctx, SubmitRequest{NaturalLanguage: strings.Repeat("a", MaxNaturalLanguageLength+1)})
	require.Error(t, err)
	assert.Equal(t, CodeIntentValidation, xerrors.CodeOf(err))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestEndToEndSwap(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	parsed, err := f.svc.SubmitAndParse(ctx, SubmitRequest{NaturalLanguage: "Swap 100 USDC for WETH"})
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, parsed.Status)
	require.Len(t, parsed.ParsedSteps, 1)
	assert.True(t, strings.HasSuffix(parsed.TotalGasEstimate, " ETH"))

	completed, err := f.svc.Execute(ctx, parsed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Len(t, completed.TxHash, 66)
	assert.True(t, strings.HasPrefix(completed.TxHash, "0x"))
	require.NotNil(t, completed.ExecutedAt)

	records := f.ledger.All()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, "swap", record.Type)
	assert.Equal(t, "WETH", record.TokenSymbol)
	assert.Equal(t, "100", record.Amount)
	assert.Equal(t, completed.TxHash, record.TxHash)
	assert.Equal(t, completed.TotalGasEstimate, record.GasUsed)
	assert.Equal(t, DefaultNetwork, record.Network)
	assert.Equal(t, ledger.StatusConfirmed, record.Status)

	view, err := f.svc.Logs(ctx, parsed.ID)
	require.NoError(t, err)
	statuses := make([]Status, 0, len(view.Logs))
	for _, entry := range view.Logs {
		statuses = append(statuses, entry.Status)
	}
	assert.Equal(t, []Status{StatusCreated, StatusParsed, StatusExecuting, StatusCompleted}, statuses)
}

func TestExecuteRequiresParsedIntent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.Submit(ctx, SubmitRequest{NaturalLanguage: "stake 1 eth"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, created.ID)
	require.ErrorIs(t, err, ErrIntentNotReady)
	assert.Equal(t, "Intent not ready for execution", xerrors.Exposed(err))

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, got.Status)
	assert.Zero(t, f.ledger.Len())
}

func TestExecuteUnknownIntent(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Execute(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrIntentNotFound)
	assert.Zero(t, f.ledger.Len())
}

func TestCompletedIntentIsTerminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	done, err := f.svc.Run(ctx, SubmitRequest{NaturalLanguage: "supply 10 usdc on aave"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, done.ID)
	require.ErrorIs(t, err, ErrIntentNotReady)
	_, err = f.svc.Parse(ctx, done.ID)
	require.Error(t, err)
	assert.Equal(t, CodeIntentTransition, xerrors.CodeOf(err))
	assert.Equal(t, 1, f.ledger.Len())
}

func TestSettlementTimeoutFailsIntent(t *testing.T) {
	f := newFixture(WithSettler(blockingSettler()), WithSettlementTimeout(20*time.Millisecond))
	ctx := context.Background()

	parsed, err := f.svc.SubmitAndParse(ctx, SubmitRequest{NaturalLanguage: "borrow 5 dai"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, parsed.ID)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))

	got, err := f.svc.Get(ctx, parsed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Empty(t, got.TxHash)
	assert.Zero(t, f.ledger.Len())

	coded, ok := xerrors.From(err)
	require.True(t, ok)
	assert.Equal(t, parsed.ID, coded.Metadata()["intent_id"])
	assert.True(t, xerrors.RetryableError(err))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, parsed.ID, events[0].IntentID)
	assert.Equal(t, xerrors.CodeTimeout, events[0].Code)
	assert.Equal(t, "settlement timed out", events[0].Message)
	assert.Equal(t, xerrors.SeverityWarning, events[0].Severity)
	assert.Equal(t, "true", events[0].Metadata["retryable"])
	assert.Equal(t, context.DeadlineExceeded.Error(), events[0].Metadata["cause"])
}

func TestCancelledSettlementFailsIntent(t *testing.T) {
	f := newFixture(WithSettler(blockingSettler()))
	ctx, cancel := context.WithCancel(context.Background())

	parsed, err := f.svc.SubmitAndParse(ctx, SubmitRequest{NaturalLanguage: "stake 2 eth"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Execute(ctx, parsed.ID)
		done <- err
	}()
	require.Eventually(t, func() bool {
		got, _ := f.svc.Get(context.Background(), parsed.ID)
		return got != nil && got.Status == StatusExecuting
	}, time.Second, 5*time.Millisecond)
	cancel()

	err = <-done
	require.Error(t, err)
	assert.Equal(t, CodeIntentSettlement, xerrors.CodeOf(err))

	got, err := f.svc.Get(context.Background(), parsed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Zero(t, f.ledger.Len())
	assert.Equal(t, xerrors.SeverityWarning, xerrors.SeverityOf(err), "调用方取消不按 critical 处理")

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, parsed.ID, events[0].IntentID)
	assert.Equal(t, "settlement cancelled", events[0].Message)
	assert.Equal(t, xerrors.SeverityWarning, events[0].Severity)
	assert.Equal(t, "false", events[0].Metadata["retryable"])
}

func TestConcurrentExecuteSettlesOnce(t *testing.T) {
	release := make(chan struct{})
	settler := SettlerFunc(func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	f := newFixture(WithSettler(settler))
	ctx := context.Background()

	parsed, err := f.svc.SubmitAndParse(ctx, SubmitRequest{NaturalLanguage: "swap 1 eth for usdc"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.Execute(ctx, parsed.ID)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		got, _ := f.svc.Get(ctx, parsed.ID)
		return got != nil && got.Status == StatusExecuting
	}, time.Second, 5*time.Millisecond)

	_, err = f.svc.Execute(ctx, parsed.ID)
	require.Error(t, err)
	assert.Equal(t, CodeIntentTransition, xerrors.CodeOf(err))

	close(release)
	wg.Wait()
	assert.Equal(t, 1, f.ledger.Len())
}

func TestTimerSettlerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := TimerSettler{Delay: time.Hour}.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, TimerSettler{Delay: time.Millisecond}.Await(context.Background()))
}

func TestExecuteGasless(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sender := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	result, err := f.svc.ExecuteGasless(ctx, GaslessRequest{
		NaturalLanguage: "Swap 50 DAI for USDC",
		UserOperation:   &web3.UserOperation{Sender: sender},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, SponsoredGasCost, result.GasCost)
	assert.Equal(t, sender, result.UserOperation.Sender)
	assert.Len(t, result.UserOperation.Signature, 65)
	assert.Len(t, result.UserOpHash, 66)
	assert.Equal(t, result.Intent.TxHash, result.BundlerTxHash)
	assert.True(t, result.Intent.Sponsored)
	assert.Equal(t, "0", result.Intent.TotalGasEstimate)
	assert.Equal(t, sender.Hex(), result.Intent.Metadata["sender"])

	records := f.ledger.All()
	require.Len(t, records, 1)
	assert.Equal(t, "0", records[0].GasUsed)
	assert.Equal(t, "USDC", records[0].TokenSymbol)
	assert.Equal(t, strings.TrimSuffix(TotalGas(result.Intent.ParsedSteps), " "+GasUnit), records[0].SponsoredGas)
	assert.NotEqual(t, "0.000000", records[0].SponsoredGas)
}

func TestSettlementRecordCarriesExecutionTime(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	settler := SettlerFunc(func(context.Context) error {
		mu.Lock()
		now = now.Add(1500 * time.Millisecond)
		mu.Unlock()
		return nil
	})
	f := newFixture(WithClock(clock), WithSettler(settler))

	_, err := f.svc.Run(context.Background(), SubmitRequest{NaturalLanguage: "stake 1 eth"})
	require.NoError(t, err)

	records := f.ledger.All()
	require.Len(t, records, 1)
	assert.Equal(t, int64(1500), records[0].ExecutionMs)
	assert.Empty(t, records[0].SponsoredGas)
	assert.Equal(t, 1.5, f.ledger.Summary().AvgExecutionTime)
}

func TestExecuteGaslessValidates(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ExecuteGasless(context.Background(), GaslessRequest{})
	require.Error(t, err)
	assert.Equal(t, CodeIntentValidation, xerrors.CodeOf(err))
	assert.Zero(t, f.ledger.Len())
}

func TestSettlementRecordFallbacks(t *testing.T) {
	record := SettlementRecord(&Intent{NaturalLanguage: "??", TxHash: "0x1"}, "net")
	assert.Equal(t, "swap", record.Type)
	assert.Equal(t, "ETH", record.TokenSymbol)
	assert.Equal(t, "0", record.Amount)
	assert.Equal(t, "0.005", record.GasUsed)

	record = SettlementRecord(&Intent{ParsedSteps: []Step{{Action: ActionStake, TokenIn: "ETH", Amount: "3"}}}, "net")
	assert.Equal(t, "stake", record.Type)
	assert.Equal(t, "ETH", record.TokenSymbol)
	assert.Equal(t, "3", record.Amount)
	assert.Empty(t, record.SponsoredGas)

	record = SettlementRecord(&Intent{
		Sponsored:        true,
		TotalGasEstimate: "0",
		ParsedSteps: []Step{
			{Action: ActionSwap, EstimatedGas: "0.004"},
			{Action: ActionStake, EstimatedGas: "0.0025"},
		},
	}, "net")
	assert.Equal(t, "0", record.GasUsed)
	assert.Equal(t, "0.006500", record.SponsoredGas)
}
