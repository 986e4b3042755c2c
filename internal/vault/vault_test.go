package vault

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/ledger"
)

func newTestService(recorder ledger.Recorder) *Service {
	return NewService(recorder, nil, WithRandomness(rand.New(rand.NewPCG(1, 2))))
}

func TestListKeepsSeedOrder(t *testing.T) {
	svc := newTestService(ledger.New())
	vaults := svc.List(context.Background())
	require.Len(t, vaults, len(DefaultVaults()))
	assert.Equal(t, "eth-staking", vaults[0].ID)
	for _, v := range vaults {
		assert.Equal(t, "0", v.UserStaked)
	}
}

func TestGetUnknownVault(t *testing.T) {
	_, err := newTestService(ledger.New()).Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestStakeAndUnstake(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()
	svc := newTestService(l)

	v, err := svc.Act(ctx, ActionRequest{VaultID: "eth-staking", Amount: "10", Action: ActionStake})
	require.NoError(t, err)
	assert.Equal(t, "10", v.UserStaked)

	v, err = svc.Act(ctx, ActionRequest{VaultID: "eth-staking", Amount: "2.5", Action: ActionUnstake})
	require.NoError(t, err)
	assert.Equal(t, "7.5", v.UserStaked)

	v, err = svc.Act(ctx, ActionRequest{VaultID: "eth-staking", Amount: "100", Action: ActionUnstake})
	require.NoError(t, err)
	assert.Equal(t, "0", v.UserStaked, "赎回不会出现负余额")

	records := l.All()
	require.Len(t, records, 3)
	first := records[2]
	assert.Equal(t, "stake", first.Type)
	assert.Equal(t, "Staked 10 ETH in ETH Staking", first.Description)
	assert.Equal(t, "ETH", first.TokenSymbol)
	assert.Equal(t, ledger.StatusConfirmed, first.Status)
	assert.Equal(t, DefaultNetwork, first.Network)
	assert.Len(t, first.TxHash, 66)

	gas, err := strconv.ParseFloat(first.GasUsed, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gas, 0.001)
	assert.Less(t, gas, 0.011)
	assert.Equal(t, "Unstaked 2.5 ETH in ETH Staking", records[1].Description)
}

func TestActValidation(t *testing.T) {
	svc := newTestService(ledger.New())
	cases := []struct {
		name string
		req  ActionRequest
		code xerrors.Code
	}{
		{"missing vault", ActionRequest{Amount: "1", Action: ActionStake}, xerrors.CodeInvalidArgument},
		{"missing amount", ActionRequest{VaultID: "eth-staking", Action: ActionStake}, xerrors.CodeInvalidArgument},
		{"bad action", ActionRequest{VaultID: "eth-staking", Amount: "1", Action: "burn"}, xerrors.CodeInvalidArgument},
		{"negative amount", ActionRequest{VaultID: "eth-staking", Amount: "-1", Action: ActionStake}, xerrors.CodeInvalidArgument},
		{"unknown vault", ActionRequest{VaultID: "nope", Amount: "1", Action: ActionStake}, xerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Act(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, xerrors.CodeOf(err))
		})
	}
}

func TestActionRequestAcceptsNumberOrString(t *testing.T) {
	var req ActionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"vaultId":"dai-lending","amount":12.5,"action":"stake"}`), &req))
	assert.Equal(t, json.Number("12.5"), req.Amount)
	require.NoError(t, json.Unmarshal([]byte(`{"vaultId":"dai-lending","amount":"3","action":"stake"}`), &req))
	assert.Equal(t, json.Number("3"), req.Amount)
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, ledger.Record) (ledger.Record, error) {
	return ledger.Record{}, errors.New("disk full")
}

func TestFailedRecordLeavesBalance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(failingRecorder{})
	_, err := svc.Act(ctx, ActionRequest{VaultID: "usdc-lending", Amount: "5", Action: ActionStake})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInternal, xerrors.CodeOf(err))

	v, err := svc.Get(ctx, "usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "0", v.UserStaked)
}
