package intent

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gasOf(t *testing.T, step Step) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(step.EstimatedGas, 64)
	require.NoError(t, err)
	return v
}

func TestExtractFallsBackToDefaultSwap(t *testing.T) {
	steps := NewExtractor(NewRandomness(1)).Extract("hello world")
	require.Len(t, steps, 1)
	assert.Equal(t, FallbackStep, steps[0])
}

func TestExtractSwapIsCaseInsensitive(t *testing.T) {
	steps := NewExtractor(NewRandomness(7)).Extract("SWAP 2.5 eth FOR usdc on uniswap")
	require.Len(t, steps, 1)

	step := steps[0]
	assert.Equal(t, ActionSwap, step.Action)
	assert.Equal(t, "Uniswap V3", step.Protocol)
	assert.Equal(t, "ETH", step.TokenIn)
	assert.Equal(t, "USDC", step.TokenOut)
	assert.Equal(t, "2.5", step.Amount)

	gas := gasOf(t, step)
	assert.GreaterOrEqual(t, gas, 0.002)
	assert.Less(t, gas, 0.007)
}

func TestExtractProtocolLabels(t *testing.T) {
	cases := []struct {
		text     string
		action   Action
		protocol string
		min, max float64
	}{
		{"swap 1 dai to usdc", ActionSwap, "DEX", 0.002, 0.007},
		{"stake 32 eth with lido", ActionStake, "Lido", 0.001, 0.004},
		{"stake 1 eth", ActionStake, "Staking Vault", 0.001, 0.004},
		{"lend 500 usdc on aave", ActionSupply, "Aave V3", 0.002, 0.006},
		{"supply 10 dai", ActionSupply, "Compound", 0.002, 0.006},
		{"borrow 100 usdt", ActionBorrow, "Compound", 0.002, 0.006},
	}
	ex := NewExtractor(NewRandomness(3))
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			steps := ex.Extract(tc.text)
			require.Len(t, steps, 1)
			assert.Equal(t, tc.action, steps[0].Action)
			assert.Equal(t, tc.protocol, steps[0].Protocol)
			gas := gasOf(t, steps[0])
			assert.GreaterOrEqual(t, gas, tc.min)
			assert.Less(t, gas, tc.max)
		})
	}
}

func TestExtractMultipleStepsInFixedOrder(t *testing.T) {
	steps := NewExtractor(NewRandomness(11)).Extract("borrow 50 DAI then swap 50 DAI for WETH and stake 1 WETH")
	require.Len(t, steps, 3)
	assert.Equal(t, ActionSwap, steps[0].Action)
	assert.Equal(t, ActionStake, steps[1].Action)
	assert.Equal(t, ActionBorrow, steps[2].Action)
	assert.Equal(t, "DAI", steps[2].TokenOut)
	assert.Empty(t, steps[2].TokenIn)
}

func TestExtractIsReproducibleWithSeed(t *testing.T) {
	text := "swap 100 usdc for weth and supply 10 weth"
	first := NewExtractor(NewRandomness(42)).Extract(text)
	second := NewExtractor(NewRandomness(42)).Extract(text)
	assert.Equal(t, first, second)
}

func TestTotalGasSumsSteps(t *testing.T) {
	steps := []Step{{EstimatedGas: "0.002500"}, {EstimatedGas: "0.001"}, {EstimatedGas: "bogus"}}
	assert.Equal(t, "0.003500 ETH", TotalGas(steps))
	assert.Equal(t, "0.000000 ETH", TotalGas(nil))
}
