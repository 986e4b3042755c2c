package web3

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestNewHashIsReproducibleWithSeed(t *testing.T) {
	a := NewHash(seeded())
	b := NewHash(seeded())
	assert.Equal(t, a, b)
	assert.NotEqual(t, common.Hash{}, a)
	assert.Len(t, a.Hex(), 66)

	src := seeded()
	assert.NotEqual(t, NewHash(src), NewHash(src))
}

func TestRandomBytesLength(t *testing.T) {
	for _, n := range []int{0, 1, 20, 32, 65} {
		assert.Len(t, RandomBytes(seeded(), n), n)
	}
}

func TestUserOperationFillKeepsProvidedFields(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	op := UserOperation{Sender: sender, Nonce: 42}.Fill(seeded())

	assert.Equal(t, sender, op.Sender)
	assert.Equal(t, uint64(42), op.Nonce)
	assert.Len(t, op.Signature, signatureLength)
	assert.NotNil(t, op.CallData)

	empty := UserOperation{}.Fill(seeded())
	assert.NotEqual(t, common.Address{}, empty.Sender)
	assert.Less(t, empty.Nonce, uint64(1000))
}

func TestUserOperationHashDependsOnFields(t *testing.T) {
	op := UserOperation{}.Fill(seeded())
	same := op
	assert.Equal(t, op.Hash(), same.Hash())

	changed := op
	changed.Nonce++
	assert.NotEqual(t, op.Hash(), changed.Hash())
}

func TestUserOperationJSON(t *testing.T) {
	var op UserOperation
	require.NoError(t, json.Unmarshal([]byte(`{"sender":"0x00000000000000000000000000000000000000aa","nonce":42,"callData":"0x01"}`), &op))
	assert.Equal(t, uint64(42), op.Nonce)
	assert.Equal(t, hexutil.Bytes{0x01}, op.CallData)
}
