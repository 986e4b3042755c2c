package web3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// UserOperation 是账户抽象（ERC-4337）交易的简化表示，仅保留演示需要的字段。
type UserOperation struct {
	Sender    common.Address `json:"sender"`
	Nonce     uint64         `json:"nonce"`
	CallData  hexutil.Bytes  `json:"callData"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Fill 为缺失字段填充伪造值，调用方提供的字段保持不变。
func (op UserOperation) Fill(src Entropy) UserOperation {
	if op.Sender == (common.Address{}) {
		op.Sender = NewAddress(src)
	}
	if op.Nonce == 0 {
		op.Nonce = src.Uint64() % 1000
	}
	if op.CallData == nil {
		op.CallData = hexutil.Bytes{}
	}
	if len(op.Signature) == 0 {
		op.Signature = RandomBytes(src, signatureLength)
	}
	return op
}

// Hash 返回 user operation 的摘要，对打包后的字段做 Keccak-256。
func (op UserOperation) Hash() common.Hash {
	nonce := common.LeftPadBytes(new(big.Int).SetUint64(op.Nonce).Bytes(), 32)
	return crypto.Keccak256Hash(
		common.LeftPadBytes(op.Sender.Bytes(), 32),
		nonce,
		crypto.Keccak256(op.CallData),
		crypto.Keccak256(op.Signature),
	)
}
