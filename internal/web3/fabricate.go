package web3

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Entropy 是伪造链上数据所需的随机源。*rand.Rand（math/rand/v2）满足该接口。
type Entropy interface {
	Uint64() uint64
}

// RandomBytes 从熵源读取 n 个字节。
func RandomBytes(src Entropy, n int) []byte {
	buf := make([]byte, (n+7)/8*8)
	for i := 0; i < len(buf); i += 8 {
		binary.BigEndian.PutUint64(buf[i:], src.Uint64())
	}
	return buf[:n]
}

// NewHash 生成一个看起来像交易哈希的值：对 32 字节随机数做 Keccak-256。
func NewHash(src Entropy) common.Hash {
	return crypto.Keccak256Hash(RandomBytes(src, common.HashLength))
}

// NewAddress 生成一个随机的账户地址。
func NewAddress(src Entropy) common.Address {
	return common.BytesToAddress(RandomBytes(src, common.AddressLength))
}
