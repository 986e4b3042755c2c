package intent

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Randomness 是流水线中所有伪随机数据（Gas 估算、交易哈希、延迟抖动）的来源。
// 演示输出只求“看起来自然”，注入固定种子即可得到可复现的结果。
type Randomness interface {
	Float64() float64
	Uint64() uint64
}

// lockedRand 让 *rand.Rand 可以被并发的批量任务共享。
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomness 返回并发安全的随机源。seed 为 0 时使用当前时间。
func NewRandomness(seed uint64) Randomness {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Uint64()
}
