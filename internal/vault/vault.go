// Package vault 维护可质押金库目录，并模拟用户的质押与赎回。
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/ledger"
	"IntentX/internal/web3"
	"IntentX/pkg/logger"
)

// Action 是金库操作类型。
type Action string

const (
	ActionStake   Action = "stake"
	ActionUnstake Action = "unstake"
)

// DefaultNetwork 是金库操作写入账本时的网络标签。
const DefaultNetwork = "BlockDAG Testnet"

// Vault 描述一个金库及当前用户的质押余额。
type Vault struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	TokenSymbol string `json:"tokenSymbol" yaml:"token_symbol"`
	APY         string `json:"apy" yaml:"apy"`
	UserStaked  string `json:"userStaked" yaml:"user_staked"`
}

// ActionRequest 是质押或赎回请求。Amount 同时接受 JSON 数字与数字字符串。
type ActionRequest struct {
	VaultID string      `json:"vaultId"`
	Amount  json.Number `json:"amount"`
	Action  Action      `json:"action"`
}

// DefaultVaults 返回内置的金库目录。
func DefaultVaults() []Vault {
	return []Vault{
		{ID: "eth-staking", Name: "ETH Staking", TokenSymbol: "ETH", APY: "5.2", UserStaked: "0"},
		{ID: "weth-staking", Name: "WETH Staking", TokenSymbol: "WETH", APY: "5.8", UserStaked: "0"},
		{ID: "steth-staking", Name: "stETH Staking", TokenSymbol: "stETH", APY: "18.5", UserStaked: "0"},
		{ID: "usdc-lending", Name: "USDC Lending", TokenSymbol: "USDC", APY: "7.2", UserStaked: "0"},
		{ID: "dai-lending", Name: "DAI Lending", TokenSymbol: "DAI", APY: "6.8", UserStaked: "0"},
		{ID: "usdt-lending", Name: "USDT Lending", TokenSymbol: "USDT", APY: "7.5", UserStaked: "0"},
	}
}

// Randomness 是金库操作伪造 Gas 与交易哈希所需的随机源。
type Randomness interface {
	Float64() float64
	Uint64() uint64
}

// Service 保存金库状态。所有读写都持有同一把锁，随机源也只在锁内使用。
type Service struct {
	mu       sync.Mutex
	vaults   map[string]*Vault
	order    []string
	recorder ledger.Recorder
	rand     Randomness
	network  string
	now      func() time.Time
}

// Option 定义可选配置。
type Option func(*Service)

// WithRandomness 替换随机源。
func WithRandomness(r Randomness) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithNetwork 设置账本记录中的网络标签。
func WithNetwork(network string) Option {
	return func(s *Service) {
		if strings.TrimSpace(network) != "" {
			s.network = network
		}
	}
}

// WithClock 替换时间源。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 用给定的种子目录构造服务。seeds 为空时使用 DefaultVaults。
// 重复的 ID 以后出现的为准。
func NewService(recorder ledger.Recorder, seeds []Vault, opts ...Option) *Service {
	if len(seeds) == 0 {
		seeds = DefaultVaults()
	}
	seed := uint64(time.Now().UnixNano())
	s := &Service{
		vaults:   make(map[string]*Vault, len(seeds)),
		recorder: recorder,
		rand:     rand.New(rand.NewPCG(seed, seed>>1)),
		network:  DefaultNetwork,
		now:      time.Now,
	}
	for _, v := range seeds {
		if strings.TrimSpace(v.UserStaked) == "" {
			v.UserStaked = "0"
		}
		if _, exists := s.vaults[v.ID]; !exists {
			s.order = append(s.order, v.ID)
		}
		s.vaults[v.ID] = &v
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List 按目录顺序返回所有金库。
func (s *Service) List(_ context.Context) []Vault {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Vault, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.vaults[id])
	}
	return out
}

// Get 返回指定金库。
func (s *Service) Get(_ context.Context, id string) (Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[id]
	if !ok {
		return Vault{}, xerrors.New(xerrors.CodeNotFound, "Vault not found")
	}
	return *v, nil
}

// Act 执行质押或赎回，并向账本追加一条 confirmed 记录。赎回金额超过余额时
// 余额归零。账本写入失败时余额不变。
func (s *Service) Act(ctx context.Context, req ActionRequest) (Vault, error) {
	if strings.TrimSpace(req.VaultID) == "" || req.Amount == "" || req.Action == "" {
		return Vault{}, xerrors.New(xerrors.CodeInvalidArgument, "Missing required fields")
	}
	if req.Action != ActionStake && req.Action != ActionUnstake {
		return Vault{}, xerrors.New(xerrors.CodeInvalidArgument, "Invalid action. Must be 'stake' or 'unstake'")
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil || !amount.IsPositive() {
		return Vault{}, xerrors.New(xerrors.CodeInvalidArgument, "amount must be a positive number")
	}
	if s.recorder == nil {
		return Vault{}, xerrors.New(xerrors.CodeUnavailable, "金库服务未初始化")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vaults[req.VaultID]
	if !ok {
		return Vault{}, xerrors.New(xerrors.CodeNotFound, "Vault not found")
	}
	current, err := decimal.NewFromString(v.UserStaked)
	if err != nil {
		current = decimal.Zero
	}
	next := current.Add(amount)
	verb := "Staked"
	if req.Action == ActionUnstake {
		verb = "Unstaked"
		next = decimal.Max(decimal.Zero, current.Sub(amount))
	}

	gas := decimal.NewFromFloat(0.001 + s.rand.Float64()*0.01).StringFixed(6)
	record, err := s.recorder.Append(ctx, ledger.Record{
		Type:        string(req.Action),
		Status:      ledger.StatusConfirmed,
		Description: fmt.Sprintf("%s %s %s in %s", verb, req.Amount, v.TokenSymbol, v.Name),
		Amount:      req.Amount.String(),
		TokenSymbol: v.TokenSymbol,
		Timestamp:   s.now().UTC(),
		Network:     s.network,
		TxHash:      web3.NewHash(s.rand).Hex(),
		GasUsed:     gas,
	})
	if err != nil {
		return Vault{}, xerrors.Wrap(xerrors.CodeInternal, err, "failed to record vault action")
	}

	v.UserStaked = next.String()
	logger.Audit().Info("金库操作完成",
		slog.String("vault_id", v.ID),
		slog.String("action", string(req.Action)),
		slog.String("amount", req.Amount.String()),
		slog.String("user_staked", v.UserStaked),
		slog.String("record_id", record.ID),
	)
	return *v, nil
}
