// Package ledger 保存已结算交易的追加日志，并把新记录推送给下游订阅方。
package ledger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/observability/metrics"
	"IntentX/pkg/logger"
)

// Status 表示交易记录的状态。
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// DefaultRecentLimit 是 Recent 在未指定数量时返回的条数。
const DefaultRecentLimit = 10

// Record 是账本中的一条交易记录，写入后不可修改。
type Record struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	TokenSymbol string    `json:"tokenSymbol"`
	Timestamp   time.Time `json:"timestamp"`
	Network     string    `json:"network"`
	TxHash      string    `json:"txHash"`
	GasUsed     string    `json:"gasUsed"`
	// ExecutionMs 是从提交结算到确认的耗时，瞬时操作为 0。
	ExecutionMs int64 `json:"executionMs,omitempty"`
	// SponsoredGas 是被赞助免除的 Gas（ETH），仅免 Gas 执行会填写。
	SponsoredGas string `json:"sponsoredGas,omitempty"`
}

// Summary 是仪表盘使用的账本汇总。
type Summary struct {
	TotalVolume       string  `json:"totalVolume"`
	TotalTransactions int     `json:"totalTransactions"`
	AvgExecutionTime  float64 `json:"avgExecutionTime"`
	TotalGasSaved     string  `json:"totalGasSaved"`
}

// Recorder 是写入账本所需的最小能力，供生命周期服务与金库服务依赖。
type Recorder interface {
	Append(ctx context.Context, record Record) (Record, error)
}

// Ledger 是进程内的追加日志。没有任何修改或删除已有记录的接口。
type Ledger struct {
	mu        sync.RWMutex
	records   []Record
	publisher Publisher
	now       func() time.Time
}

// Option 定义可选配置。
type Option func(*Ledger)

// WithPublisher 配置记录写入后的事件发布器。
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

// WithClock 替换时间源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New 创建空账本。
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Append 追加一条记录并返回最终写入的内容。缺失的 ID 与时间戳会被补齐。
func (l *Ledger) Append(ctx context.Context, record Record) (Record, error) {
	if strings.TrimSpace(record.Type) == "" {
		return Record{}, xerrors.New(xerrors.CodeInvalidArgument, "transaction type is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.now().UTC()
	}
	if record.Status == "" {
		record.Status = StatusConfirmed
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	metrics.LedgerAppends.WithLabelValues(record.Type).Inc()
	logger.Audit().Info("交易记录已写入账本",
		slog.String("record_id", record.ID),
		slog.String("type", record.Type),
		slog.String("tx_hash", record.TxHash),
		slog.String("amount", record.Amount),
		slog.String("token", record.TokenSymbol),
	)

	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, record); err != nil {
			logger.L().Warn("发布账本事件失败", slog.Any("error", err), slog.String("record_id", record.ID))
		}
	}
	return record, nil
}

// Recent 返回最近写入的 n 条记录，按写入顺序倒序。n <= 0 时使用默认值。
func (l *Ledger) Recent(n int) []Record {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, 0, n)
	for i := len(l.records) - 1; i >= len(l.records)-n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// All 返回全部记录，最新的在前。
func (l *Ledger) All() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	for i, rec := range l.records {
		out[len(l.records)-1-i] = rec
	}
	return out
}

// Summary 汇总全部记录：TotalVolume 是 confirmed 记录金额之和（不做币种换算），
// AvgExecutionTime 是带耗时记录的平均耗时（秒，保留两位小数），
// TotalGasSaved 是被赞助的 Gas 之和。无法解析的数值按 0 计。
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	volume, saved := decimal.Zero, decimal.Zero
	var totalMs int64
	var timed int64
	for _, rec := range l.records {
		if rec.Status == StatusConfirmed {
			if amount, err := decimal.NewFromString(rec.Amount); err == nil {
				volume = volume.Add(amount)
			}
		}
		if rec.SponsoredGas != "" {
			if gas, err := decimal.NewFromString(rec.SponsoredGas); err == nil {
				saved = saved.Add(gas)
			}
		}
		if rec.ExecutionMs > 0 {
			totalMs += rec.ExecutionMs
			timed++
		}
	}

	avg := 0.0
	if timed > 0 {
		avg, _ = decimal.NewFromInt(totalMs).Div(decimal.NewFromInt(timed * 1000)).Round(2).Float64()
	}
	return Summary{
		TotalVolume:       "$" + volume.StringFixed(2),
		TotalTransactions: len(l.records),
		AvgExecutionTime:  avg,
		TotalGasSaved:     saved.StringFixed(6) + " ETH",
	}
}

// Len 返回记录数量。
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

var _ Recorder = (*Ledger)(nil)
