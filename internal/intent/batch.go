package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/observability/metrics"
	"IntentX/pkg/logger"
)

const (
	// DefaultMaxBatchSize 是单个批次允许的最大意图数。
	DefaultMaxBatchSize = 100
	// DefaultBatchConcurrency 是批量处理同时运行的意图数上限。
	DefaultBatchConcurrency = 32
)

// Runner 把一条原始意图完整跑完 submit → parse → execute。*Service 满足该接口。
type Runner interface {
	Run(ctx context.Context, req SubmitRequest) (*Intent, error)
}

// BatchRequest 是批量提交的输入。每一项在处理时单独校验。
type BatchRequest struct {
	Intents  []json.RawMessage `json:"intents"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// BatchItemResult 是单条意图的处理结果。
type BatchItemResult struct {
	Index    int          `json:"index"`
	Status   Status       `json:"status"`
	IntentID string       `json:"intentId,omitempty"`
	TxHash   string       `json:"txHash,omitempty"`
	GasUsed  string       `json:"gasUsed,omitempty"`
	Error    string       `json:"error,omitempty"`
	Code     xerrors.Code `json:"code,omitempty"`
}

// BatchResult 汇总一个批次的处理结果。
//
// AvgTimePerIntentMs 等于整个并发扇出的墙钟时间除以条目数。条目是并发执行的，
// 所以它比任何单条的真实耗时都小；该口径保持不变以兼容现有仪表盘。
type BatchResult struct {
	BatchID               string            `json:"batchId"`
	TotalIntents          int               `json:"totalIntents"`
	SuccessCount          int               `json:"successCount"`
	FailureCount          int               `json:"failureCount"`
	TotalProcessingTimeMs int64             `json:"totalProcessingTimeMs"`
	AvgTimePerIntentMs    int64             `json:"avgTimePerIntentMs"`
	Results               []BatchItemResult `json:"results"`
	Metadata              map[string]any    `json:"metadata"`
}

// BatchCoordinator 把一批原始意图并发地交给 Runner，并汇总逐条结果。
type BatchCoordinator struct {
	runner      Runner
	maxSize     int
	concurrency int
	now         func() time.Time
}

// BatchOption 定义可选配置。
type BatchOption func(*BatchCoordinator)

// WithMaxBatchSize 设置批次上限。
func WithMaxBatchSize(size int) BatchOption {
	return func(c *BatchCoordinator) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithConcurrency 设置并发上限。
func WithConcurrency(n int) BatchOption {
	return func(c *BatchCoordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchClock 替换时间源。
func WithBatchClock(now func() time.Time) BatchOption {
	return func(c *BatchCoordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewBatchCoordinator 构造 BatchCoordinator。
func NewBatchCoordinator(runner Runner, opts ...BatchOption) *BatchCoordinator {
	c := &BatchCoordinator{
		runner:      runner,
		maxSize:     DefaultMaxBatchSize,
		concurrency: DefaultBatchConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// MaxSize 返回批次上限。
func (c *BatchCoordinator) MaxSize() int {
	return c.maxSize
}

// RunBatch 校验批次大小后并发处理每一项。单条失败只记录在对应结果中，
// 不会中断整个批次。结果按输入顺序排列，与完成顺序无关。
func (c *BatchCoordinator) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if c == nil || c.runner == nil {
		return nil, xerrors.New(xerrors.CodeUnavailable, "批量处理器未初始化")
	}
	total := len(req.Intents)
	if total == 0 {
		return nil, xerrors.New(CodeBatchInvalid, "Must provide array of intents")
	}
	if total > c.maxSize {
		return nil, xerrors.New(CodeBatchInvalid, fmt.Sprintf("Batch size cannot exceed %d intents", c.maxSize))
	}
	metrics.BatchSize.Observe(float64(total))

	batchID := "batch-" + uuid.NewString()
	results := make([]BatchItemResult, total)

	start := c.now()
	var eg errgroup.Group
	eg.SetLimit(c.concurrency)
	for i, raw := range req.Intents {
		eg.Go(func() error {
			results[i] = c.runItem(ctx, i, raw)
			return nil
		})
	}
	_ = eg.Wait()
	elapsed := c.now().Sub(start).Milliseconds()

	out := &BatchResult{
		BatchID:               batchID,
		TotalIntents:          total,
		TotalProcessingTimeMs: elapsed,
		AvgTimePerIntentMs:    int64(math.Round(float64(elapsed) / float64(total))),
		Results:               results,
		Metadata:              cloneMetadata(req.Metadata),
	}
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata["processedAt"] = c.now().UTC().Format(time.RFC3339Nano)

	for _, item := range results {
		if item.Status == StatusCompleted {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	metrics.BatchItems.WithLabelValues("completed").Add(float64(out.SuccessCount))
	metrics.BatchItems.WithLabelValues("failed").Add(float64(out.FailureCount))
	logger.Audit().Info("批量意图处理完成",
		slog.String("batch_id", batchID),
		slog.Int("total", total),
		slog.Int("success", out.SuccessCount),
		slog.Int("failure", out.FailureCount),
		slog.Int64("elapsed_ms", elapsed),
	)
	return out, nil
}

func (c *BatchCoordinator) runItem(ctx context.Context, index int, raw json.RawMessage) (result BatchItemResult) {
	result = BatchItemResult{Index: index, Status: StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("批量条目处理崩溃", slog.Int("index", index), slog.Any("panic", r))
			result = BatchItemResult{
				Index:  index,
				Status: StatusFailed,
				Error:  xerrors.AttributesOf(xerrors.CodeInternal).Message,
				Code:   xerrors.CodeInternal,
			}
		}
	}()

	req, err := decodeItem(raw)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		result.Error = xerrors.Exposed(err)
		result.Code = xerrors.CodeOf(err)
		return result
	}

	completed, err := c.runner.Run(ctx, req)
	if err != nil {
		result.Error = xerrors.Exposed(err)
		result.Code = xerrors.CodeOf(err)
		return result
	}
	result.Status = completed.Status
	result.IntentID = completed.ID
	result.TxHash = completed.TxHash
	result.GasUsed = completed.TotalGasEstimate
	return result
}

func decodeItem(raw json.RawMessage) (SubmitRequest, error) {
	var req SubmitRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return req, xerrors.New(CodeBatchItemRejected, "each intent must be an object with naturalLanguage")
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, xerrors.Wrap(CodeBatchItemRejected, err, "invalid intent payload")
	}
	return req, nil
}
