// Package intent 实现意图执行流水线：自然语言解析、步骤生成、Gas 估算、
// 模拟结算以及批量处理。
package intent

import (
	"net/http"
	"time"

	xerrors "IntentX/internal/errors"
)

// Status 表示意图在生命周期中的状态。
type Status string

const (
	StatusCreated   Status = "created"
	StatusParsed    Status = "parsed"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Action 是单个执行步骤的类型。
type Action string

const (
	ActionSwap   Action = "swap"
	ActionStake  Action = "stake"
	ActionSupply Action = "supply"
	ActionBorrow Action = "borrow"
)

// Step 是意图计划中的一个原子操作。字段是否出现取决于 Action：
// swap 同时有 TokenIn 与 TokenOut，stake/supply 只有 TokenIn，borrow 只有 TokenOut。
type Step struct {
	Action       Action `json:"action"`
	Protocol     string `json:"protocol"`
	TokenIn      string `json:"tokenIn,omitempty"`
	TokenOut     string `json:"tokenOut,omitempty"`
	Amount       string `json:"amount"`
	EstimatedGas string `json:"estimatedGas"`
}

// LogEntry 记录一次生命周期事件，供执行浏览器展示。
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
}

// Intent 是用户提交的自然语言请求及其派生的执行计划。
type Intent struct {
	ID               string         `json:"id"`
	NaturalLanguage  string         `json:"naturalLanguage"`
	Status           Status         `json:"status"`
	ParsedSteps      []Step         `json:"parsedSteps"`
	TotalGasEstimate string         `json:"totalGasEstimate,omitempty"`
	ExecutedAt       *time.Time     `json:"executedAt,omitempty"`
	TxHash           string         `json:"txHash,omitempty"`
	Sponsored        bool           `json:"sponsored,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Logs             []LogEntry     `json:"logs,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Draft 是创建意图时的输入。
type Draft struct {
	NaturalLanguage string
	Metadata        map[string]any
}

const (
	CodeIntentNotFound    xerrors.Code = "INTENT_NOT_FOUND"
	CodeIntentNotReady    xerrors.Code = "INTENT_NOT_READY"
	CodeIntentValidation  xerrors.Code = "INTENT_VALIDATION_FAILED"
	CodeIntentSettlement  xerrors.Code = "INTENT_SETTLEMENT_FAILED"
	CodeIntentTransition  xerrors.Code = "INTENT_INVALID_TRANSITION"
	CodeBatchInvalid      xerrors.Code = "BATCH_INVALID"
	CodeBatchItemRejected xerrors.Code = "BATCH_ITEM_REJECTED"
)

var (
	// ErrIntentNotFound 表示指定的意图不存在。
	ErrIntentNotFound = xerrors.New(CodeIntentNotFound, "Intent not found")
	// ErrIntentNotReady 表示意图尚未解析，不能执行。
	ErrIntentNotReady = xerrors.New(CodeIntentNotReady, "Intent not ready for execution")
)

func init() {
	xerrors.Register(CodeIntentNotFound, xerrors.Attributes{
		Message:    "Intent not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeIntentNotReady, xerrors.Attributes{
		Message:    "Intent not ready for execution",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeIntentValidation, xerrors.Attributes{
		Message:    "invalid intent",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeIntentTransition, xerrors.Attributes{
		Message:    "invalid intent status transition",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeIntentSettlement, xerrors.Attributes{
		Message:    "Failed to execute intent",
		Severity:   xerrors.SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	})
	xerrors.Register(CodeBatchInvalid, xerrors.Attributes{
		Message:    "invalid batch",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeBatchItemRejected, xerrors.Attributes{
		Message:    "batch item rejected",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
}

// rank 给出状态在生命周期中的先后顺序，failed 视为终态。
var rank = map[Status]int{
	StatusCreated:   0,
	StatusParsed:    1,
	StatusExecuting: 2,
	StatusCompleted: 3,
	StatusFailed:    3,
}

// CanTransition 判断状态迁移是否合法。状态只能沿 created → parsed → executing →
// completed 前进；任何非终态都可以转为 failed。
func CanTransition(from, to Status) bool {
	switch {
	case from.Terminal():
		return false
	case to == StatusFailed:
		return true
	default:
		return rank[to] == rank[from]+1
	}
}

// Terminal 报告状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	_, ok := rank[status]
	return ok
}

func cloneIntent(in *Intent) *Intent {
	out := *in
	out.ParsedSteps = make([]Step, len(in.ParsedSteps))
	copy(out.ParsedSteps, in.ParsedSteps)
	if in.Logs != nil {
		out.Logs = append([]LogEntry(nil), in.Logs...)
	}
	if in.ExecutedAt != nil {
		at := *in.ExecutedAt
		out.ExecutedAt = &at
	}
	out.Metadata = cloneMetadata(in.Metadata)
	return &out
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}
