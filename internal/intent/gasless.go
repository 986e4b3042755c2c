package intent

import (
	"context"

	"IntentX/internal/web3"
)

// SponsoredGasCost 是账户抽象执行对外展示的费用说明。
const SponsoredGasCost = "$0.00 (Sponsored by IntentX Protocol)"

// GaslessRequest 是账户抽象（免 Gas）执行的输入。
type GaslessRequest struct {
	NaturalLanguage string              `json:"naturalLanguage"`
	UserOperation   *web3.UserOperation `json:"userOperation,omitempty"`
}

// GaslessResult 是免 Gas 执行的展示结果。
type GaslessResult struct {
	Success         bool               `json:"success"`
	IntentID        string             `json:"intentId"`
	UserOpHash      string             `json:"userOpHash"`
	BundlerTxHash   string             `json:"bundlerTxHash"`
	ExecutionTimeMs int64              `json:"executionTimeMs"`
	GasCost         string             `json:"gasCost"`
	Status          Status             `json:"status"`
	UserOperation   web3.UserOperation `json:"userOperation"`
	Intent          *Intent            `json:"intent"`
	Message         string             `json:"message"`
}

// ExecuteGasless 以赞助模式执行意图：沿用同一张状态迁移表，但 totalGasEstimate
// 与账本中的 gasUsed 都记为 0。缺失的 user operation 字段会被伪造补齐。
func (s *Service) ExecuteGasless(ctx context.Context, req GaslessRequest) (*GaslessResult, error) {
	start := s.now()
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := (SubmitRequest{NaturalLanguage: req.NaturalLanguage}).Validate(); err != nil {
		return nil, err
	}

	op := web3.UserOperation{}
	if req.UserOperation != nil {
		op = *req.UserOperation
	}
	op = op.Fill(s.rand)

	created, err := s.Submit(ctx, SubmitRequest{
		NaturalLanguage: req.NaturalLanguage,
		Metadata:        map[string]any{"sender": op.Sender.Hex()},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.parse(ctx, created.ID, true); err != nil {
		return nil, err
	}
	completed, err := s.execute(ctx, created.ID, s.gasless, "gasless")
	if err != nil {
		return nil, err
	}

	return &GaslessResult{
		Success:         true,
		IntentID:        completed.ID,
		UserOpHash:      op.Hash().Hex(),
		BundlerTxHash:   completed.TxHash,
		ExecutionTimeMs: s.now().Sub(start).Milliseconds(),
		GasCost:         SponsoredGasCost,
		Status:          completed.Status,
		UserOperation:   op,
		Intent:          completed,
		Message:         "Intent executed via Account Abstraction - Zero gas cost!",
	}, nil
}
