package intentx

import (
	"encoding/json"
	"time"
)

// Intent statuses as reported by the server.
const (
	StatusCreated   = "created"
	StatusParsed    = "parsed"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Vault actions.
const (
	VaultStake   = "stake"
	VaultUnstake = "unstake"
)

// SubmitRequest carries the natural language text of a new intent.
type SubmitRequest struct {
	NaturalLanguage string         `json:"naturalLanguage"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Step is one DeFi action extracted from an intent.
type Step struct {
	Action       string `json:"action"`
	Protocol     string `json:"protocol"`
	TokenIn      string `json:"tokenIn,omitempty"`
	TokenOut     string `json:"tokenOut,omitempty"`
	Amount       string `json:"amount"`
	EstimatedGas string `json:"estimatedGas"`
}

// LogEntry is a single lifecycle event of an intent.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// Intent mirrors the server's intent record.
type Intent struct {
	ID               string         `json:"id"`
	NaturalLanguage  string         `json:"naturalLanguage"`
	Status           string         `json:"status"`
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

// LogsView is the execution explorer payload of an intent.
type LogsView struct {
	Logs        []LogEntry `json:"logs"`
	ParsedSteps []Step     `json:"parsedSteps"`
}

// BatchItemResult is the outcome of one batch entry.
type BatchItemResult struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	IntentID string `json:"intentId,omitempty"`
	TxHash   string `json:"txHash,omitempty"`
	GasUsed  string `json:"gasUsed,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// BatchResult aggregates a batch run.
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

// UserOperation is an ERC-4337 style user operation. Byte fields are 0x
// prefixed hex strings; empty fields are filled in by the server.
type UserOperation struct {
	Sender    string `json:"sender,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	CallData  string `json:"callData,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// GaslessRequest asks for a sponsored execution.
type GaslessRequest struct {
	NaturalLanguage string         `json:"naturalLanguage"`
	UserOperation   *UserOperation `json:"userOperation,omitempty"`
}

// GaslessResult reports a sponsored execution.
type GaslessResult struct {
	Success         bool          `json:"success"`
	IntentID        string        `json:"intentId"`
	UserOpHash      string        `json:"userOpHash"`
	BundlerTxHash   string        `json:"bundlerTxHash"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
	GasCost         string        `json:"gasCost"`
	Status          string        `json:"status"`
	UserOperation   UserOperation `json:"userOperation"`
	Intent          *Intent       `json:"intent"`
	Message         string        `json:"message"`
}

// Transaction is a ledger record.
type Transaction struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	TokenSymbol  string    `json:"tokenSymbol"`
	Timestamp    time.Time `json:"timestamp"`
	Network      string    `json:"network"`
	TxHash       string    `json:"txHash"`
	GasUsed      string    `json:"gasUsed"`
	ExecutionMs  int64     `json:"executionMs,omitempty"`
	SponsoredGas string    `json:"sponsoredGas,omitempty"`
}

// AnalyticsSummary is the dashboard aggregate over the ledger.
type AnalyticsSummary struct {
	TotalVolume       string  `json:"totalVolume"`
	TotalTransactions int     `json:"totalTransactions"`
	AvgExecutionTime  float64 `json:"avgExecutionTime"`
	TotalGasSaved     string  `json:"totalGasSaved"`
}

// Vault is a staking or lending pool.
type Vault struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TokenSymbol string `json:"tokenSymbol"`
	APY         string `json:"apy"`
	UserStaked  string `json:"userStaked"`
}

// VaultActionRequest stakes into or unstakes from a vault. Amount is a
// decimal string or number.
type VaultActionRequest struct {
	VaultID string      `json:"vaultId"`
	Amount  json.Number `json:"amount"`
	Action  string      `json:"action"`
}
