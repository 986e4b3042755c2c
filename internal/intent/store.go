package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "IntentX/internal/errors"
)

// Store 抽象了意图记录的存取。它是意图状态的唯一事实来源。
type Store interface {
	Create(ctx context.Context, draft Draft) (*Intent, error)
	Get(ctx context.Context, id string) (*Intent, error)
	Update(ctx context.Context, id string, patch Patch) (*Intent, error)
	ListAll(ctx context.Context) ([]*Intent, error)
	ListRecent(ctx context.Context, n int) ([]*Intent, error)
	Stats(ctx context.Context) (Stats, error)
}

// Patch 描述一次浅合并更新，nil 字段保持原值不变。
type Patch struct {
	Status           *Status
	ParsedSteps      []Step
	TotalGasEstimate *string
	ExecutedAt       *time.Time
	TxHash           *string
	Sponsored        *bool
	Error            *string
	AppendLogs       []LogEntry
}

// Stats 聚合了意图状态的统计信息，用于仪表盘。
type Stats struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Parsed    int `json:"parsed"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type storedIntent struct {
	intent *Intent
	seq    uint64
}

// MemoryStore 以内存方式保存意图，进程退出即丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	intents map[string]*storedIntent
	seq     uint64
	now     func() time.Time
	newID   func() string
}

// MemoryStoreOption 定义 MemoryStore 的可选配置。
type MemoryStoreOption func(*MemoryStore)

// WithStoreClock 替换时间源。
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator 替换 ID 生成器，便于测试断言。
func WithIDGenerator(newID func() string) MemoryStoreOption {
	return func(m *MemoryStore) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		intents: make(map[string]*storedIntent),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Create 生成 ID 并保存新的意图，初始状态为 created。
func (m *MemoryStore) Create(_ context.Context, draft Draft) (*Intent, error) {
	if strings.TrimSpace(draft.NaturalLanguage) == "" {
		return nil, xerrors.New(CodeIntentValidation, "naturalLanguage is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	if _, ok := m.intents[id]; ok {
		return nil, xerrors.New(xerrors.CodeConflict, "intent id already exists")
	}
	now := m.now().UTC()
	intent := &Intent{
		ID:              id,
		NaturalLanguage: draft.NaturalLanguage,
		Status:          StatusCreated,
		ParsedSteps:     []Step{},
		Metadata:        cloneMetadata(draft.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.seq++
	m.intents[id] = &storedIntent{intent: intent, seq: m.seq}
	return cloneIntent(intent), nil
}

// Get 返回意图副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return cloneIntent(stored.intent), nil
}

// Update 把 patch 中出现的字段合并到已有记录。状态变更必须符合 CanTransition，
// 否则整个 patch 被拒绝。completed 与 failed 的记录不再接受任何 patch。
func (m *MemoryStore) Update(_ context.Context, id string, patch Patch) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	intent := stored.intent
	if intent.Status.Terminal() {
		return nil, xerrors.New(xerrors.CodeInvalidState,
			fmt.Sprintf("intent %s is %s and can no longer be modified", id, intent.Status))
	}
	if patch.Status != nil && *patch.Status != intent.Status {
		if !CanTransition(intent.Status, *patch.Status) {
			return nil, xerrors.New(CodeIntentTransition,
				fmt.Sprintf("cannot move intent %s from %s to %s", id, intent.Status, *patch.Status))
		}
		intent.Status = *patch.Status
	}
	if patch.ParsedSteps != nil {
		intent.ParsedSteps = append([]Step(nil), patch.ParsedSteps...)
	}
	if patch.TotalGasEstimate != nil {
		intent.TotalGasEstimate = *patch.TotalGasEstimate
	}
	if patch.ExecutedAt != nil {
		at := patch.ExecutedAt.UTC()
		intent.ExecutedAt = &at
	}
	if patch.TxHash != nil {
		intent.TxHash = *patch.TxHash
	}
	if patch.Sponsored != nil {
		intent.Sponsored = *patch.Sponsored
	}
	if patch.Error != nil {
		intent.Error = *patch.Error
	}
	if len(patch.AppendLogs) > 0 {
		intent.Logs = append(intent.Logs, patch.AppendLogs...)
	}
	intent.UpdatedAt = m.now().UTC()
	return cloneIntent(intent), nil
}

// ListAll 返回全部意图，最新创建的在前。
func (m *MemoryStore) ListAll(ctx context.Context) ([]*Intent, error) {
	return m.ListRecent(ctx, 0)
}

// ListRecent 返回最近创建的 n 个意图；n <= 0 表示不限制。
// 创建时间相同时按写入顺序倒序。
func (m *MemoryStore) ListRecent(_ context.Context, n int) ([]*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*storedIntent, 0, len(m.intents))
	for _, stored := range m.intents {
		entries = append(entries, stored)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.intent.CreatedAt.Equal(b.intent.CreatedAt) {
			return a.intent.CreatedAt.After(b.intent.CreatedAt)
		}
		return a.seq > b.seq
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]*Intent, len(entries))
	for i, stored := range entries {
		out[i] = cloneIntent(stored.intent)
	}
	return out, nil
}

// Stats 按状态统计意图数量。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Total: len(m.intents)}
	for _, stored := range m.intents {
		switch stored.intent.Status {
		case StatusCreated:
			stats.Created++
		case StatusParsed:
			stats.Parsed++
		case StatusExecuting:
			stats.Executing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

var _ Store = (*MemoryStore)(nil)
