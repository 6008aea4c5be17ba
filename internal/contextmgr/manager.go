// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"sync"
	"time"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tokencount"
)

// CompactionConfig configures a Manager's compaction behavior.
type CompactionConfig struct {
	StrategyKind           entity.CompactionStrategy
	TriggerThresholdTokens int
	TargetTokens           int
	PreserveRecentTurns    int
	PreserveSystemPrompt   bool
	SummarizationModel     string
}

// DefaultCompactionConfig returns sane defaults: selective pruning at 80% of
// an 8k budget, keeping the last 4 turns untouched.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		StrategyKind:           entity.StrategySelectivePrune,
		TriggerThresholdTokens: 6400,
		TargetTokens:           4800,
		PreserveRecentTurns:    4,
		PreserveSystemPrompt:   true,
	}
}

// Manager is the context manager: it owns a MessageStore, a system-prompt
// slot, a compaction Strategy, and tracks every compaction that has run.
type Manager struct {
	mu sync.Mutex

	store  *MessageStore
	config CompactionConfig

	strategy     Strategy
	systemPrompt string

	history       []entity.CompactionResult
	last          time.Time
	unsatisfiable int
}

// NewManager builds a Manager around strategy (selected by the caller to
// match config.StrategyKind — the manager does not instantiate strategies
// itself since several need collaborators, such as an LLM Summarizer).
func NewManager(config CompactionConfig, strategy Strategy, systemPrompt string) *Manager {
	return &Manager{
		store:        NewMessageStore(),
		config:       config,
		strategy:     strategy,
		systemPrompt: systemPrompt,
	}
}

// AddMessages routes system messages into the dedicated slot (when
// PreserveSystemPrompt is set) and everything else into the store.
func (m *Manager) AddMessages(msgs ...entity.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rest []entity.Message
	for _, msg := range msgs {
		if msg.Role == entity.RoleSystem && m.config.PreserveSystemPrompt {
			m.systemPrompt = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	if len(rest) > 0 {
		m.store.Append(rest...)
	}
}

// Messages returns the full history the model backend should see: the
// system prompt (if any) followed by the stored conversation.
func (m *Manager) Messages() []entity.Message {
	m.mu.Lock()
	system, store := m.systemSlot(), m.store
	m.mu.Unlock()
	return withSystem(system, store.All())
}

func (m *Manager) systemSlot() *entity.Message {
	if m.systemPrompt == "" {
		return nil
	}
	sys := entity.Message{Role: entity.RoleSystem, Content: m.systemPrompt}
	sys.Tokens = tokencount.CountMessage(sys)
	return &sys
}

// TokenCount returns the sum of the stored messages plus the system prompt.
func (m *Manager) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.store.TotalTokens()
	if sys := m.systemSlot(); sys != nil {
		total += sys.Tokens
	}
	return total
}

// ShouldCompact reports whether the history has crossed the trigger
// threshold.
func (m *Manager) ShouldCompact() bool {
	return m.TokenCount() >= m.config.TriggerThresholdTokens
}

// Compact runs the configured strategy against (target, preserve_recent),
// installs the result into the store, and records it in compaction_history.
func (m *Manager) Compact(ctx context.Context) entity.CompactionResult {
	m.mu.Lock()
	system := m.systemSlot()
	full := withSystem(system, m.store.All())
	m.mu.Unlock()

	out, result := m.strategy.Compact(ctx, full, m.config.TargetTokens)

	m.mu.Lock()
	defer m.mu.Unlock()
	newSystem, rest := splitSystem(out)
	if newSystem != nil && m.config.PreserveSystemPrompt {
		m.systemPrompt = newSystem.Content
		m.store.Replace(rest)
	} else {
		m.store.Replace(out)
	}
	m.history = append(m.history, result)
	m.last = timeNow()
	if result.TokensAfter > m.config.TargetTokens {
		m.unsatisfiable++
	}
	return result
}

// CompactSlice runs the manager's configured strategy against an arbitrary
// message slice without touching the store or compaction_history — used by
// the Agent Loop to recover from a mid-run context-overflow error on a
// caller-supplied history that never entered this manager's store.
func (m *Manager) CompactSlice(ctx context.Context, messages []entity.Message) ([]entity.Message, entity.CompactionResult) {
	m.mu.Lock()
	strategy := m.strategy
	target := m.config.TargetTokens
	m.mu.Unlock()
	return strategy.Compact(ctx, messages, target)
}

// timeNow is a seam so tests can stub out wall-clock time if ever needed;
// production code always uses the real clock.
var timeNow = time.Now

// State returns a point-in-time snapshot of the manager.
func (m *Manager) State() entity.ContextState {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokenCount := m.store.TotalTokens()
	if sys := m.systemSlot(); sys != nil {
		tokenCount += sys.Tokens
	}

	ratio := 0.0
	if m.config.TriggerThresholdTokens > 0 {
		ratio = float64(tokenCount) / float64(m.config.TriggerThresholdTokens)
	}

	return entity.ContextState{
		TokenCount:        tokenCount,
		MessageCount:      m.store.Len(),
		SystemPrompt:      m.systemPrompt,
		CompactionHistory: append([]entity.CompactionResult(nil), m.history...),
		MaxTokens:         m.config.TriggerThresholdTokens,
		Ratio:             ratio,
		NeedCompaction:    tokenCount >= m.config.TriggerThresholdTokens,
		Warning:           ratio >= 0.9,
		LastCompaction:    m.last,

		UnsatisfiableCompactions: m.unsatisfiable,
	}
}

// Store exposes the underlying MessageStore for callers (the agent loop,
// tests) that need direct access — e.g. add_tool_result during tool
// dispatch, where routing through AddMessages would be overkill.
func (m *Manager) Store() *MessageStore { return m.store }
