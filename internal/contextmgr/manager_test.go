// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
)

func TestManagerAddMessagesRoutesSystemPrompt(t *testing.T) {
	cfg := DefaultCompactionConfig()
	m := NewManager(cfg, NewSlidingWindowStrategy(2), "")

	m.AddMessages(
		entity.Message{Role: entity.RoleSystem, Content: "be concise"},
		entity.Message{Role: entity.RoleUser, Content: "hi"},
	)

	state := m.State()
	if state.SystemPrompt != "be concise" {
		t.Fatalf("system prompt not routed: got %q", state.SystemPrompt)
	}
	if state.MessageCount != 1 {
		t.Fatalf("expected 1 stored message, got %d", state.MessageCount)
	}
	full := m.Messages()
	if len(full) != 2 || full[0].Role != entity.RoleSystem {
		t.Fatalf("expected system prompt prepended to messages, got %+v", full)
	}
}

func TestManagerShouldCompactAndCompact(t *testing.T) {
	cfg := CompactionConfig{
		StrategyKind:           entity.StrategySlidingWindow,
		TriggerThresholdTokens: 10,
		TargetTokens:           5,
		PreserveRecentTurns:    1,
		PreserveSystemPrompt:   true,
	}
	m := NewManager(cfg, NewSlidingWindowStrategy(2), "system prompt")

	for i := 0; i < 20; i++ {
		m.AddMessages(entity.Message{Role: entity.RoleUser, Content: "padding content to accumulate tokens quickly"})
	}

	if !m.ShouldCompact() {
		t.Fatal("expected should_compact to report true once over threshold")
	}

	result := m.Compact(context.Background())
	if !result.Applied {
		t.Fatal("expected compaction to apply")
	}

	state := m.State()
	if len(state.CompactionHistory) != 1 {
		t.Fatalf("expected compaction_history to record one entry, got %d", len(state.CompactionHistory))
	}
	if state.SystemPrompt != "system prompt" {
		t.Fatal("system prompt must survive compaction")
	}
}
