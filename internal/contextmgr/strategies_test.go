// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tokencount"
)

func msg(role entity.Role, content string) entity.Message {
	m := entity.Message{Role: role, Content: content}
	m.Tokens = tokencount.CountMessage(m)
	return m
}

func toolCallMsg(id, name string) entity.Message {
	m := entity.Message{
		Role:      entity.RoleAssistant,
		ToolCalls: []entity.ToolCallRequest{{ID: id, Name: name}},
	}
	m.Tokens = tokencount.CountMessage(m)
	return m
}

func toolResultMsg(id, content string) entity.Message {
	m := entity.Message{Role: entity.RoleTool, Content: content, ToolCallID: id}
	m.Tokens = tokencount.CountMessage(m)
	return m
}

func longHistory(n int) []entity.Message {
	var msgs []entity.Message
	msgs = append(msgs, msg(entity.RoleSystem, "you are a helpful agent"))
	for i := 0; i < n; i++ {
		msgs = append(msgs, msg(entity.RoleUser, "question number with some padding text to add tokens"))
		msgs = append(msgs, toolCallMsg("call-"+string(rune('a'+i)), "lookup"))
		msgs = append(msgs, toolResultMsg("call-"+string(rune('a'+i)), "result payload with some padding text"))
		msgs = append(msgs, msg(entity.RoleAssistant, "here is the answer with some padding text"))
	}
	return msgs
}

func TestStrategiesNoopUnderBudget(t *testing.T) {
	msgs := longHistory(2)
	budget := tokensOf(msgs) + 100

	strategies := []Strategy{
		NewSlidingWindowStrategy(2),
		NewSummarizeOlderStrategy(nil, 2, nil),
		NewSelectivePruningStrategy(2),
		NewImportanceScoringStrategy(2, nil),
		NewHybridStrategy(),
	}
	for _, s := range strategies {
		out, result := s.Compact(context.Background(), msgs, budget)
		if result.Applied {
			t.Errorf("%s: expected no-op under budget, got Applied=true", s.Name())
		}
		if len(out) != len(msgs) {
			t.Errorf("%s: expected unchanged length, got %d want %d", s.Name(), len(out), len(msgs))
		}
		if result.RemovedCount != 0 {
			t.Errorf("%s: expected removed_count=0, got %d", s.Name(), result.RemovedCount)
		}
	}
}

func TestSlidingWindowPreservesSuffix(t *testing.T) {
	msgs := longHistory(8)
	before := tokensOf(msgs)
	target := before / 3

	s := NewSlidingWindowStrategy(2)
	out, result := s.Compact(context.Background(), msgs, target)

	if result.TokensAfter > before {
		t.Fatalf("tokens_after %d should not exceed tokens_before %d", result.TokensAfter, before)
	}
	if len(out) == 0 {
		t.Fatal("expected at least some messages to survive")
	}
	suffix := msgs[len(msgs)-s.PreserveRecent:]
	gotSuffix := out[len(out)-s.PreserveRecent:]
	for i := range suffix {
		if suffix[i].Content != gotSuffix[i].Content {
			t.Fatalf("trailing preserve window changed: want %q got %q", suffix[i].Content, gotSuffix[i].Content)
		}
	}
}

func TestSelectivePruningSkipsInFlightCalls(t *testing.T) {
	msgs := []entity.Message{
		msg(entity.RoleSystem, "system"),
		msg(entity.RoleUser, "first question padded out with extra words"),
		toolCallMsg("c1", "search"),
		toolResultMsg("c1", "result one padded out with extra words"),
		msg(entity.RoleAssistant, "answer one padded out with extra words"),
		msg(entity.RoleUser, "second question padded out with extra words"),
		toolCallMsg("c2", "search"),
		// c2 has no matching tool result yet — in-flight, must never be pruned.
	}

	s := NewSelectivePruningStrategy(0)
	out, result := s.Compact(context.Background(), msgs, 1)

	if !result.Applied {
		t.Fatal("expected pruning to apply when budget is far below usage")
	}
	found := false
	for _, m := range out {
		for _, tc := range m.ToolCalls {
			if tc.ID == "c2" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("in-flight tool call c2 must survive pruning")
	}
}

func TestSummarizeOlderBuildsSyntheticSystemSummary(t *testing.T) {
	msgs := longHistory(8)
	before := tokensOf(msgs)

	s := NewSummarizeOlderStrategy(nil, 2, nil)
	out, result := s.Compact(context.Background(), msgs, before/3)

	if !result.Applied {
		t.Fatal("expected summarization to apply")
	}
	// the synthetic summary sits right after the preserved system prompt
	summary := out[1]
	if summary.Role != entity.RoleSystem {
		t.Fatalf("summary message role = %q, want system", summary.Role)
	}
	if !strings.HasPrefix(summary.Content, "[Previous conversation summary: ") {
		t.Fatalf("unexpected summary label: %q", summary.Content)
	}
	if !strings.Contains(summary.Content, "Topics discussed: ") {
		t.Fatalf("expected user-message topics in summary: %q", summary.Content)
	}
	if !strings.Contains(summary.Content, "Tools used: lookup") {
		t.Fatalf("expected distinct tool names in summary: %q", summary.Content)
	}
	if summary.Content != result.SummaryText {
		t.Fatal("SummaryText should match the synthetic message content")
	}
	// the trailing preserve window survives verbatim
	tail := flatten(groupUnits(msgs[1:])[len(groupUnits(msgs[1:]))-2:])
	gotTail := out[len(out)-len(tail):]
	for i := range tail {
		if gotTail[i].Content != tail[i].Content {
			t.Fatalf("preserved suffix changed at %d: %q vs %q", i, gotTail[i].Content, tail[i].Content)
		}
	}
}

func TestImportanceScoringRestoresOrder(t *testing.T) {
	msgs := longHistory(6)
	before := tokensOf(msgs)
	target := before / 2

	s := NewImportanceScoringStrategy(2, nil)
	out, result := s.Compact(context.Background(), msgs, target)

	if !result.Applied {
		t.Fatal("expected importance scoring to remove something")
	}
	if result.TokensAfter > before {
		t.Fatalf("tokens_after should not exceed tokens_before")
	}
	// original relative order must be preserved among survivors: each one
	// must appear in msgs after the previous survivor (longHistory repeats
	// the same contents every round, so the search resumes past the last
	// match instead of starting over)
	lastSeen := -1
	for _, out := range out {
		pos := indexOfContent(msgs, out, lastSeen+1)
		if pos < 0 {
			t.Fatalf("survivor ordering violated original sequence")
		}
		lastSeen = pos
	}
}

func indexOfContent(haystack []entity.Message, needle entity.Message, from int) int {
	for i := from; i < len(haystack); i++ {
		m := haystack[i]
		if m.Role != needle.Role || m.Content != needle.Content || m.ToolCallID != needle.ToolCallID || len(m.ToolCalls) != len(needle.ToolCalls) {
			continue
		}
		same := true
		for k := range m.ToolCalls {
			if m.ToolCalls[k].ID != needle.ToolCalls[k].ID {
				same = false
			}
		}
		if same {
			return i
		}
	}
	return -1
}

func TestHybridLabelsStagesThatRan(t *testing.T) {
	msgs := longHistory(10)
	before := tokensOf(msgs)
	target := before / 4

	s := NewHybridStrategy()
	_, result := s.Compact(context.Background(), msgs, target)

	if !result.Applied {
		t.Fatal("expected hybrid strategy to apply")
	}
	if result.TokensAfter > before {
		t.Fatalf("tokens_after should not exceed tokens_before")
	}
	if string(result.Strategy) == string(entity.StrategyHybrid) {
		t.Fatal("expected strategy label to list the stages that ran")
	}
}
