// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tokencount"
	"go.uber.org/zap"
)

// SummarizeOlderStrategy replaces the oldest units with a single synthetic
// system message "[Previous conversation summary: ...]", keeping a system
// prompt and the most recent units intact. It prefers an LLM-generated
// summary and falls back to a deterministic heuristic — the first three
// user-message prefixes plus the distinct tool names used — when no
// Summarizer is configured or the call fails.
type SummarizeOlderStrategy struct {
	Summarizer Summarizer
	KeepRecent int
	Logger     *zap.Logger
}

func NewSummarizeOlderStrategy(summarizer Summarizer, keepRecent int, logger *zap.Logger) *SummarizeOlderStrategy {
	if keepRecent <= 0 {
		keepRecent = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummarizeOlderStrategy{Summarizer: summarizer, KeepRecent: keepRecent, Logger: logger}
}

func (s *SummarizeOlderStrategy) Name() entity.CompactionStrategy { return entity.StrategySummarizeOlder }

func (s *SummarizeOlderStrategy) Compact(ctx context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult) {
	before := tokensOf(messages)
	result := entity.CompactionResult{Strategy: s.Name(), MessagesBefore: len(messages), TokensBefore: before}

	if before <= budgetTokens {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	system, rest := splitSystem(messages)
	units := groupUnits(rest)

	if len(units) <= s.KeepRecent {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	olderUnits := units[:len(units)-s.KeepRecent]
	recentUnits := units[len(units)-s.KeepRecent:]
	older := flatten(olderUnits)

	summary := s.trySummarize(ctx, older)
	if summary == "" {
		summary = heuristicSummary(older)
	}
	content := fmt.Sprintf("[Previous conversation summary: %s]", summary)
	result.SummaryText = content

	summaryMsg := entity.Message{Role: entity.RoleSystem, Content: content}
	summaryMsg.Tokens = tokencount.CountMessage(summaryMsg)

	out := make([]entity.Message, 0, len(recentUnits)+2)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, summaryMsg)
	out = append(out, flatten(recentUnits)...)

	result.Applied = true
	result.MessagesAfter = len(out)
	result.TokensAfter = tokensOf(out)
	result.SyntheticInserts = 1
	result.RemovedCount = len(messages) - len(out) + result.SyntheticInserts
	return out, result
}

func (s *SummarizeOlderStrategy) trySummarize(ctx context.Context, messages []entity.Message) string {
	if s.Summarizer == nil || len(messages) == 0 {
		return ""
	}
	summary, err := s.Summarizer.Summarize(ctx, messages)
	if err != nil {
		s.Logger.Debug("llm summarization failed, falling back to heuristic summary", zap.Error(err))
		return ""
	}
	return summary
}

// heuristicSummary builds a deterministic summary without calling a model:
// the first three user-message prefixes as topics, plus the distinct names
// of the tools the assistant called.
func heuristicSummary(messages []entity.Message) string {
	parts := []string{fmt.Sprintf("Conversation with %d messages.", len(messages))}

	var topics []string
	for _, m := range messages {
		if m.Role == entity.RoleUser && len(topics) < 3 {
			topics = append(topics, prefixOf(m.Content, 50))
		}
	}
	if len(topics) > 0 {
		parts = append(parts, "Topics discussed: "+strings.Join(topics, ", ")+"...")
	}

	seen := make(map[string]bool)
	var toolNames []string
	for _, m := range messages {
		if m.Role != entity.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.Name != "" && !seen[tc.Name] {
				seen[tc.Name] = true
				toolNames = append(toolNames, tc.Name)
			}
		}
	}
	if len(toolNames) > 5 {
		toolNames = toolNames[:5]
	}
	if len(toolNames) > 0 {
		parts = append(parts, "Tools used: "+strings.Join(toolNames, ", "))
	}

	return strings.Join(parts, " ")
}

func prefixOf(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
