// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"strings"

	"github.com/agentrt/agentrt/internal/entity"
)

// HybridStrategy runs a configured sequence of strategies in order, feeding
// each stage's output into the next, and stops as soon as one stage reaches
// budgetTokens. The default sequence is selective-pruning followed by
// sliding-window: prune stale tool chatter first, and only fall back to
// dropping whole turns if that alone wasn't enough.
type HybridStrategy struct {
	Stages []Strategy
}

func NewHybridStrategy(stages ...Strategy) *HybridStrategy {
	if len(stages) == 0 {
		stages = []Strategy{
			NewSelectivePruningStrategy(4),
			NewSlidingWindowStrategy(4),
		}
	}
	return &HybridStrategy{Stages: stages}
}

func (s *HybridStrategy) Name() entity.CompactionStrategy { return entity.StrategyHybrid }

func (s *HybridStrategy) Compact(ctx context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult) {
	before := tokensOf(messages)
	result := entity.CompactionResult{Strategy: s.Name(), MessagesBefore: len(messages), TokensBefore: before}

	if before <= budgetTokens {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	current := messages
	var labels []string
	var summaries []string
	syntheticTotal := 0
	applied := false

	for _, stage := range s.Stages {
		out, stageResult := stage.Compact(ctx, current, budgetTokens)
		if stageResult.Applied {
			applied = true
			labels = append(labels, string(stageResult.Strategy))
			syntheticTotal += stageResult.SyntheticInserts
			if stageResult.SummaryText != "" {
				summaries = append(summaries, stageResult.SummaryText)
			}
		}
		current = out
		if tokensOf(current) <= budgetTokens {
			break
		}
	}

	result.Applied = applied
	result.MessagesAfter = len(current)
	result.TokensAfter = tokensOf(current)
	result.SyntheticInserts = syntheticTotal
	result.RemovedCount = len(messages) - len(current) + syntheticTotal
	if len(labels) > 0 {
		result.Strategy = entity.CompactionStrategy("hybrid(" + strings.Join(labels, "+") + ")")
	}
	if len(summaries) > 0 {
		result.SummaryText = strings.Join(summaries, "\n\n")
	}
	return current, result
}
