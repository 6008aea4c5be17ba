// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"sort"

	"github.com/agentrt/agentrt/internal/entity"
)

// Scorer optionally replaces the built-in importance heuristic with an LLM
// judgment. The LLM path is best-effort only — Score errors fall back to
// the heuristic, never propagate.
type Scorer interface {
	Score(ctx context.Context, msg entity.Message, position, total int) (float64, error)
}

// ImportanceScoringStrategy removes the lowest-scored messages (outside the
// preserve window) until the history fits budgetTokens, scoring each as
// 0.5*recency + 0.4*role_weight + length_bonus.
type ImportanceScoringStrategy struct {
	PreserveRecent int
	Scorer         Scorer
}

func NewImportanceScoringStrategy(preserveRecent int, scorer Scorer) *ImportanceScoringStrategy {
	if preserveRecent <= 0 {
		preserveRecent = 4
	}
	return &ImportanceScoringStrategy{PreserveRecent: preserveRecent, Scorer: scorer}
}

func (s *ImportanceScoringStrategy) Name() entity.CompactionStrategy {
	return entity.StrategyImportance
}

func roleWeight(m entity.Message) float64 {
	switch m.Role {
	case entity.RoleSystem:
		return 1.0
	case entity.RoleUser:
		return 0.7
	case entity.RoleAssistant:
		if len(m.ToolCalls) > 0 {
			return 0.5
		}
		return 0.6
	case entity.RoleTool:
		return 0.3
	default:
		return 0.5
	}
}

func lengthBonus(m entity.Message) float64 {
	b := float64(len(m.Content)) / 500.0
	if b > 0.2 {
		b = 0.2
	}
	return b
}

// score computes the heuristic importance score for the message at
// position (0-indexed) out of total messages: newer positions score higher.
func score(m entity.Message, position, total int) float64 {
	recency := 0.0
	if total > 0 {
		recency = float64(position) / float64(total)
	}
	return 0.5*recency + 0.4*roleWeight(m) + lengthBonus(m)
}

type scoredUnit struct {
	u     unit
	index int // original position among units, for stable reassembly and tie-break
	score float64
}

func (s *ImportanceScoringStrategy) Compact(ctx context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult) {
	before := tokensOf(messages)
	result := entity.CompactionResult{Strategy: s.Name(), MessagesBefore: len(messages), TokensBefore: before}

	if before <= budgetTokens {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	system, rest := splitSystem(messages)
	units := groupUnits(rest)

	preserveFrom := len(units) - s.PreserveRecent
	if preserveFrom < 0 {
		preserveFrom = 0
	}

	scored := make([]scoredUnit, 0, preserveFrom)
	for i := 0; i < preserveFrom; i++ {
		u := units[i]
		sc := s.scoreUnit(ctx, u, i, len(units))
		scored = append(scored, scoredUnit{u: u, index: i, score: sc})
	}

	// Ascending score order; ties broken by original (older-first) index.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].index < scored[j].index
	})

	removed := make(map[int]bool)
	current := before
	for _, su := range scored {
		if current <= budgetTokens {
			break
		}
		removed[su.index] = true
		current -= su.u.tokens()
	}

	if len(removed) == 0 {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	// Reassemble in original order, skipping removed units.
	kept := make([]unit, 0, len(units)-len(removed))
	for i, u := range units {
		if removed[i] {
			continue
		}
		kept = append(kept, u)
	}

	out := withSystem(system, flatten(kept))
	result.Applied = true
	result.MessagesAfter = len(out)
	result.TokensAfter = tokensOf(out)
	result.RemovedCount = len(messages) - len(out)
	return out, result
}

func (s *ImportanceScoringStrategy) scoreUnit(ctx context.Context, u unit, position, total int) float64 {
	// A unit may span several messages (an assistant tool-call plus its
	// results); score it by its first message's position/role, the same
	// shape the heuristic evaluates per-message.
	head := u.messages[0]
	if s.Scorer != nil {
		if sc, err := s.Scorer.Score(ctx, head, position, total); err == nil {
			return sc
		}
	}
	return score(head, position, total)
}
