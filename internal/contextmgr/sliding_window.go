// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"

	"github.com/agentrt/agentrt/internal/entity"
)

// SlidingWindowStrategy keeps only the most recent units whose combined
// token cost fits the budget, always preserving a leading system message.
// Unlike a naive index-based window, it cuts on unit boundaries, so a kept
// tool-result message is never left without its originating tool-call
// message (or vice versa).
type SlidingWindowStrategy struct {
	PreserveRecent int // always keep at least this many trailing units, even over budget
}

func NewSlidingWindowStrategy(preserveRecent int) *SlidingWindowStrategy {
	if preserveRecent <= 0 {
		preserveRecent = 2
	}
	return &SlidingWindowStrategy{PreserveRecent: preserveRecent}
}

func (s *SlidingWindowStrategy) Name() entity.CompactionStrategy { return entity.StrategySlidingWindow }

func (s *SlidingWindowStrategy) Compact(_ context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult) {
	before := tokensOf(messages)
	result := entity.CompactionResult{
		Strategy:       s.Name(),
		MessagesBefore: len(messages),
		TokensBefore:   before,
	}

	if before <= budgetTokens {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	system, rest := splitSystem(messages)
	units := groupUnits(rest)

	systemTokens := 0
	if system != nil {
		systemTokens = system.Tokens
	}

	kept := make([]unit, 0, len(units))
	total := systemTokens
	for i := len(units) - 1; i >= 0; i-- {
		u := units[i]
		if total+u.tokens() > budgetTokens && len(kept) >= s.PreserveRecent {
			break
		}
		kept = append([]unit{u}, kept...)
		total += u.tokens()
	}

	out := withSystem(system, flatten(kept))
	result.Applied = len(out) != len(messages)
	result.MessagesAfter = len(out)
	result.TokensAfter = tokensOf(out)
	result.RemovedCount = len(messages) - len(out)
	return out, result
}
