// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"
	"sort"
	"strings"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tokencount"
)

// SelectivePruningStrategy replaces the oldest *completed* tool-call/result
// pairs with a single synthetic note, leaving any in-flight (unresolved)
// tool call untouched.
type SelectivePruningStrategy struct {
	PreserveRecent int // trailing units (by index) never considered for pruning
}

func NewSelectivePruningStrategy(preserveRecent int) *SelectivePruningStrategy {
	if preserveRecent < 0 {
		preserveRecent = 4
	}
	return &SelectivePruningStrategy{PreserveRecent: preserveRecent}
}

func (s *SelectivePruningStrategy) Name() entity.CompactionStrategy {
	return entity.StrategySelectivePrune
}

func (s *SelectivePruningStrategy) Compact(_ context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult) {
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

	// A unit is a "completed pair" when it's an assistant tool-call unit
	// whose group already contains a tool-result for every call it issued.
	// An in-flight call with no tool-result yet sits in its own
	// single-message unit; one whose calls are only partly answered has
	// fewer results than calls. Neither is pruned.
	isCompletedPair := func(u unit) bool {
		head := u.messages[0]
		return head.Role == entity.RoleAssistant && len(head.ToolCalls) > 0 &&
			len(u.messages) == len(head.ToolCalls)+1
	}

	out := make([]unit, 0, len(units))
	var pruned []unit
	current := before
	for i, u := range units {
		if i >= preserveFrom || !isCompletedPair(u) || current <= budgetTokens {
			out = append(out, u)
			continue
		}
		pruned = append(pruned, u)
		current -= u.tokens()
	}

	if len(pruned) == 0 {
		result.MessagesAfter = len(messages)
		result.TokensAfter = before
		return messages, result
	}

	note := buildToolNote(pruned)
	noteMsg := entity.Message{Role: entity.RoleSystem, Content: note}
	noteMsg.Tokens = tokencount.CountMessage(noteMsg)
	result.SummaryText = note

	finalMessages := flatten(out)
	resultMessages := make([]entity.Message, 0, len(finalMessages)+2)
	resultMessages = append(resultMessages, noteMsg)
	resultMessages = append(resultMessages, finalMessages...)

	full := withSystem(system, resultMessages)
	result.Applied = true
	result.MessagesAfter = len(full)
	result.TokensAfter = tokensOf(full)
	result.SyntheticInserts = 1
	result.RemovedCount = len(messages) - len(full) + result.SyntheticInserts
	return full, result
}

func buildToolNote(pruned []unit) string {
	seen := make(map[string]bool)
	var names []string
	for _, u := range pruned {
		for _, m := range u.messages {
			if m.Role == entity.RoleAssistant {
				for _, tc := range m.ToolCalls {
					if !seen[tc.Name] {
						seen[tc.Name] = true
						names = append(names, tc.Name)
					}
				}
			}
		}
	}
	sort.Strings(names)
	return "[Tool calls executed: " + strings.Join(names, ", ") + "]"
}
