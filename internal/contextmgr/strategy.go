// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"context"

	"github.com/agentrt/agentrt/internal/entity"
)

// Strategy compacts a message history down towards budget tokens. It must
// preserve the first message when it is a system prompt, and must never
// split a tool-call/tool-result unit across the kept/dropped boundary.
// Implementations report what they did via entity.CompactionResult.
type Strategy interface {
	Name() entity.CompactionStrategy
	Compact(ctx context.Context, messages []entity.Message, budgetTokens int) ([]entity.Message, entity.CompactionResult)
}

// Summarizer generates a natural-language summary of a message run. The LLM
// backend implements this; a heuristic fallback is used when it is nil or
// returns an error.
type Summarizer interface {
	Summarize(ctx context.Context, messages []entity.Message) (string, error)
}

// splitSystem pulls a leading system message off the front of history, if
// present, returning it separately from the rest.
func splitSystem(messages []entity.Message) (system *entity.Message, rest []entity.Message) {
	if len(messages) > 0 && messages[0].Role == entity.RoleSystem {
		sys := messages[0]
		return &sys, messages[1:]
	}
	return nil, messages
}

func tokensOf(messages []entity.Message) int {
	total := 0
	for _, m := range messages {
		total += m.Tokens
	}
	return total
}

func withSystem(system *entity.Message, rest []entity.Message) []entity.Message {
	if system == nil {
		return rest
	}
	out := make([]entity.Message, 0, len(rest)+1)
	out = append(out, *system)
	out = append(out, rest...)
	return out
}
