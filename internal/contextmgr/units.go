// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package contextmgr implements the pluggable context-window compaction
// layer: a message store plus five interchangeable compaction strategies,
// all built on the same invariant — an assistant message that issued tool
// calls and the tool-result messages answering those calls are never split
// across a compaction boundary.
package contextmgr

import "github.com/agentrt/agentrt/internal/entity"

// unit is one or more consecutive messages that must be kept or dropped
// together. A plain message is its own unit. An assistant message with tool
// calls is grouped with every immediately-following tool-result message that
// answers one of those calls, since the model backend rejects a tool call
// without its paired result (and vice versa).
type unit struct {
	messages []entity.Message
}

func (u unit) tokens() int {
	total := 0
	for _, m := range u.messages {
		total += m.Tokens
	}
	return total
}

func (u unit) hasRole(role entity.Role) bool {
	for _, m := range u.messages {
		if m.Role == role {
			return true
		}
	}
	return false
}

// groupUnits partitions messages into pairing-safe units, in order.
func groupUnits(messages []entity.Message) []unit {
	units := make([]unit, 0, len(messages))
	i := 0
	for i < len(messages) {
		m := messages[i]
		if m.Role == entity.RoleAssistant && len(m.ToolCalls) > 0 {
			pending := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
			group := []entity.Message{m}
			j := i + 1
			for j < len(messages) && len(pending) > 0 {
				next := messages[j]
				if next.Role != entity.RoleTool || !pending[next.ToolCallID] {
					break
				}
				delete(pending, next.ToolCallID)
				group = append(group, next)
				j++
			}
			units = append(units, unit{messages: group})
			i = j
			continue
		}
		units = append(units, unit{messages: []entity.Message{m}})
		i++
	}
	return units
}

// flatten reassembles units back into a flat message slice.
func flatten(units []unit) []entity.Message {
	total := 0
	for _, u := range units {
		total += len(u.messages)
	}
	out := make([]entity.Message, 0, total)
	for _, u := range units {
		out = append(out, u.messages...)
	}
	return out
}
