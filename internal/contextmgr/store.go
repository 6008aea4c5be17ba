// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"sync"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tokencount"
)

// MessageStore owns the canonical, mutable message history for one run.
// Every read returns a defensive copy so callers (middleware, strategies,
// the agent loop) can never corrupt history by mutating a slice in place.
type MessageStore struct {
	mu       sync.RWMutex
	messages []entity.Message
}

// NewMessageStore creates an empty store, optionally seeded with a system
// prompt.
func NewMessageStore(seed ...entity.Message) *MessageStore {
	s := &MessageStore{}
	if len(seed) > 0 {
		s.messages = entity.CloneMessages(seed)
	}
	return s
}

// Append adds messages to the end of history.
func (s *MessageStore) Append(msgs ...entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m.Tokens == 0 {
			m.Tokens = tokencount.CountMessage(m)
		}
		s.messages = append(s.messages, m)
	}
}

// All returns a defensive copy of the full history.
func (s *MessageStore) All() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entity.CloneMessages(s.messages)
}

// Replace swaps the entire history — used by compaction strategies to
// install their compacted result.
func (s *MessageStore) Replace(msgs []entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = entity.CloneMessages(msgs)
}

// Len returns the current message count.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// TotalTokens returns the estimated token cost of the whole history.
func (s *MessageStore) TotalTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, m := range s.messages {
		total += m.Tokens
	}
	return total
}

// AddToolResult appends a tool-result message answering callID.
func (s *MessageStore) AddToolResult(callID, toolName, content string) {
	s.Append(entity.Message{
		Role:       entity.RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       toolName,
	})
}

// Recent returns the last n messages (or fewer, if the history is shorter).
func (s *MessageStore) Recent(n int) []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	return entity.CloneMessages(s.messages[start:])
}

// Turns groups the history such that each group begins with a user message;
// a leading prefix with no user message (e.g. a system prompt, or assistant
// messages preceding the first user turn) forms its own group. Concatenating
// every returned group reproduces the original list.
func (s *MessageStore) Turns() [][]entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return turnsOf(s.messages)
}

func turnsOf(messages []entity.Message) [][]entity.Message {
	var turns [][]entity.Message
	var current []entity.Message
	for _, m := range messages {
		if m.Role == entity.RoleUser && len(current) > 0 {
			turns = append(turns, entity.CloneMessages(current))
			current = nil
		}
		current = append(current, m)
	}
	if len(current) > 0 {
		turns = append(turns, entity.CloneMessages(current))
	}
	return turns
}

// RecentTurns returns the last n turns, as grouped by Turns.
func (s *MessageStore) RecentTurns(n int) [][]entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := turnsOf(s.messages)
	if n <= 0 {
		return nil
	}
	start := len(turns) - n
	if start < 0 {
		start = 0
	}
	return turns[start:]
}

// RemoveOldest drops the n oldest messages from history.
func (s *MessageStore) RemoveOldest(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= len(s.messages) {
		s.messages = nil
		return
	}
	s.messages = s.messages[n:]
}

// Clear empties the history.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
