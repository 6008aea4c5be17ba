// Copyright 2026 NGOClaw Authors. All rights reserved.
package contextmgr

import (
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
)

func TestStoreAddAndRecent(t *testing.T) {
	s := NewMessageStore()
	before := s.Len()
	s.Append(entity.Message{Role: entity.RoleUser, Content: "hello"})

	if s.Len() != before+1 {
		t.Fatalf("expected len to grow by 1, got %d", s.Len())
	}
	recent := s.Recent(1)
	if len(recent) != 1 || recent[0].Content != "hello" {
		t.Fatalf("expected recent(1) to return the new message, got %+v", recent)
	}
}

func TestStoreTurnsGroupsByUserMessage(t *testing.T) {
	s := NewMessageStore()
	s.Append(
		entity.Message{Role: entity.RoleAssistant, Content: "preamble"},
		entity.Message{Role: entity.RoleUser, Content: "q1"},
		entity.Message{Role: entity.RoleAssistant, Content: "a1"},
		entity.Message{Role: entity.RoleUser, Content: "q2"},
		entity.Message{Role: entity.RoleTool, Content: "t2", ToolCallID: "x"},
	)

	turns := s.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns (leading prefix + 2 user-led groups), got %d", len(turns))
	}
	if turns[0][0].Role != entity.RoleAssistant {
		t.Fatalf("leading prefix with no user message should be its own group")
	}
	if turns[1][0].Role != entity.RoleUser || turns[1][0].Content != "q1" {
		t.Fatalf("second group should start with q1, got %+v", turns[1])
	}

	var flat []entity.Message
	for _, group := range turns {
		flat = append(flat, group...)
	}
	if len(flat) != s.Len() {
		t.Fatalf("concatenating all groups should reproduce the original list: got %d want %d", len(flat), s.Len())
	}
}

func TestStoreRemoveOldestAndClear(t *testing.T) {
	s := NewMessageStore()
	s.Append(
		entity.Message{Role: entity.RoleUser, Content: "a"},
		entity.Message{Role: entity.RoleUser, Content: "b"},
		entity.Message{Role: entity.RoleUser, Content: "c"},
	)

	s.RemoveOldest(2)
	if s.Len() != 1 {
		t.Fatalf("expected 1 message left after remove_oldest(2), got %d", s.Len())
	}
	if s.All()[0].Content != "c" {
		t.Fatalf("expected surviving message to be the newest one")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store after clear, got %d", s.Len())
	}
}

func TestStoreAddToolResult(t *testing.T) {
	s := NewMessageStore()
	s.AddToolResult("call-1", "search", "some output")

	all := s.All()
	if len(all) != 1 || all[0].Role != entity.RoleTool || all[0].ToolCallID != "call-1" {
		t.Fatalf("expected a tool-result message for call-1, got %+v", all)
	}
}
