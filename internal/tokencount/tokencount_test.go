// Copyright 2026 NGOClaw Authors. All rights reserved.
package tokencount

import (
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
)

func TestCountEmptyIsZero(t *testing.T) {
	if got := Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountMonotonic(t *testing.T) {
	a := "the quick brown fox"
	b := "jumps over the lazy dog and keeps running"
	ca, cb, cab := Count(a), Count(b), Count(a+b)
	if cab < ca {
		t.Fatalf("Count(a+b)=%d should be >= Count(a)=%d", cab, ca)
	}
	if cab < cb {
		t.Fatalf("Count(a+b)=%d should be >= Count(b)=%d", cab, cb)
	}
}

func TestCountDeterministic(t *testing.T) {
	text := "deterministic counting across repeated calls"
	first := Count(text)
	for i := 0; i < 5; i++ {
		if got := Count(text); got != first {
			t.Fatalf("Count is not deterministic: got %d, want %d", got, first)
		}
	}
}

func TestCountMessagesDeterministic(t *testing.T) {
	msgs := []entity.Message{
		{Role: entity.RoleUser, Content: "hello there"},
		{Role: entity.RoleAssistant, Content: "hi, how can I help?"},
	}
	first := CountMessages(append([]entity.Message(nil), msgs...))
	second := CountMessages(append([]entity.Message(nil), msgs...))
	if first != second {
		t.Fatalf("CountMessages not deterministic: %d vs %d", first, second)
	}
}

func TestFitsContext(t *testing.T) {
	text := "short"
	if !FitsContext(text, 10, 1000) {
		t.Fatal("expected short text to fit generous limit")
	}
	if FitsContext(text, 10, 0) {
		t.Fatal("expected short text not to fit a zero limit")
	}
}

func TestCountWithMarginAddsHeadroom(t *testing.T) {
	text := "margin test text of moderate length"
	base := Count(text)
	withMargin := CountWithMargin(text, 20)
	if withMargin <= base {
		t.Fatalf("CountWithMargin(20%%) = %d should exceed base %d", withMargin, base)
	}
}
