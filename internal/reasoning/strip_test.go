// Copyright 2026 NGOClaw Authors. All rights reserved.
package reasoning

import "testing"

func TestStripRemovesThinkingTags(t *testing.T) {
	in := "<think>internal plan</think>The answer is 42."
	got := Strip(in)
	if got != "The answer is 42." {
		t.Fatalf("got %q", got)
	}
}

func TestStripNoTagsIsNoop(t *testing.T) {
	in := "nothing to strip here"
	if got := Strip(in); got != in {
		t.Fatalf("got %q, want unchanged", got)
	}
}

func TestStripPreservesCodeBlocks(t *testing.T) {
	in := "before\n```\n<think>kept as code</think>\n```\nafter"
	got := Strip(in)
	if got != in {
		t.Fatalf("expected fenced code untouched, got %q", got)
	}
}

func TestStripUnclosedThinkStrict(t *testing.T) {
	in := "<think>still thinking, never closes and content follows"
	got := Strip(in)
	if got != "" {
		t.Fatalf("expected strict mode to drop trailing content, got %q", got)
	}
}

func TestStripUnclosedThinkPreserve(t *testing.T) {
	in := "<think>still thinking"
	got := Strip(in, WithStripMode(StripPreserve))
	if got != "still thinking" {
		// the tag itself is consumed; the text after it is kept
		t.Fatalf("got %q", got)
	}
}

func TestStripFinalTagRemovesMarkupKeepsContent(t *testing.T) {
	in := "<final>the real answer</final>"
	got := Strip(in)
	if got != "the real answer" {
		t.Fatalf("got %q", got)
	}
}
