// Copyright 2026 NGOClaw Authors. All rights reserved.
package usage

import (
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
)

func TestRecordAccumulatesTotal(t *testing.T) {
	tr := NewTracker()
	tr.Record(10, 5, "gpt-test", "")
	tr.Record(20, 8, "gpt-test", "")

	total := tr.Total()
	if total.PromptTokens != 30 || total.CompletionTokens != 13 || total.TotalTokens != 43 {
		t.Fatalf("unexpected aggregate: %+v", total)
	}
	if total.RequestCount != 2 {
		t.Fatalf("expected 2 requests, got %d", total.RequestCount)
	}

	// the aggregate must equal the sum of the individual records
	var sum int64
	for _, r := range tr.History() {
		sum += int64(r.TotalTokens)
	}
	if sum != total.TotalTokens {
		t.Fatalf("history sum %d != aggregate %d", sum, total.TotalTokens)
	}
}

func TestHistoryReturnsDefensiveCopy(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, 1, "m", "")

	h := tr.History()
	h[0].PromptTokens = 999

	if tr.History()[0].PromptTokens != 1 {
		t.Fatal("mutating a History copy must not affect the tracker")
	}
}

func TestBreakdownByToolBucketsAgentCalls(t *testing.T) {
	tr := NewTracker()
	tr.Record(10, 2, "m", "")
	tr.Record(5, 1, "m", "search")
	tr.Record(7, 3, "m", "search")

	breakdown := tr.BreakdownByTool()
	agent, ok := breakdown[entity.AgentBreakdownKey]
	if !ok || agent.RequestCount != 1 || agent.TotalTokens != 12 {
		t.Fatalf("unexpected _agent bucket: %+v", agent)
	}
	search := breakdown["search"]
	if search.RequestCount != 2 || search.TotalTokens != 16 {
		t.Fatalf("unexpected search bucket: %+v", search)
	}
}

func TestRateTablePrefixAndDefaultFallback(t *testing.T) {
	rates := RateTable{
		"gpt-4":      0.03,
		"gpt-4-32k":  0.06,
		"default":    0.002,
	}

	cases := []struct {
		model string
		want  float64
	}{
		{"gpt-4", 0.03},            // exact
		{"gpt-4-0613", 0.03},       // prefix
		{"gpt-4-32k-0613", 0.06},   // longest prefix wins
		{"unknown-model", 0.002},   // default fallback
	}
	for _, c := range cases {
		got, ok := rates.CostFor(c.model)
		if !ok || got != c.want {
			t.Errorf("CostFor(%q) = %v (ok=%v), want %v", c.model, got, ok, c.want)
		}
	}

	if _, ok := (RateTable{}).CostFor("anything"); ok {
		t.Error("empty table with no default should report no rate")
	}
}

func TestEstimateCost(t *testing.T) {
	tr := NewTracker()
	tr.Record(800, 200, "gpt-test", "") // 1000 tokens
	tr.Record(400, 100, "other", "")    // 500 tokens

	rates := RateTable{"gpt-test": 0.01, "default": 0.002}

	got := tr.EstimateCost(rates, "gpt-test")
	if got != 0.01 {
		t.Fatalf("model-filtered cost = %v, want 0.01", got)
	}

	all := tr.EstimateCost(rates, "")
	want := 0.01 + 0.5*0.002
	if all != want {
		t.Fatalf("total cost = %v, want %v", all, want)
	}
}

func TestResetClearsHistory(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, 1, "m", "")
	tr.Reset()

	if len(tr.History()) != 0 {
		t.Fatal("expected empty history after reset")
	}
	if tr.Total().RequestCount != 0 {
		t.Fatal("expected zeroed aggregate after reset")
	}
}

func TestToolNamesSortedDistinct(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, 1, "m", "search")
	tr.Record(1, 1, "m", "add")
	tr.Record(1, 1, "m", "search")
	tr.Record(1, 1, "m", "")

	names := tr.ToolNames()
	if len(names) != 2 || names[0] != "add" || names[1] != "search" {
		t.Fatalf("unexpected tool names: %v", names)
	}
}
