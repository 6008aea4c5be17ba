// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package usage implements the single-writer, append-only UsageRecord log
// with aggregate and cost queries.
package usage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentrt/agentrt/internal/entity"
)

// Tracker accumulates UsageRecords across every run of the Agent Loop that
// owns it, until Reset. It is single-writer by construction (only the owning
// Agent Loop calls Record); reads always return defensive copies.
type Tracker struct {
	mu        sync.Mutex
	records   []entity.UsageRecord
	startedAt time.Time
}

// NewTracker creates a tracker whose clock starts now.
func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now()}
}

// Record appends one call's usage. model and tool are both optional; an
// empty tool groups under entity.AgentBreakdownKey in BreakdownByTool.
func (t *Tracker) Record(promptTokens, completionTokens int, model, tool string) entity.UsageRecord {
	rec := entity.UsageRecord{
		Model:            model,
		ToolName:         tool,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Timestamp:        time.Now(),
	}
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()
	return rec
}

// Total returns the running aggregate across every recorded call.
func (t *Tracker) Total() entity.UsageAggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalLocked()
}

func (t *Tracker) totalLocked() entity.UsageAggregate {
	var agg entity.UsageAggregate
	for _, r := range t.records {
		agg.PromptTokens += int64(r.PromptTokens)
		agg.CompletionTokens += int64(r.CompletionTokens)
		agg.TotalTokens += int64(r.TotalTokens)
		agg.RequestCount++
	}
	return agg
}

// History returns a defensive copy of every recorded UsageRecord, in
// recording order.
func (t *Tracker) History() []entity.UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]entity.UsageRecord, len(t.records))
	copy(out, t.records)
	return out
}

// BreakdownByTool groups usage by tool name, with entity.AgentBreakdownKey
// collecting calls that carried no tool name.
func (t *Tracker) BreakdownByTool() map[string]entity.UsageAggregate {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]entity.UsageAggregate)
	for _, r := range t.records {
		key := r.ToolName
		if key == "" {
			key = entity.AgentBreakdownKey
		}
		agg := out[key]
		agg.PromptTokens += int64(r.PromptTokens)
		agg.CompletionTokens += int64(r.CompletionTokens)
		agg.TotalTokens += int64(r.TotalTokens)
		agg.RequestCount++
		out[key] = agg
	}
	return out
}

// Reset clears all recorded history and restarts the elapsed-time clock.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	t.startedAt = time.Now()
}

// Elapsed returns wall-clock time since the tracker (or its last Reset)
// was created.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startedAt)
}

// RateTable is a cost-rate lookup: USD per 1,000 tokens, keyed by model
// name, with a required "default" fallback entry. Prefix matching lets one
// entry ("gpt-4") cover every dated variant ("gpt-4-0613").
type RateTable map[string]float64

// CostFor resolves the USD/1K-token rate for model: exact match first,
// then the longest registered key that model has as a prefix, then
// "default". Returns (0, false) if neither exists.
func (rt RateTable) CostFor(model string) (float64, bool) {
	if rate, ok := rt[model]; ok {
		return rate, true
	}
	bestLen := -1
	best := 0.0
	for key, rate := range rt {
		if key == "default" {
			continue
		}
		if strings.HasPrefix(model, key) && len(key) > bestLen {
			bestLen = len(key)
			best = rate
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	if rate, ok := rt["default"]; ok {
		return rate, true
	}
	return 0, false
}

// EstimateCost sums the USD cost of every recorded call using rates. If
// model is non-empty, only records for that model are counted; otherwise
// every record is costed by its own Model field.
func (t *Tracker) EstimateCost(rates RateTable, model string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, r := range t.records {
		if model != "" && r.Model != model {
			continue
		}
		rate, ok := rates.CostFor(r.Model)
		if !ok {
			continue
		}
		total += float64(r.TotalTokens) / 1000.0 * rate
	}
	return total
}

// ToolNames returns the sorted set of distinct tool names recorded,
// excluding the implicit agent bucket — used by the summarization
// compaction fallback to list "what tools ran" without an LLM call.
func (t *Tracker) ToolNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	for _, r := range t.records {
		if r.ToolName != "" {
			seen[r.ToolName] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
