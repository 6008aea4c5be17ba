// Copyright 2026 NGOClaw Authors. All rights reserved.
package react

import (
	"context"
	"errors"
	"testing"

	"github.com/agentrt/agentrt/internal/agentloop"
	"github.com/agentrt/agentrt/internal/contextmgr"
	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/internal/usage"
)

type scriptedBackend struct {
	responses []llmbackend.CompletionResponse
	calls     int
}

func (b *scriptedBackend) Complete(ctx context.Context, req llmbackend.CompletionRequest) (llmbackend.CompletionResponse, error) {
	idx := b.calls
	b.calls++
	if idx >= len(b.responses) {
		return llmbackend.CompletionResponse{}, errors.New("scriptedBackend: no more responses")
	}
	return b.responses[idx], nil
}

func (b *scriptedBackend) Stream(ctx context.Context, req llmbackend.CompletionRequest, deltas chan<- llmbackend.StreamChunk) (llmbackend.CompletionResponse, error) {
	return b.Complete(ctx, req)
}

func (b *scriptedBackend) HealthCheck(ctx context.Context) error { return nil }

func newTestWorkflow(t *testing.T, backend llmbackend.Client, cfg Config) *Workflow {
	t.Helper()
	mgr := contextmgr.NewManager(contextmgr.DefaultCompactionConfig(), contextmgr.NewSlidingWindowStrategy(2), "you are a test agent")
	loop := agentloop.New(backend, tool.NewRegistry(), mgr, usage.NewTracker(), nil, agentloop.DefaultConfig())
	wf, err := New(loop, cfg, Hooks{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return wf
}

func TestWorkflowTerminatesOnFinalAnswer(t *testing.T) {
	backend := &scriptedBackend{responses: []llmbackend.CompletionResponse{
		{ToolCalls: []entity.ToolCallRequest{{ID: "t1", Name: "final_answer", Arguments: map[string]any{"answer": "42"}}}},
		{Content: "acknowledged"}, // lets the inner agent loop's own round-trip settle after the tool dispatch
	}}
	cfg := DefaultConfig()
	wf := newTestWorkflow(t, backend, cfg)

	result, err := wf.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Output != "42" {
		t.Fatalf("got %+v", result)
	}
	if result.State.TerminationReason != entity.TerminationFinalAnswer {
		t.Fatalf("expected final_answer_tool termination, got %q", result.State.TerminationReason)
	}
	var sawObservation bool
	for _, e := range result.State.Scratchpad {
		if e.Kind == entity.EntryObservation && e.Content == "Task completed with answer: 42" {
			sawObservation = true
		}
	}
	if !sawObservation {
		t.Fatal("expected a completion observation in the scratchpad")
	}
}

func TestWorkflowHitsMaxIterations(t *testing.T) {
	var responses []llmbackend.CompletionResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, llmbackend.CompletionResponse{Content: "still thinking..."})
	}
	backend := &scriptedBackend{responses: responses}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.MaxConsecutiveThoughts = 100 // don't force an action mid-run
	wf := newTestWorkflow(t, backend, cfg)

	result, err := wf.Run(context.Background(), "ponder forever")
	var maxIterErr *entity.MaxIterationsError
	if !errors.As(err, &maxIterErr) {
		t.Fatalf("expected MaxIterationsError, got %v", err)
	}
	if result.State.TerminationReason != entity.TerminationMaxIterations {
		t.Fatalf("expected max_iterations termination, got %q", result.State.TerminationReason)
	}
	thoughtCount := 0
	for _, e := range result.State.Scratchpad {
		if e.Kind == entity.EntryThought {
			thoughtCount++
		}
	}
	if thoughtCount != 3 {
		t.Fatalf("expected 3 thoughts recorded, got %d", thoughtCount)
	}
}

func TestWorkflowConsecutiveThoughtsResetsOnAction(t *testing.T) {
	backend := &scriptedBackend{responses: []llmbackend.CompletionResponse{
		{Content: "thinking..."},
		{Content: "still thinking..."},
		{ToolCalls: []entity.ToolCallRequest{{ID: "t1", Name: "lookup", Arguments: map[string]any{}}}},
		{ToolCalls: []entity.ToolCallRequest{{ID: "t2", Name: "final_answer", Arguments: map[string]any{"answer": "done"}}}},
		{Content: "acknowledged"},
	}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 10
	cfg.MaxConsecutiveThoughts = 5
	wf := newTestWorkflow(t, backend, cfg)
	if _, err := wf.loop.Registry().Register(func(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
		return entity.ToolResult{Success: true, Output: "found it"}, nil
	}, tool.WithName("lookup")); err != nil {
		t.Fatalf("register lookup: %v", err)
	}

	result, err := wf.Run(context.Background(), "find something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State.ConsecutiveThoughts != 0 {
		t.Fatalf("expected consecutive-thought count reset after an action, got %d", result.State.ConsecutiveThoughts)
	}
}

func TestWorkflowScratchpadLengthMatchesRecordedEntries(t *testing.T) {
	backend := &scriptedBackend{responses: []llmbackend.CompletionResponse{
		{Content: "thinking..."},
		{ToolCalls: []entity.ToolCallRequest{{ID: "t1", Name: "final_answer", Arguments: map[string]any{"answer": "ok"}}}},
		{Content: "acknowledged"},
	}}
	cfg := DefaultConfig()
	wf := newTestWorkflow(t, backend, cfg)

	result, err := wf.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// one thought + one completion observation
	if len(result.State.Scratchpad) != 2 {
		t.Fatalf("expected 2 scratchpad entries, got %d: %+v", len(result.State.Scratchpad), result.State.Scratchpad)
	}
}
