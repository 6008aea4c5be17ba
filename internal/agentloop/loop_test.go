// Copyright 2026 NGOClaw Authors. All rights reserved.
package agentloop

import (
	"context"
	"errors"
	"testing"

	"github.com/agentrt/agentrt/internal/contextmgr"
	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/internal/usage"
)

// fakeBackend scripts a sequence of CompletionResponses, one per call.
type fakeBackend struct {
	responses []llmbackend.CompletionResponse
	errs      []error
	calls     int
}

func (f *fakeBackend) Complete(ctx context.Context, req llmbackend.CompletionRequest) (llmbackend.CompletionResponse, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return llmbackend.CompletionResponse{}, f.errs[idx]
	}
	if idx >= len(f.responses) {
		return llmbackend.CompletionResponse{}, errors.New("fakeBackend: no more scripted responses")
	}
	return f.responses[idx], nil
}

func (f *fakeBackend) Stream(ctx context.Context, req llmbackend.CompletionRequest, deltas chan<- llmbackend.StreamChunk) (llmbackend.CompletionResponse, error) {
	return f.Complete(ctx, req)
}

func (f *fakeBackend) HealthCheck(ctx context.Context) error { return nil }

func newTestLoop(t *testing.T, backend llmbackend.Client, reg *tool.Registry) *Loop {
	t.Helper()
	mgr := contextmgr.NewManager(contextmgr.DefaultCompactionConfig(), contextmgr.NewSlidingWindowStrategy(2), "you are a test agent")
	return New(backend, reg, mgr, usage.NewTracker(), nil, DefaultConfig())
}

func TestRunSingleTurnNoTools(t *testing.T) {
	backend := &fakeBackend{responses: []llmbackend.CompletionResponse{
		{Content: "hello there", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	loop := newTestLoop(t, backend, tool.NewRegistry())

	result, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "hello there" {
		t.Fatalf("got output %q", result.Output)
	}
	if result.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage recorded, got %+v", result.Usage)
	}
	if len(result.NewMessages) != 2 { // user prompt + assistant reply
		t.Fatalf("expected 2 new messages, got %d", len(result.NewMessages))
	}
}

func TestRunSingleToolCall(t *testing.T) {
	reg := tool.NewRegistry()
	_, err := reg.Register(func(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
		return entity.ToolResult{Output: "it is sunny", Success: true}, nil
	}, tool.WithName("get_weather"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	backend := &fakeBackend{responses: []llmbackend.CompletionResponse{
		{Content: "", ToolCalls: []entity.ToolCallRequest{{ID: "call-1", Name: "get_weather", Arguments: map[string]any{"city": "nyc"}}}},
		{Content: "it is sunny in nyc"},
	}}
	loop := newTestLoop(t, backend, reg)

	result, err := loop.Run(context.Background(), "what's the weather?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "it is sunny in nyc" {
		t.Fatalf("got output %q", result.Output)
	}
	if backend.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", backend.calls)
	}
	var sawToolResult bool
	for _, m := range result.NewMessages {
		if m.Role == entity.RoleTool && m.ToolCallID == "call-1" {
			sawToolResult = true
			if m.Content != "it is sunny" {
				t.Fatalf("tool result content mismatch: %q", m.Content)
			}
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool-result message in new messages")
	}
}

func TestRunUnknownToolProducesErrorObservation(t *testing.T) {
	backend := &fakeBackend{responses: []llmbackend.CompletionResponse{
		{ToolCalls: []entity.ToolCallRequest{{ID: "call-1", Name: "nope"}}},
		{Content: "done"},
	}}
	loop := newTestLoop(t, backend, tool.NewRegistry())

	result, err := loop.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "done" {
		t.Fatalf("got %q", result.Output)
	}
	found := false
	for _, m := range result.NewMessages {
		if m.Role == entity.RoleTool && m.Content == "Tool not found: nope" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected 'Tool not found' observation")
	}
}

func TestRunMaxIterationsExceeded(t *testing.T) {
	var responses []llmbackend.CompletionResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, llmbackend.CompletionResponse{
			ToolCalls: []entity.ToolCallRequest{{ID: "c", Name: "noop"}},
		})
	}
	reg := tool.NewRegistry()
	_, _ = reg.Register(func(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
		return entity.ToolResult{Success: true, Output: "ok"}, nil
	}, tool.WithName("noop"))

	backend := &fakeBackend{responses: responses}
	loop := newTestLoop(t, backend, reg)
	loop.config.MaxIterations = 3

	_, err := loop.Run(context.Background(), "loop forever")
	var maxIterErr *entity.MaxIterationsError
	if !errors.As(err, &maxIterErr) {
		t.Fatalf("expected MaxIterationsError, got %v", err)
	}
}

func TestRunStripsReasoningTagsFromFinalOutput(t *testing.T) {
	backend := &fakeBackend{responses: []llmbackend.CompletionResponse{
		{Content: "<think>plan it out</think>final words"},
	}}
	loop := newTestLoop(t, backend, tool.NewRegistry())

	result, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "final words" {
		t.Fatalf("got %q", result.Output)
	}
}
