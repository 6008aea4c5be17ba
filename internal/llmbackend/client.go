// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package llmbackend defines the model backend seam: an
// abstract chat-completion + streaming client the Agent Loop depends on,
// plus the retry/circuit-breaker machinery shared by every concrete
// backend. The OpenAI-compatible implementation lives in the openaicompat
// subpackage; alternate backends plug in behind the same Client interface.
package llmbackend

import (
	"context"

	"github.com/agentrt/agentrt/internal/entity"
)

// CompletionRequest is the backend-agnostic chat request the Agent Loop
// builds from its message history and tool schemas.
type CompletionRequest struct {
	Model       string
	Messages    []entity.Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// ToolSchema is the model-facing tool description the Agent Loop gathers
// from the Tool Registry and MCP Client Manager.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CompletionResponse is the backend-agnostic chat response.
type CompletionResponse struct {
	Content          string
	ToolCalls        []entity.ToolCallRequest
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one incremental piece of a streaming completion.
type StreamChunk struct {
	DeltaText    string
	DeltaTool    *entity.ToolCallRequest
	FinishReason string
}

// Client is the Model Backend contract the Agent Loop calls through.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Stream(ctx context.Context, req CompletionRequest, deltas chan<- StreamChunk) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}

// RetryPolicy is one row of the aggressiveness table: how many times to
// retry a transient tool or model failure, and how much to back off
// between attempts.
type RetryPolicy struct {
	ToolRetries      int
	ModelRetries     int
	BackoffMultiplier float64
}

// RetryTable maps an aggressiveness level (1-3) to its RetryPolicy. Level 1
// is conservative (fail fast), level 3 is persistent (tolerate flaky
// backends at the cost of latency).
var RetryTable = map[int]RetryPolicy{
	1: {ToolRetries: 1, ModelRetries: 2, BackoffMultiplier: 2.0},
	2: {ToolRetries: 2, ModelRetries: 3, BackoffMultiplier: 1.5},
	3: {ToolRetries: 3, ModelRetries: 5, BackoffMultiplier: 1.2},
}

// PolicyForLevel returns the configured RetryPolicy, defaulting to level 2
// (balanced) for an out-of-range level.
func PolicyForLevel(level int) RetryPolicy {
	if p, ok := RetryTable[level]; ok {
		return p
	}
	return RetryTable[2]
}
