// Copyright 2026 NGOClaw Authors. All rights reserved.
package entity

import "time"

// UsageRecord captures token accounting for a single model or tool call.
// ToolName is empty for a plain model call; per-tool breakdowns collect
// those under the "_agent" key.
type UsageRecord struct {
	Model            string    `json:"model,omitempty"`
	ToolName         string    `json:"tool_name,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Timestamp        time.Time `json:"timestamp"`
}

// AgentBreakdownKey is the breakdown_by_tool bucket for calls with no
// associated tool name.
const AgentBreakdownKey = "_agent"

// UsageAggregate is a running total of prompt/completion/total tokens plus
// a request count, the shape breakdown_by_tool returns per key.
type UsageAggregate struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	RequestCount     int64 `json:"request_count"`
}
