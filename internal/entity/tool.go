// Copyright 2026 NGOClaw Authors. All rights reserved.
package entity

// ToolCall is a single model-requested invocation as dispatched by the agent
// loop, distinct from ToolCallRequest which is the wire-shape attached to a
// Message. Both carry the same already-parsed argument map.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of executing a ToolCall. Retryable lets a
// handler declare that a failure is transient (timeout, connection reset)
// so the Agent Loop's per-tool retry policy applies to it.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Output     string
	Display    string
	Success    bool
	Error      string
	Retryable  bool
	Metadata   map[string]any
}

// DisplayOrOutput returns Display when set, falling back to Output.
func (r ToolResult) DisplayOrOutput() string {
	if r.Display != "" {
		return r.Display
	}
	return r.Output
}

// ToMessage converts the result into the tool-role Message appended to
// history so the next model turn can see it.
func (r ToolResult) ToMessage() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Output,
		ToolCallID: r.ToolCallID,
		Name:       r.ToolName,
	}
}
