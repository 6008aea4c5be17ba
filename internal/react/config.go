// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package react implements the ReAct workflow engine: a
// stricter Thought/Action/Observation protocol layered on top of the Agent
// Loop, completed exclusively by a synthetic final_answer tool call.
package react

import "fmt"

// Config adds ReAct-specific behavior to the agent configuration the
// underlying agentloop.Loop already carries.
type Config struct {
	ExposeReasoning bool // include Thought entries in the scratchpad

	ReasoningPrefix    string
	ActionPrefix       string
	ObservationPrefix  string

	FinalAnswerToolName string // default "final_answer"

	AutoCompactInWorkflow bool
	CompactThresholdRatio float64 // [0.1, 1.0] — gate against trigger_threshold_tokens

	MaxConsecutiveThoughts int // force an action once reached

	IncludeScratchpad bool // replay formatted history into each iteration's prompt

	ToolRetryCount int // retry count for the synthetic final_answer tool

	MaxIterations      int
	TimeoutSeconds     float64
	StepTimeoutSeconds float64
}

// DefaultConfig provides sane production defaults rather than requiring
// every field to be set.
func DefaultConfig() Config {
	return Config{
		ExposeReasoning:        true,
		ReasoningPrefix:        "Thought: ",
		ActionPrefix:           "Action: ",
		ObservationPrefix:      "Observation: ",
		FinalAnswerToolName:    "final_answer",
		AutoCompactInWorkflow:  true,
		CompactThresholdRatio:  0.8,
		MaxConsecutiveThoughts: 3,
		IncludeScratchpad:      true,
		ToolRetryCount:         1,
		MaxIterations:          15,
	}
}

// Validate checks the few hard constraints eagerly, at construction,
// rather than letting a bad value surface mid-run.
func (c Config) Validate() error {
	if c.CompactThresholdRatio < 0.1 || c.CompactThresholdRatio > 1.0 {
		return fmt.Errorf("react: compact_threshold_ratio must be in [0.1, 1.0], got %v", c.CompactThresholdRatio)
	}
	if c.FinalAnswerToolName == "" {
		return fmt.Errorf("react: final_answer_tool_name must not be empty")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("react: max_iterations must be positive")
	}
	return nil
}
