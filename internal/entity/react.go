// Copyright 2026 NGOClaw Authors. All rights reserved.
package entity

import "time"

// ScratchpadEntryKind identifies the ReAct step kind a scratchpad entry
// records.
type ScratchpadEntryKind string

const (
	EntryThought     ScratchpadEntryKind = "thought"
	EntryAction      ScratchpadEntryKind = "action"
	EntryObservation ScratchpadEntryKind = "observation"
	EntryFinalAnswer ScratchpadEntryKind = "final_answer"
)

// ScratchpadEntry is one Thought/Action/Observation step recorded by the
// ReAct workflow engine. Metadata carries free-form per-entry detail, such
// as a tool name or an error flag.
type ScratchpadEntry struct {
	Kind       ScratchpadEntryKind
	Content    string
	ToolName   string
	Timestamp  time.Time
	TokenCount int
	Metadata   map[string]any
}

// ReActPhase is the engine's position within one Thought→Action→Observation
// cycle.
type ReActPhase string

const (
	PhaseThinking    ReActPhase = "thinking"
	PhaseActing      ReActPhase = "acting"
	PhaseObserving   ReActPhase = "observing"
	PhaseFinalAnswer ReActPhase = "final_answer"
)

// TerminationReason names why a ReAct run stopped.
type TerminationReason string

const (
	TerminationFinalAnswer   TerminationReason = "final_answer_tool"
	TerminationMaxIterations TerminationReason = "max_iterations"
	TerminationTimeout       TerminationReason = "timeout"
	TerminationError         TerminationReason = "error"
)

// ReActState tracks the running state of a ReAct workflow instance across
// iterations.
type ReActState struct {
	Task       string
	Phase      ReActPhase
	Iteration  int
	MaxIters   int
	Scratchpad []ScratchpadEntry
	FinalText  string
	Done       bool

	CurrentThought     string
	CurrentAction      string
	CurrentObservation string

	PerIterationTokens  []int
	TotalTokens         int64
	ConsecutiveThoughts int
	CompactionCount     int
	IsTerminated        bool
	TerminationReason   TerminationReason
	Success             bool
}
