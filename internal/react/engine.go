// Copyright 2026 NGOClaw Authors. All rights reserved.
package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/agentloop"
	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/reasoning"
	"github.com/agentrt/agentrt/internal/tool"
)

// finalAnswerSchema is the parameter schema for the synthetic completion
// tool: final_answer(answer: string) -> string.
var finalAnswerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{
			"type":        "string",
			"description": "The final answer to the task.",
		},
	},
	"required": []string{"answer"},
}

// Result is what Workflow.Run returns: success/failure, the surfaced output
// (the final_answer text on success), and the full terminal state.
type Result struct {
	Success bool
	Output  string
	State   entity.ReActState
}

// Workflow wraps an agentloop.Loop with a Thought->Action->Observation
// protocol. It borrows the loop — it does not own it — and caches no state
// across runs beyond the public ReActState it returns from Run.
type Workflow struct {
	loop   *agentloop.Loop
	config Config
	hooks  Hooks
	logger *zap.Logger
}

// New builds a Workflow atop loop, registering the synthetic final_answer
// tool into loop's Tool Registry. Call this once, before the registry is
// frozen for a run.
func New(loop *agentloop.Loop, config Config, hooks Hooks, logger *zap.Logger) (*Workflow, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Workflow{loop: loop, config: config, hooks: hooks, logger: logger}
	_, err := loop.Registry().Register(w.finalAnswerHandler(),
		tool.WithName(config.FinalAnswerToolName),
		tool.WithDescription("Call this with your final answer once the task is complete. This is the only way to end the run."),
		tool.WithSchema(finalAnswerSchema),
	)
	if err != nil {
		return nil, fmt.Errorf("react: registering final_answer tool: %w", err)
	}
	return w, nil
}

// finalAnswerHandler just echoes the answer back as a successful tool
// result; Run is what actually detects the call and terminates the
// workflow, by inspecting the new messages each iteration produces.
func (w *Workflow) finalAnswerHandler() tool.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
		answer, _ := args["answer"].(string)
		return entity.ToolResult{Success: true, Output: answer}, nil
	}
}

// Run drives the Thought/Action/Observation loop until the final_answer
// tool fires, the iteration cap is hit, the deadline passes, or the inner
// loop errors.
func (w *Workflow) Run(ctx context.Context, task string) (Result, error) {
	state := entity.ReActState{Task: task, MaxIters: w.config.MaxIterations, Phase: entity.PhaseThinking}

	if w.config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(w.config.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	safeCall(w.logger, "workflow_start", func() {
		if w.hooks.WorkflowStart != nil {
			w.hooks.WorkflowStart(ctx)
		}
	})

	result, err := w.runLoop(ctx, &state)

	if err != nil {
		result.State.IsTerminated = true
		if result.State.TerminationReason == "" {
			result.State.TerminationReason = entity.TerminationError
		}
		safeCall(w.logger, "workflow_error", func() {
			if w.hooks.WorkflowError != nil {
				w.hooks.WorkflowError(ctx, err)
			}
		})
		return result, err
	}

	safeCall(w.logger, "workflow_complete", func() {
		if w.hooks.WorkflowComplete != nil {
			w.hooks.WorkflowComplete(ctx, state)
		}
	})
	return result, nil
}

func (w *Workflow) runLoop(ctx context.Context, state *entity.ReActState) (Result, error) {
	for iteration := 1; ; iteration++ {
		if iteration > w.config.MaxIterations {
			state.TerminationReason = entity.TerminationMaxIterations
			return Result{State: *state}, &entity.MaxIterationsError{MaxIterations: w.config.MaxIterations}
		}
		if err := ctx.Err(); err != nil {
			state.TerminationReason = entity.TerminationTimeout
			return Result{State: *state}, &entity.TimeoutError{Operation: "react_workflow", TimeoutSeconds: w.config.TimeoutSeconds}
		}

		state.Iteration = iteration
		safeCall(w.logger, "iteration_start", func() {
			if w.hooks.IterationStart != nil {
				w.hooks.IterationStart(ctx, iteration)
			}
		})
		safeCall(w.logger, "step_start", func() {
			if w.hooks.StepStart != nil {
				w.hooks.StepStart(ctx, iteration)
			}
		})

		if w.config.AutoCompactInWorkflow {
			w.maybeCompact(ctx, state)
		}

		forceAction := state.ConsecutiveThoughts >= w.config.MaxConsecutiveThoughts
		prompt := w.buildPrompt(state, iteration, forceAction)

		runCtx := ctx
		var cancel context.CancelFunc
		if w.config.StepTimeoutSeconds > 0 {
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(w.config.StepTimeoutSeconds*float64(time.Second)))
		}
		res, err := w.loop.Run(runCtx, prompt,
			agentloop.WithToolRetries(w.config.FinalAnswerToolName, w.config.ToolRetryCount))
		if cancel != nil {
			cancel()
		}
		if err != nil {
			safeCall(w.logger, "step_error", func() {
				if w.hooks.StepError != nil {
					w.hooks.StepError(ctx, iteration, err)
				}
			})
			if runCtx.Err() != nil && ctx.Err() == nil {
				// the per-step deadline tripped, not the overall one; surface
				// it as a timeout failure for this iteration.
				state.TerminationReason = entity.TerminationTimeout
				return Result{State: *state}, &entity.TimeoutError{Operation: "react_step", TimeoutSeconds: w.config.StepTimeoutSeconds}
			}
			state.TerminationReason = entity.TerminationError
			return Result{State: *state}, err
		}

		iterTokens := int(res.Usage.TotalTokens)
		state.PerIterationTokens = append(state.PerIterationTokens, iterTokens)
		state.TotalTokens += res.Usage.TotalTokens

		terminated, answer := w.absorbMessages(ctx, state, res)

		safeCall(w.logger, "step_complete", func() {
			if w.hooks.StepComplete != nil {
				w.hooks.StepComplete(ctx, iteration)
			}
		})
		safeCall(w.logger, "iteration_complete", func() {
			if w.hooks.IterationComplete != nil {
				w.hooks.IterationComplete(ctx, iteration)
			}
		})

		if terminated {
			state.IsTerminated = true
			state.Success = true
			state.Done = true
			state.Phase = entity.PhaseFinalAnswer
			state.TerminationReason = entity.TerminationFinalAnswer
			state.FinalText = answer
			return Result{Success: true, Output: answer, State: *state}, nil
		}
	}
}

// maybeCompact is a read of the context manager's state followed,
// conditionally, by a compaction write. Both happen while this goroutine
// holds the only handle to the manager for the duration of this call,
// serializing it against the loop's own end-of-run compaction.
func (w *Workflow) maybeCompact(ctx context.Context, state *entity.ReActState) {
	mgr := w.loop.Context()
	if mgr == nil {
		return
	}
	snapshot := mgr.State()
	if snapshot.MaxTokens <= 0 {
		return
	}
	gate := w.config.CompactThresholdRatio * float64(snapshot.MaxTokens)
	if float64(snapshot.TokenCount) < gate {
		return
	}

	result := mgr.Compact(ctx)
	state.CompactionCount++
	safeCall(w.logger, "compaction", func() {
		if w.hooks.Compaction != nil {
			w.hooks.Compaction(ctx, result)
		}
	})
}

// buildPrompt assembles one iteration's user-facing prompt: the raw task
// on iteration 1, the replayed scratchpad plus a continue/force-action
// instruction afterwards.
func (w *Workflow) buildPrompt(state *entity.ReActState, iteration int, forceAction bool) string {
	if iteration == 1 {
		return state.Task
	}

	var b strings.Builder
	if w.config.IncludeScratchpad {
		b.WriteString(w.formatScratchpad(state.Scratchpad))
		b.WriteString("\n")
	}
	if forceAction {
		b.WriteString("You have reasoned enough. You must call a tool now to take an action.")
	} else {
		b.WriteString("Continue working on the task.")
	}
	return b.String()
}

func (w *Workflow) formatScratchpad(entries []entity.ScratchpadEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case entity.EntryThought:
			b.WriteString(w.config.ReasoningPrefix)
		case entity.EntryAction:
			b.WriteString(w.config.ActionPrefix)
		case entity.EntryObservation:
			b.WriteString(w.config.ObservationPrefix)
		default:
			continue
		}
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// absorbMessages walks one inner agentloop.Run's new messages, appending a
// Thought/Action/Observation to the scratchpad for each, and reports
// whether the sentinel final_answer tool was called.
func (w *Workflow) absorbMessages(ctx context.Context, state *entity.ReActState, res agentloop.Result) (terminated bool, answer string) {
	sawAction := false
	sawThought := false

messages:
	for _, msg := range res.NewMessages {
		switch msg.Role {
		case entity.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				content := reasoning.Strip(msg.Content)
				if content == "" {
					continue
				}
				if w.config.ExposeReasoning {
					entry := entity.ScratchpadEntry{
						Kind:       entity.EntryThought,
						Content:    content,
						Timestamp:  time.Now(),
						TokenCount: msg.Tokens,
					}
					state.Scratchpad = append(state.Scratchpad, entry)
					state.CurrentThought = content
					sawThought = true
					safeCall(w.logger, "thought", func() {
						if w.hooks.Thought != nil {
							w.hooks.Thought(ctx, entry)
						}
					})
				}
				continue
			}
			for _, tc := range msg.ToolCalls {
				if tc.Name == w.config.FinalAnswerToolName {
					terminated = true
					if a, ok := tc.Arguments["answer"].(string); ok {
						answer = a
					}
					break messages
				}
				entry := entity.ScratchpadEntry{
					Kind:      entity.EntryAction,
					Content:   formatAction(tc.Name, tc.Arguments),
					ToolName:  tc.Name,
					Timestamp: time.Now(),
				}
				state.Scratchpad = append(state.Scratchpad, entry)
				state.CurrentAction = entry.Content
				sawAction = true
				safeCall(w.logger, "action", func() {
					if w.hooks.Action != nil {
						w.hooks.Action(ctx, entry)
					}
				})
			}
		case entity.RoleTool:
			isError := agentloop.IsErrorObservation(msg.Content)
			entry := entity.ScratchpadEntry{
				Kind:       entity.EntryObservation,
				Content:    msg.Content,
				ToolName:   msg.Name,
				Timestamp:  time.Now(),
				TokenCount: msg.Tokens,
				Metadata:   map[string]any{"is_error": isError},
			}
			state.Scratchpad = append(state.Scratchpad, entry)
			state.CurrentObservation = entry.Content
			safeCall(w.logger, "observation", func() {
				if w.hooks.Observation != nil {
					w.hooks.Observation(ctx, entry)
				}
			})
		}
	}

	if terminated {
		note := entity.ScratchpadEntry{
			Kind:      entity.EntryObservation,
			Content:   fmt.Sprintf("Task completed with answer: %s", answer),
			Timestamp: time.Now(),
		}
		state.Scratchpad = append(state.Scratchpad, note)
		safeCall(w.logger, "observation", func() {
			if w.hooks.Observation != nil {
				w.hooks.Observation(ctx, note)
			}
		})
	}

	if sawAction {
		state.ConsecutiveThoughts = 0
	} else if sawThought {
		state.ConsecutiveThoughts++
	}
	return terminated, answer
}

func formatAction(name string, args map[string]any) string {
	return fmt.Sprintf("%s(%v)", name, entity.RedactArgs(args))
}
