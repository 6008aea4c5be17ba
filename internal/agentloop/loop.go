// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package agentloop implements the agent loop: the turn-based
// driver that submits history and tool schemas to a Model Backend,
// dispatches any requested tool calls through the Tool Registry, and
// repeats until the model stops asking for tools.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/contextmgr"
	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
	"github.com/agentrt/agentrt/internal/logging"
	"github.com/agentrt/agentrt/internal/reasoning"
	"github.com/agentrt/agentrt/internal/tokencount"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/internal/usage"
)

// Config tunes one Loop's behavior.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int

	MaxIterations int // abort with MaxIterationsError past this many model round-trips

	ToolRetryLevel int           // 1-3, selects llmbackend.RetryTable's tool_retries column
	ToolTimeout    time.Duration // per-tool execution deadline; 0 = no deadline

	// AutoCompact compacts after the run: once new messages are handed to
	// the Context Manager, compact if it now says ShouldCompact.
	AutoCompact bool
}

// DefaultConfig returns conservative defaults: bounded iterations and a
// per-tool timeout, so a tool-happy model cannot spin a run forever.
func DefaultConfig() Config {
	return Config{
		Temperature:    0.7,
		MaxIterations:  25,
		ToolRetryLevel: 2,
		ToolTimeout:    30 * time.Second,
		AutoCompact:    true,
	}
}

// UsageLimitError is surfaced when a run-scoped token budget (an optional
// per-run usage limit) is exceeded mid-run.
type UsageLimitError struct {
	Limit int64
	Spent int64
}

func (e *UsageLimitError) Error() string {
	return fmt.Sprintf("usage limit exceeded: spent %d of %d tokens", e.Spent, e.Limit)
}

// Result is what Run/RunStream returns: the final text, every message the
// run produced (to be hung off the caller's own Context Manager if they
// manage one independently), and the aggregate usage recorded this run.
type Result struct {
	Output      string
	NewMessages []entity.Message
	Usage       entity.UsageAggregate
}

// Loop wires a Model Backend, a Tool Registry (which also carries any
// MCP-sourced tools, so name resolution sees the union of both), a Context
// Manager, and a Usage Tracker together.
type Loop struct {
	backend  llmbackend.Client
	registry *tool.Registry
	context  *contextmgr.Manager
	usage    *usage.Tracker
	logger   *zap.Logger
	config   Config
}

// New builds a Loop. usage may be nil to disable usage tracking for this
// loop (a fresh tracker is then created per Run so callers always get a
// populated Result.Usage).
func New(backend llmbackend.Client, registry *tool.Registry, ctxMgr *contextmgr.Manager, tracker *usage.Tracker, logger *zap.Logger, config Config) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 25
	}
	return &Loop{
		backend:  backend,
		registry: registry,
		context:  ctxMgr,
		usage:    tracker,
		logger:   logger,
		config:   config,
	}
}

// Context exposes the underlying Context Manager. The ReAct Workflow
// Engine borrows it to read context-window state for its mid-workflow
// compaction gate; it does not own it and must not cache state across runs
// beyond what this snapshot offers.
func (l *Loop) Context() *contextmgr.Manager { return l.context }

// Registry exposes the underlying Tool Registry so the ReAct Workflow
// Engine can register its synthetic final_answer tool before the first run.
func (l *Loop) Registry() *tool.Registry { return l.registry }

// Option customizes a single Run call.
type Option func(*runState)

// WithHistory supplies the message history verbatim instead of asking the
// Context Manager for it. New messages produced by this run are still
// handed to the Context Manager at the end.
func WithHistory(history []entity.Message) Option {
	return func(rs *runState) { rs.history = entity.CloneMessages(history) }
}

// WithUsageLimit caps total tokens (prompt+completion) this run may spend;
// exceeding it aborts with *UsageLimitError carrying the partial result.
func WithUsageLimit(limit int64) Option {
	return func(rs *runState) { rs.usageLimit = limit }
}

// WithToolRetries overrides the retry count for one tool name this run,
// replacing the aggressiveness-level default for that tool only. The ReAct
// workflow uses it to give its sentinel final_answer tool its own
// configured retry budget.
func WithToolRetries(name string, retries int) Option {
	return func(rs *runState) {
		if rs.toolRetries == nil {
			rs.toolRetries = make(map[string]int)
		}
		rs.toolRetries[name] = retries
	}
}

type runState struct {
	history     []entity.Message
	usageLimit  int64
	toolRetries map[string]int
}

// Run drives one task turn to completion (or failure): submit the prompt,
// dispatch any requested tool calls, and repeat until the model answers
// without asking for tools.
func (l *Loop) Run(ctx context.Context, prompt string, opts ...Option) (Result, error) {
	return l.run(ctx, prompt, nil, opts...)
}

// RunStream behaves like Run but forwards model content chunks to deltas as
// they arrive; usage/context updates are still deferred until the whole
// response (including any tool round-trips) is consumed.
func (l *Loop) RunStream(ctx context.Context, prompt string, deltas chan<- llmbackend.StreamChunk, opts ...Option) (Result, error) {
	return l.run(ctx, prompt, deltas, opts...)
}

func (l *Loop) run(ctx context.Context, prompt string, deltas chan<- llmbackend.StreamChunk, opts ...Option) (result Result, err error) {
	rs := &runState{}
	for _, opt := range opts {
		opt(rs)
	}

	runID := uuid.NewString()
	ctx = logging.WithTraceID(ctx, runID)
	logger := logging.WithTrace(ctx, l.logger)

	tracker := l.usage
	if tracker == nil {
		tracker = usage.NewTracker()
	}
	baseline := tracker.Total()

	history := rs.history
	if history == nil {
		history = l.context.Messages()
	}

	userMsg := entity.Message{Role: entity.RoleUser, Content: prompt}
	messages := append(entity.CloneMessages(history), userMsg)
	newMessages := []entity.Message{userMsg}

	schemas := toolSchemas(l.registry)
	overflowAttempted := false

	defer func() {
		result.NewMessages = newMessages
		l.context.AddMessages(newMessages...)
		if l.config.AutoCompact && l.context.ShouldCompact() {
			res := l.context.Compact(ctx)
			logger.Info("auto-compacted context after run",
				zap.String("strategy", string(res.Strategy)),
				zap.Int("removed", res.RemovedCount),
			)
		}
		total := tracker.Total()
		result.Usage = entity.UsageAggregate{
			PromptTokens:     total.PromptTokens - baseline.PromptTokens,
			CompletionTokens: total.CompletionTokens - baseline.CompletionTokens,
			TotalTokens:      total.TotalTokens - baseline.TotalTokens,
			RequestCount:     total.RequestCount - baseline.RequestCount,
		}
	}()

	for iteration := 1; ; iteration++ {
		if iteration > l.config.MaxIterations {
			return result, &entity.MaxIterationsError{MaxIterations: l.config.MaxIterations}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := l.complete(ctx, messages, schemas, deltas)
		if err != nil {
			var overflow *entity.ContextOverflowError
			if errors.As(err, &overflow) && !overflowAttempted {
				overflowAttempted = true
				compacted, compResult := l.context.CompactSlice(ctx, messages)
				logger.Warn("context overflow, compacting once and retrying",
					zap.Int("removed", compResult.RemovedCount))
				messages = compacted
				iteration--
				continue
			}
			if errors.As(err, &overflow) {
				overflow.CompactionAttempted = true
				return result, overflow
			}
			return result, err
		}

		tracker.Record(resp.PromptTokens, resp.CompletionTokens, resp.Model, "")
		if rs.usageLimit > 0 {
			spent := tracker.Total().TotalTokens - baseline.TotalTokens
			if spent > rs.usageLimit {
				return result, &UsageLimitError{Limit: rs.usageLimit, Spent: spent}
			}
		}

		assistantMsg := entity.Message{
			Role:      entity.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		newMessages = append(newMessages, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			result.Output = reasoning.Strip(resp.Content)
			return result, nil
		}

		for _, tc := range resp.ToolCalls {
			toolMsg := l.dispatchTool(ctx, tc, rs.toolRetries)
			messages = append(messages, toolMsg)
			newMessages = append(newMessages, toolMsg)
		}
	}
}

func (l *Loop) complete(ctx context.Context, messages []entity.Message, schemas []llmbackend.ToolSchema, deltas chan<- llmbackend.StreamChunk) (llmbackend.CompletionResponse, error) {
	req := llmbackend.CompletionRequest{
		Model:       l.config.Model,
		Messages:    messages,
		Tools:       schemas,
		Temperature: l.config.Temperature,
		MaxTokens:   l.config.MaxTokens,
	}
	if deltas != nil {
		return l.backend.Stream(ctx, req, deltas)
	}
	return l.backend.Complete(ctx, req)
}

// dispatchTool resolves and invokes one tool call, applying the
// aggressiveness-level tool-retry policy to transient failures, and always
// returns a tool-role message — never a Go error — so a failing tool feeds
// back to the model instead of aborting the run.
func (l *Loop) dispatchTool(ctx context.Context, tc entity.ToolCallRequest, retryOverrides map[string]int) entity.Message {
	if !l.registry.Has(tc.Name) {
		return entity.Message{
			Role:       entity.RoleTool,
			Content:    fmt.Sprintf("Tool not found: %s", tc.Name),
			ToolCallID: tc.ID,
			Name:       tc.Name,
		}
	}

	policy := llmbackend.PolicyForLevel(l.config.ToolRetryLevel)
	maxRetries := policy.ToolRetries
	if override, ok := retryOverrides[tc.Name]; ok {
		maxRetries = override
	}
	call := entity.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}

	var result entity.ToolResult
retryLoop:
	for attempt := 0; ; attempt++ {
		toolCtx := ctx
		var cancel context.CancelFunc
		if l.config.ToolTimeout > 0 {
			toolCtx, cancel = context.WithTimeout(ctx, l.config.ToolTimeout)
		}
		result = l.registry.Execute(toolCtx, call)
		if cancel != nil {
			cancel()
		}
		if result.Success || !result.Retryable || attempt >= maxRetries {
			break
		}
		backoff := time.Duration(math.Pow(policy.BackoffMultiplier, float64(attempt)) * float64(time.Second))
		select {
		case <-ctx.Done():
			break retryLoop
		case <-time.After(backoff):
		}
	}

	content := result.Output
	if !result.Success {
		content = "Error: " + result.Error
	}
	msg := entity.Message{
		Role:       entity.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}
	msg.Tokens = tokencount.CountMessage(msg)
	return msg
}

func toolSchemas(reg *tool.Registry) []llmbackend.ToolSchema {
	defs := reg.EnabledTools()
	out := make([]llmbackend.ToolSchema, 0, len(defs))
	for _, d := range defs {
		out = append(out, llmbackend.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return out
}

// IsErrorObservation reports whether a tool message's content marks a
// failure, the convention the ReAct engine uses to flag an Observation as
// an error.
func IsErrorObservation(content string) bool {
	return strings.HasPrefix(content, "Error:") || strings.HasPrefix(content, "Exception:")
}
