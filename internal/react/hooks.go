// Copyright 2026 NGOClaw Authors. All rights reserved.
package react

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/entity"
)

// Hooks are optional callbacks fired at well-defined points in a workflow
// run. A nil field is simply skipped. Panics inside a hook are recovered
// and logged — a broken hook must never abort the workflow.
type Hooks struct {
	WorkflowStart    func(ctx context.Context)
	WorkflowComplete func(ctx context.Context, state entity.ReActState)
	WorkflowError    func(ctx context.Context, err error)

	StepStart    func(ctx context.Context, iteration int)
	StepComplete func(ctx context.Context, iteration int)
	StepError    func(ctx context.Context, iteration int, err error)

	IterationStart    func(ctx context.Context, iteration int)
	IterationComplete func(ctx context.Context, iteration int)

	Thought     func(ctx context.Context, entry entity.ScratchpadEntry)
	Action      func(ctx context.Context, entry entity.ScratchpadEntry)
	Observation func(ctx context.Context, entry entity.ScratchpadEntry)
	Compaction  func(ctx context.Context, result entity.CompactionResult)
}

// safeCall recovers a hook panic, logs it, and swallows it — the Go
// equivalent of "hook exceptions must not abort the workflow."
func safeCall(logger *zap.Logger, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("react hook panicked", zap.String("hook", name), zap.Any("panic", r))
		}
	}()
	fn()
}
