// Copyright 2026 NGOClaw Authors. All rights reserved.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"
)

type traceIDKey struct{}

// WithTraceID attaches a trace ID to ctx, generating one if traceID is
// empty. Every agent-loop run carries one so its log lines can be
// correlated across the model call, tool dispatch, and compaction steps.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = newTraceID()
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext extracts the trace ID set by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// WithTrace returns logger annotated with the ctx's trace_id field, or
// logger unchanged if ctx carries none.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		return logger.With(zap.String("trace_id", id))
	}
	return logger
}

func newTraceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
