// Copyright 2026 NGOClaw Authors. All rights reserved.
package entity

import (
	"fmt"
	"regexp"
)

// AuthenticationError signals the model backend rejected our credentials.
type AuthenticationError struct {
	Backend string
	Detail  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for backend %q: %s", e.Backend, e.Detail)
}

// RateLimitError signals the backend asked us to back off.
type RateLimitError struct {
	Backend    string
	RetryAfter float64 // seconds; 0 = unspecified
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by backend %q, retry after %.1fs", e.Backend, e.RetryAfter)
}

// ModelBackendError wraps a non-2xx response from the model backend.
type ModelBackendError struct {
	Backend    string
	StatusCode int
	Retryable  bool
	Detail     string
}

func (e *ModelBackendError) Error() string {
	return fmt.Sprintf("model backend %q returned status %d: %s", e.Backend, e.StatusCode, e.Detail)
}

// ContextOverflowError signals the conversation exceeded the model's context
// window. CompactionAttempted is true when the overflow persisted after the
// Agent Loop had already compacted once and retried.
type ContextOverflowError struct {
	Current              int
	Max                  int
	CompactionAttempted bool
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("context overflow: %d tokens exceeds max %d (compaction attempted: %v)",
		e.Current, e.Max, e.CompactionAttempted)
}

// secretKeyPattern matches argument keys likely to hold a credential.
var secretKeyPattern = regexp.MustCompile(`(?i)key|secret|token|password|auth`)

// ToolExecutionError wraps a failed tool call. Args values whose keys look
// like credentials are redacted before the error is ever formatted or logged.
type ToolExecutionError struct {
	ToolName string
	Args     map[string]any
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed with args %v: %v", e.ToolName, RedactArgs(e.Args), e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// RedactArgs returns a copy of args with credential-shaped keys replaced by
// "[REDACTED]", safe to include in logs or error strings.
func RedactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if secretKeyPattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

// MCPError wraps a failure talking to an MCP server.
type MCPError struct {
	ServerName string
	URL        string
	Cause      error
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp server %q (%s): %v", e.ServerName, e.URL, e.Cause)
}

func (e *MCPError) Unwrap() error { return e.Cause }

// TimeoutError signals a blocking operation exceeded its deadline.
type TimeoutError struct {
	Operation      string
	TimeoutSeconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %.1fs", e.Operation, e.TimeoutSeconds)
}

// ConfigurationError signals an invalid or missing configuration value.
type ConfigurationError struct {
	ConfigKey string
	Expected  string
	Actual    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: expected %s, got %q", e.ConfigKey, e.Expected, e.Actual)
}

// CircuitBreakerOpenError signals a call was rejected because the circuit for
// a backend is open.
type CircuitBreakerOpenError struct {
	Name            string
	TimeUntilRetry float64 // seconds
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %q, retry in %.1fs", e.Name, e.TimeUntilRetry)
}

// MaxIterationsError signals a ReAct run or agent loop hit its iteration cap
// without producing a final answer.
type MaxIterationsError struct {
	MaxIterations int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded max iterations (%d) without a final answer", e.MaxIterations)
}
