// Copyright 2026 NGOClaw Authors. All rights reserved.
package openaicompat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
)

// Config configures one Client instance.
type Config struct {
	Name               string // backend name, used for circuit-breaker keying and logs
	BaseURL            string
	APIKey             string
	AggressivenessLevel int // 1-3, see llmbackend.RetryTable

	FailureThreshold int
	SuccessThreshold int
	BreakerTimeout   time.Duration

	// Breakers overrides the table the client's circuit breaker lives in;
	// nil means llmbackend.SharedBreakers, so every client in the process
	// that names the same backend shares one breaker.
	Breakers *llmbackend.Breakers
}

// Client is the concrete OpenAI-chat-completions-compatible Model Backend.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger

	breaker *llmbackend.CircuitBreaker
	retry   llmbackend.RetryPolicy
}

var _ llmbackend.Client = (*Client)(nil)

// New builds a Client with a tuned transport (dial/TLS/idle timeouts) and
// the circuit breaker registered under cfg.Name, which every client naming
// the same backend in the same Breakers table shares.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	breakers := cfg.Breakers
	if breakers == nil {
		breakers = llmbackend.SharedBreakers
	}

	return &Client{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Transport: transport},
		logger:  logger.With(zap.String("backend", cfg.Name)),
		breaker: breakers.Get(cfg.Name, func() *llmbackend.CircuitBreaker {
			return llmbackend.NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.BreakerTimeout)
		}),
		retry: llmbackend.PolicyForLevel(cfg.AggressivenessLevel),
	}
}

func (c *Client) buildRequest(req llmbackend.CompletionRequest) *wireRequest {
	wr := &wireRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFunc{
					Name:      tc.Name,
					Arguments: marshalArgs(tc.Arguments),
				},
			})
		}
		wr.Messages = append(wr.Messages, wm)
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  normalizeSchema(t.Parameters),
			},
		})
	}
	return wr
}

// Complete issues one non-streaming chat-completion call, retrying
// transient failures per the configured aggressiveness level and gating
// every attempt through the circuit breaker.
func (c *Client) Complete(ctx context.Context, req llmbackend.CompletionRequest) (llmbackend.CompletionResponse, error) {
	return withRetry(ctx, c.breaker, c.name, c.retry.ModelRetries, c.retry.BackoffMultiplier, func() (llmbackend.CompletionResponse, error) {
		return c.complete(ctx, req)
	})
}

func (c *Client) complete(ctx context.Context, req llmbackend.CompletionRequest) (llmbackend.CompletionResponse, error) {
	wr := c.buildRequest(req)
	body, err := json.Marshal(wr)
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}
	if err := c.statusError(resp.StatusCode, respBody); err != nil {
		return llmbackend.CompletionResponse{}, err
	}

	var wresp wireResponse
	if err := json.Unmarshal(respBody, &wresp); err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("parse response: %w", err)
	}
	if len(wresp.Choices) == 0 {
		return llmbackend.CompletionResponse{}, fmt.Errorf("empty response: no choices")
	}

	choice := wresp.Choices[0]
	out := llmbackend.CompletionResponse{
		Content:          choice.Message.Content,
		Model:            wresp.Model,
		PromptTokens:     wresp.Usage.PromptTokens,
		CompletionTokens: wresp.Usage.CompletionTokens,
		TotalTokens:      wresp.Usage.TotalTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := unmarshalArgs(tc.Function.Arguments)
		if err != nil {
			return llmbackend.CompletionResponse{}, fmt.Errorf("parse tool call arguments for %s: %w", tc.Function.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, entity.ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

// Stream issues a streaming chat-completion call. Retries apply to the
// initial connection only — once bytes start flowing, a stream failure is
// surfaced to the caller rather than silently restarted mid-stream.
func (c *Client) Stream(ctx context.Context, req llmbackend.CompletionRequest, deltas chan<- llmbackend.StreamChunk) (llmbackend.CompletionResponse, error) {
	return withRetry(ctx, c.breaker, c.name, c.retry.ModelRetries, c.retry.BackoffMultiplier, func() (llmbackend.CompletionResponse, error) {
		return c.stream(ctx, req, deltas)
	})
}

func (c *Client) stream(ctx context.Context, req llmbackend.CompletionRequest, deltas chan<- llmbackend.StreamChunk) (llmbackend.CompletionResponse, error) {
	wr := c.buildRequest(req)
	streamReq := wireStreamRequest{
		wireRequest:   wr,
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	}
	body, err := json.Marshal(streamReq)
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return llmbackend.CompletionResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if err := c.statusError(resp.StatusCode, respBody); err != nil {
			return llmbackend.CompletionResponse{}, err
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-done:
		}
	}()
	result, err := parseSSEStream(ctx, resp.Body, deltas, c.logger)
	close(done)
	return result, err
}

// HealthCheck issues a minimal request to confirm the backend is reachable,
// without going through the circuit breaker — a health probe's purpose is
// to observe the backend's real state. A 200, 401, or 403 all count as
// reachable: an auth rejection still proves something is answering at the
// configured base URL.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return nil
	}
	return c.statusError(resp.StatusCode, body)
}

// statusError converts a non-2xx response into the runtime's typed error
// taxonomy.
func (c *Client) statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &entity.AuthenticationError{Backend: c.name, Detail: string(body)}
	case http.StatusTooManyRequests:
		return &entity.RateLimitError{Backend: c.name}
	case http.StatusBadRequest:
		if isContextOverflowBody(body) {
			return &entity.ContextOverflowError{}
		}
	}
	retryable := status >= 500
	return &entity.ModelBackendError{Backend: c.name, StatusCode: status, Retryable: retryable, Detail: string(body)}
}

// isContextOverflowBody sniffs a 400 response body for the phrasing OpenAI-
// compatible endpoints use when a request exceeds the model's context
// window, so the Agent Loop can distinguish it from an ordinary bad request.
func isContextOverflowBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, phrase := range []string{"maximum context length", "context_length_exceeded", "too many tokens", "context window"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// withRetry gates fn through the circuit breaker and retries transient
// failures up to maxRetries times with exponential backoff, per the
// aggressiveness-level retry table.
func withRetry[T any](ctx context.Context, breaker *llmbackend.CircuitBreaker, name string, maxRetries int, backoffMultiplier float64, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if !breaker.Allow() {
			return zero, &entity.CircuitBreakerOpenError{Name: name, TimeUntilRetry: breaker.TimeUntilRetry().Seconds()}
		}

		result, err := fn()
		if err == nil {
			breaker.RecordSuccess()
			return result, nil
		}

		breaker.RecordFailure()
		lastErr = err
		if !isRetryable(err) || attempt == maxRetries {
			break
		}

		backoff := time.Duration(math.Pow(backoffMultiplier, float64(attempt)) * float64(time.Second))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	var modelErr *entity.ModelBackendError
	if errors.As(err, &modelErr) {
		return modelErr.Retryable
	}
	var rateLimitErr *entity.RateLimitError
	return errors.As(err, &rateLimitErr)
}
