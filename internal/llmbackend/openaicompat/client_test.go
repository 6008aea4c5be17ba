// Copyright 2026 NGOClaw Authors. All rights reserved.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
)

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := wireResponse{
			Model: "gpt-test",
			Choices: []wireChoice{{
				Message: wireMessage{
					Role: "assistant",
					ToolCalls: []wireToolCall{{
						ID:       "call-1",
						Type:     "function",
						Function: wireToolCallFunc{Name: "add", Arguments: `{"a":2,"b":3}`},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: wireUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, APIKey: "sk-test", Breakers: llmbackend.NewBreakers()}, nil)
	out, err := c.Complete(context.Background(), llmbackend.CompletionRequest{
		Model:    "gpt-test",
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "add 2 and 3"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "add" {
		t.Fatalf("expected one parsed tool call, got %+v", out.ToolCalls)
	}
	if out.TotalTokens != 15 {
		t.Fatalf("expected usage to be parsed, got %+v", out)
	}
}

func TestCompleteAuthErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, APIKey: "bad-key", AggressivenessLevel: 3, Breakers: llmbackend.NewBreakers()}, nil)
	_, err := c.Complete(context.Background(), llmbackend.CompletionRequest{Model: "gpt-test"})
	if err == nil {
		t.Fatal("expected an authentication error")
	}
	var authErr *entity.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *entity.AuthenticationError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call (auth errors are not retryable), got %d", calls)
	}
}

func TestCompleteServerErrorIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(wireResponse{
			Choices: []wireChoice{{Message: wireMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, APIKey: "sk-test", AggressivenessLevel: 2, Breakers: llmbackend.NewBreakers()}, nil)
	out, err := c.Complete(context.Background(), llmbackend.CompletionRequest{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if out.Content != "ok" {
		t.Fatalf("expected content 'ok', got %q", out.Content)
	}
	if calls < 2 {
		t.Fatalf("expected at least 2 calls (one retry), got %d", calls)
	}
}
