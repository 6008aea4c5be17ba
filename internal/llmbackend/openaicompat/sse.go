// Copyright 2026 NGOClaw Authors. All rights reserved.
package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
)

var errIdleTimeout = errors.New("openaicompat: SSE read idle timeout")

// idleTimeoutReader applies a per-Read deadline, so a connection that goes
// silent mid-stream surfaces as an error instead of hanging forever.
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *idleTimeoutReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// parseSSEStream reads a "data: " framed chat-completions stream, emitting
// incremental chunks on deltas and assembling the final response once the
// stream ends — either via a finish_reason, a "[DONE]" sentinel, or the
// connection closing.
func parseSSEStream(ctx context.Context, reader io.Reader, deltas chan<- llmbackend.StreamChunk, logger *zap.Logger) (llmbackend.CompletionResponse, error) {
	const idleTimeout = 60 * time.Second
	tReader := &idleTimeoutReader{r: reader, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	toolCalls := make(map[int]*toolCallAccumulator)
	var model string
	var usage wireUsage
	var finishReason string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return llmbackend.CompletionResponse{}, ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("skipping unparseable SSE chunk", zap.Error(err))
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			deltas <- llmbackend.StreamChunk{DeltaText: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := toolCalls[tc.Index]
			if !ok {
				acc = &toolCallAccumulator{}
				toolCalls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
			deltas <- llmbackend.StreamChunk{FinishReason: finishReason}
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, errIdleTimeout) {
			if content.Len() == 0 && len(toolCalls) == 0 {
				return llmbackend.CompletionResponse{}, fmt.Errorf("stream stalled: no data for %v", idleTimeout)
			}
			logger.Warn("returning partial response after SSE idle timeout")
		} else {
			return llmbackend.CompletionResponse{}, fmt.Errorf("SSE scan error: %w", err)
		}
	}

	resp := llmbackend.CompletionResponse{
		Content:          content.String(),
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}

	for i := 0; i < len(toolCalls); i++ {
		acc, ok := toolCalls[i]
		if !ok {
			continue
		}
		args, err := unmarshalArgs(acc.args.String())
		if err != nil {
			logger.Warn("failed to parse streamed tool call arguments", zap.String("tool", acc.name), zap.Error(err))
			continue
		}
		tc := entity.ToolCallRequest{ID: acc.id, Name: acc.name, Arguments: args}
		resp.ToolCalls = append(resp.ToolCalls, tc)
		deltas <- llmbackend.StreamChunk{DeltaTool: &tc}
	}

	return resp, nil
}
