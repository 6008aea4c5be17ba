// Copyright 2026 NGOClaw Authors. All rights reserved.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tool"
)

// mcpToolAdapter wraps one MCP tool behind our HandlerFunc contract, and
// derives the tool.Definition the registry and model backend see.
type mcpToolAdapter struct {
	cfg     ServerConfig
	session *mcppkg.ClientSession
	tool    *mcppkg.Tool
}

func (a *mcpToolAdapter) definitionName() string {
	return sanitizeName(a.cfg.prefixedName(a.tool.Name))
}

func (a *mcpToolAdapter) schema() map[string]any {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	if a.tool.InputSchema != nil {
		if b, err := json.Marshal(a.tool.InputSchema); err == nil {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil && m != nil {
				for k, v := range m {
					params[k] = v
				}
			}
		}
	}
	sanitizeSchema(params)
	return params
}

func (a *mcpToolAdapter) handler() tool.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
		if args == nil {
			args = map[string]any{}
		}
		res, err := a.session.CallTool(ctx, &mcppkg.CallToolParams{Name: a.tool.Name, Arguments: args})
		if err != nil {
			return entity.ToolResult{}, fmt.Errorf("mcp server %q: %w", a.cfg.Name, err)
		}

		var texts []string
		for _, c := range res.Content {
			if tc, ok := c.(*mcppkg.TextContent); ok {
				texts = append(texts, tc.Text)
			}
		}

		return entity.ToolResult{
			Success: !res.IsError,
			Output:  strings.Join(texts, "\n"),
			Metadata: map[string]any{
				"server":     a.cfg.Name,
				"structured": res.StructuredContent,
			},
		}, nil
	}
}

// sanitizeName strips characters OpenAI-style tool names reject.
func sanitizeName(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

// sanitizeSchema normalizes a JSON schema in-place so every object schema
// carries a properties map and every array schema carries an items schema,
// recursing through properties/items and the oneOf/anyOf/allOf composition
// keywords — model backends reject a tool schema missing these.
func sanitizeSchema(s map[string]any) {
	hasType := func(v any, want string) bool {
		switch tt := v.(type) {
		case string:
			return tt == want
		case []any:
			for _, x := range tt {
				if xs, ok := x.(string); ok && xs == want {
					return true
				}
			}
		}
		return false
	}

	if hasType(s["type"], "object") {
		if _, ok := s["properties"].(map[string]any); !ok {
			s["properties"] = map[string]any{}
		}
	}
	if hasType(s["type"], "array") {
		if _, ok := s["items"].(map[string]any); !ok {
			s["items"] = map[string]any{"type": "string"}
		}
	}
	if props, ok := s["properties"].(map[string]any); ok {
		for _, v := range props {
			if m, ok := v.(map[string]any); ok {
				sanitizeSchema(m)
			}
		}
	}
	if it, ok := s["items"].(map[string]any); ok {
		sanitizeSchema(it)
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if arr, ok := s[key].([]any); ok {
			for _, v := range arr {
				if m, ok := v.(map[string]any); ok {
					sanitizeSchema(m)
				}
			}
		}
	}
	if req, ok := s["required"].([]any); ok {
		out := make([]string, 0, len(req))
		for _, x := range req {
			if xs, ok := x.(string); ok {
				out = append(out, xs)
			}
		}
		s["required"] = out
	}
}
