// Copyright 2026 NGOClaw Authors. All rights reserved.
package tool

import (
	"context"
	"testing"

	"github.com/agentrt/agentrt/internal/entity"
)

func add(ctx context.Context, args map[string]any) (entity.ToolResult, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return entity.ToolResult{Success: true, Output: fmt64(a + b)}, nil
}

func fmt64(f float64) string {
	if f == float64(int(f)) {
		return intToString(int(f))
	}
	return "non-integer"
}

func intToString(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestRegisterDerivesNameByReflection(t *testing.T) {
	r := NewRegistry()
	entry, err := r.Register(add)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Name != "add" {
		t.Fatalf("expected reflected name %q, got %q", "add", entry.Name)
	}
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(add, WithName("sum")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(add, WithName("sum")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestFrozenRegistryRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	if _, err := r.Register(add); err == nil {
		t.Fatal("expected registration on a frozen registry to fail")
	}
}

func TestGroupToggleDisablesEveryMember(t *testing.T) {
	r := NewRegistry()
	r.Register(add, WithName("add"), WithGroup("math"))
	r.Register(add, WithName("sub"), WithGroup("math"))
	r.Register(add, WithName("search"), WithGroup("web"))

	r.SetGroupEnabled("math", false)

	enabled := r.EnabledTools()
	if len(enabled) != 1 || enabled[0].Name != "search" {
		t.Fatalf("expected only search enabled, got %+v", enabled)
	}
}

func TestExecuteDispatchesRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	r.Register(add, WithName("add"))

	result := r.Execute(context.Background(), entity.ToolCall{
		ID:        "call-1",
		Name:      "add",
		Arguments: map[string]any{"a": 2.0, "b": 3.0},
	})
	if !result.Success || result.Output != "5" {
		t.Fatalf("expected successful result of 5, got %+v", result)
	}
	if result.ToolCallID != "call-1" || result.ToolName != "add" {
		t.Fatalf("expected result stamped with call id and tool name, got %+v", result)
	}
}

func TestExecuteUnknownToolReturnsFailureNotError(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), entity.ToolCall{ID: "c1", Name: "missing"})
	if result.Success {
		t.Fatal("expected failure for unregistered tool")
	}
	if result.Error == "" {
		t.Fatal("expected an error message")
	}
}
