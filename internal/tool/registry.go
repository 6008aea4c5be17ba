// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package tool implements the Tool Registry: a frozen-per-run mapping of
// tool name to callable, description, and group, driving the Agent Loop's
// tool dispatch and the model-facing tool schema list.
package tool

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/agentrt/agentrt/internal/entity"
)

// HandlerFunc is the callable backing one registered tool.
type HandlerFunc func(ctx context.Context, args map[string]any) (entity.ToolResult, error)

// Definition describes one tool as the model backend sees it.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"parameters"`
	Group       string         `json:"group,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// Entry is one registered tool plus its handler.
type Entry struct {
	Definition
	Handler HandlerFunc
}

// Option customizes a Register call. Only the name has a default, the
// handler's function name found by reflection; description, group and
// schema stay empty unless an Option sets them.
type Option func(*Entry)

func WithName(name string) Option { return func(e *Entry) { e.Name = name } }
func WithDescription(desc string) Option {
	return func(e *Entry) { e.Description = desc }
}
func WithGroup(group string) Option { return func(e *Entry) { e.Group = group } }
func WithSchema(schema map[string]any) Option {
	return func(e *Entry) { e.Schema = schema }
}
func WithEnabled(enabled bool) Option { return func(e *Entry) { e.Enabled = enabled } }

// Registry is a name -> {callable, description, group, enabled} mapping.
// It is frozen for the duration of a single agent-loop run; Register after
// Freeze returns an error rather than silently mutating a running tool set.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Entry
	order  []string
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Entry)}
}

// Register adds handler under a name derived by reflection unless WithName
// overrides it.
func (r *Registry) Register(handler HandlerFunc, opts ...Option) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil, fmt.Errorf("tool registry is frozen for this run")
	}

	entry := &Entry{
		Definition: Definition{
			Name:    funcName(handler),
			Enabled: true,
		},
		Handler: handler,
	}
	for _, opt := range opts {
		opt(entry)
	}
	if entry.Name == "" {
		return nil, fmt.Errorf("tool registration requires a name")
	}
	if _, exists := r.tools[entry.Name]; exists {
		return nil, fmt.Errorf("tool %q already registered", entry.Name)
	}

	r.tools[entry.Name] = entry
	r.order = append(r.order, entry.Name)
	return entry, nil
}

func funcName(fn HandlerFunc) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		full = full[idx+1:]
	}
	return strings.TrimSuffix(full, "-fm")
}

// Unregister removes a tool. Fails while the registry is frozen.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("tool registry is frozen for this run")
	}
	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %q not found", name)
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns every registered tool's definition, in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// EnabledTools returns the subset of List currently enabled.
func (r *Registry) EnabledTools() []Definition {
	all := r.List()
	out := make([]Definition, 0, len(all))
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// SetEnabled toggles one tool. Allowed even while frozen — enable/disable is
// not the same as mutating the tool set's membership.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q not found", name)
	}
	e.Enabled = enabled
	return nil
}

// SetGroupEnabled toggles every tool sharing group together.
func (r *Registry) SetGroupEnabled(group string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.tools {
		if e.Group == group {
			e.Enabled = enabled
		}
	}
}

// Freeze locks the registry's membership for the duration of a run.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Unfreeze releases the lock once a run completes.
func (r *Registry) Unfreeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = false
}

// Execute dispatches call to its registered handler, translating an unknown
// tool name or handler error into a failed ToolResult rather than a Go
// error — tool failures are data the model reasons about, not exceptions
// that abort the run.
func (r *Registry) Execute(ctx context.Context, call entity.ToolCall) entity.ToolResult {
	entry, ok := r.Get(call.Name)
	if !ok {
		return entity.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Success:    false,
			Error:      fmt.Sprintf("tool %q is not registered", call.Name),
		}
	}
	if !entry.Enabled {
		return entity.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Success:    false,
			Error:      fmt.Sprintf("tool %q is disabled", call.Name),
		}
	}

	result, err := entry.Handler(ctx, call.Arguments)
	result.ToolCallID = call.ID
	result.ToolName = call.Name
	if err != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = (&entity.ToolExecutionError{ToolName: call.Name, Args: call.Arguments, Cause: err}).Error()
		}
	}
	return result
}
