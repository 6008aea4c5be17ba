// Copyright 2026 NGOClaw Authors. All rights reserved.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/tool"
)

const implementationName = "agentrt"

// version is stamped into the MCP client handshake; overridden by the
// CLI's build-time ldflags.
var version = "dev"

// ServerHandle is a configured-but-not-yet-connected MCP server, the
// attach-as-toolset mode. The caller connects on first use and releases on
// run exit; nothing here dials a network or spawns a process until
// EnsureConnected is called.
type ServerHandle struct {
	config ServerConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *mcppkg.ClientSession
}

func (h *ServerHandle) Name() string { return h.config.Name }

// EnsureConnected connects the handle's transport if it isn't already
// connected. Safe to call repeatedly; idempotent once a session exists.
func (h *ServerHandle) EnsureConnected(ctx context.Context) (*mcppkg.ClientSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil {
		return h.session, nil
	}

	client := mcppkg.NewClient(&mcppkg.Implementation{Name: implementationName, Version: version}, nil)

	var session *mcppkg.ClientSession
	var err error
	switch h.config.Transport {
	case TransportStdio:
		cmd := buildCommand(h.config)
		session, err = client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	case TransportSSE:
		httpClient, hErr := buildHTTPClient(h.config)
		if hErr != nil {
			return nil, &entity.MCPError{ServerName: h.config.Name, URL: h.config.URL, Cause: hErr}
		}
		transport := &mcppkg.SSEClientTransport{Endpoint: h.config.URL, HTTPClient: httpClient}
		session, err = client.Connect(ctx, transport, nil)
	default:
		return nil, &entity.MCPError{ServerName: h.config.Name, Cause: fmt.Errorf("unknown transport %q", h.config.Transport)}
	}
	if err != nil {
		return nil, &entity.MCPError{ServerName: h.config.Name, URL: h.config.URL, Cause: err}
	}

	h.logger.Info("mcp server connected", zap.String("server", h.config.Name), zap.String("transport", string(h.config.Transport)))
	h.session = session
	return session, nil
}

// RegisterInto connects (if needed) and registers every tool the server
// exposes into reg, namespaced per ServerConfig.ToolPrefix.
func (h *ServerHandle) RegisterInto(ctx context.Context, reg *tool.Registry) ([]string, error) {
	session, err := h.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var registered []string
	for t, iterErr := range session.Tools(ctx, nil) {
		if iterErr != nil {
			return registered, &entity.MCPError{ServerName: h.config.Name, URL: h.config.URL, Cause: iterErr}
		}
		adapter := &mcpToolAdapter{cfg: h.config, session: session, tool: t}
		entry, err := reg.Register(adapter.handler(),
			tool.WithName(adapter.definitionName()),
			tool.WithDescription(t.Description),
			tool.WithGroup(h.config.Name),
			tool.WithSchema(adapter.schema()),
		)
		if err != nil {
			h.logger.Warn("skipping mcp tool due to registration error", zap.String("server", h.config.Name), zap.Error(err))
			continue
		}
		registered = append(registered, entry.Name)
	}
	return registered, nil
}

// Release closes the underlying session, if connected. Safe to call on an
// unconnected handle.
func (h *ServerHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	err := h.session.Close()
	h.session = nil
	return err
}

// Manager holds every configured MCP server handle for a run.
type Manager struct {
	mu      sync.Mutex
	logger  *zap.Logger
	handles map[string]*ServerHandle
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, handles: make(map[string]*ServerHandle)}
}

// Attach configures (but does not connect) a new server handle.
func (m *Manager) Attach(cfg ServerConfig) (*ServerHandle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handles[cfg.Name]; exists {
		return nil, fmt.Errorf("mcp server %q already attached", cfg.Name)
	}
	h := &ServerHandle{config: cfg, logger: m.logger}
	m.handles[cfg.Name] = h
	return h, nil
}

func (m *Manager) Get(name string) (*ServerHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	return h, ok
}

func (m *Manager) Handles() []*ServerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ServerHandle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	return out
}

// ReleaseAll closes every connected session — called on Agent Loop run
// exit, regardless of whether the run succeeded.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		if err := h.Release(); err != nil {
			m.logger.Warn("error releasing mcp server", zap.String("server", h.Name()), zap.Error(err))
		}
	}
}
