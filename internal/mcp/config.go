// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package mcp attaches external Model Context Protocol tool-servers to the
// Tool Registry, over stdio (child process) or SSE/streamable-HTTP
// transports.
package mcp

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Transport names the wire transport a ServerConfig connects over.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
)

// AuthConfig resolves the credential attached to outgoing requests for an
// SSE server. Resolution order: KeyEnv (required — error if unset) takes
// precedence over Key (a literal value, or a "${VAR}" reference expanded
// against the process environment).
type AuthConfig struct {
	KeyEnv     string
	Key        string
	HeaderName string // defaults to "Authorization"
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve returns the credential value to send.
func (a AuthConfig) Resolve() (string, error) {
	if a.KeyEnv != "" {
		v := os.Getenv(a.KeyEnv)
		if v == "" {
			return "", fmt.Errorf("mcp auth: env var %q referenced by key_env is not set", a.KeyEnv)
		}
		return v, nil
	}
	if a.Key != "" {
		return expandEnvRefs(a.Key), nil
	}
	return "", nil
}

func expandEnvRefs(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func (a AuthConfig) headerName() string {
	if a.HeaderName != "" {
		return a.HeaderName
	}
	return "Authorization"
}

// ServerConfig describes one MCP server to attach.
type ServerConfig struct {
	Name      string
	Transport Transport

	Command string // stdio
	Args    []string
	Env     map[string]string

	URL string // sse

	Auth *AuthConfig

	ToolPrefix string
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("mcp server config requires a name")
	}
	switch c.Transport {
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("mcp server %q: stdio transport requires a command", c.Name)
		}
	case TransportSSE:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("mcp server %q: sse transport requires a url", c.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

// prefixedName namespaces a server-reported tool name by ToolPrefix, when
// set.
func (c ServerConfig) prefixedName(toolName string) string {
	if c.ToolPrefix == "" {
		return toolName
	}
	return c.ToolPrefix + "_" + toolName
}
