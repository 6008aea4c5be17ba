// Copyright 2026 NGOClaw Authors. All rights reserved.
package mcp

import (
	"net/http"
	"os"
	"os/exec"
	"strings"
)

// headerRoundTripper injects the server's resolved auth header into every
// outgoing SSE request, adding a "Bearer " prefix to an Authorization value
// iff one isn't already present.
type headerRoundTripper struct {
	base        http.RoundTripper
	headerName  string
	headerValue string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.headerValue != "" && r.Header.Get(t.headerName) == "" {
		value := t.headerValue
		if strings.EqualFold(t.headerName, "Authorization") && !strings.HasPrefix(value, "Bearer ") {
			value = "Bearer " + value
		}
		r.Header.Set(t.headerName, value)
	}
	return t.base.RoundTrip(r)
}

// buildHTTPClient constructs the authenticated HTTP client an SSE transport
// connects through.
func buildHTTPClient(cfg ServerConfig) (*http.Client, error) {
	var headerValue, headerName string
	if cfg.Auth != nil {
		v, err := cfg.Auth.Resolve()
		if err != nil {
			return nil, err
		}
		headerValue = v
		headerName = cfg.Auth.headerName()
	}
	return &http.Client{
		Transport: &headerRoundTripper{
			base:        http.DefaultTransport,
			headerName:  headerName,
			headerValue: headerValue,
		},
	}, nil
}

// buildCommand constructs the child process a stdio server spawns.
func buildCommand(cfg ServerConfig) *exec.Cmd {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}
