// Copyright 2026 NGOClaw Authors. All rights reserved.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentrt/agentrt/internal/agentloop"
	"github.com/agentrt/agentrt/internal/config"
	"github.com/agentrt/agentrt/internal/contextmgr"
	"github.com/agentrt/agentrt/internal/entity"
	"github.com/agentrt/agentrt/internal/llmbackend"
	"github.com/agentrt/agentrt/internal/llmbackend/openaicompat"
	"github.com/agentrt/agentrt/internal/logging"
	"github.com/agentrt/agentrt/internal/mcp"
	"github.com/agentrt/agentrt/internal/react"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/internal/usage"
	apperrors "github.com/agentrt/agentrt/pkg/errors"
	"github.com/agentrt/agentrt/pkg/safego"
)

const (
	cliName    = "agentrt"
	cliVersion = "0.1.0"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "agentrt — an AI-agent runtime (agent loop, context manager, ReAct workflow, MCP tools)",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml or $HOME/.agentrt/config.yaml)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDoctorCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	}
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "check that configuration loads and the model backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			fmt.Println("✓ configuration loaded")

			backend := openaicompat.New(openaicompat.Config{
				Name:                "default",
				BaseURL:             cfg.ModelBackend.BaseURL,
				APIKey:              cfg.ModelBackend.APIKey,
				AggressivenessLevel: cfg.Retry.Level,
				FailureThreshold:    cfg.Retry.FailureThreshold,
				SuccessThreshold:    cfg.Retry.SuccessThreshold,
				BreakerTimeout:      cfg.Retry.BreakerTimeout,
			}, zap.NewNop())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := backend.HealthCheck(ctx); err != nil {
				fmt.Printf("✗ model backend unreachable at %s: %v\n", cfg.ModelBackend.BaseURL, err)
				return err
			}
			fmt.Printf("✓ model backend reachable at %s\n", cfg.ModelBackend.BaseURL)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		task       string
		useReact   bool
		useStream  bool
		dumpConfig bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "drive one agent task turn (or a full ReAct workflow with --react) to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if task == "" && len(args) > 0 {
				task = args[0]
			}
			if task == "" {
				return apperrors.NewInvalidInputError("a task prompt is required, e.g. agentrt run \"summarize this repo\"")
			}
			if useReact && useStream {
				return apperrors.NewInvalidInputError("--react and --stream are mutually exclusive")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return &apperrors.AppError{Code: apperrors.CodeInvalidInput, Message: "loading configuration", Err: err}
			}

			logger, err := logging.New(logging.Config{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				OutputPath: cfg.Log.OutputPath,
			})
			if err != nil {
				return apperrors.NewInternalErrorWithCause("building logger", err)
			}
			defer logger.Sync() //nolint:errcheck

			if dumpConfig {
				dump, _ := json.MarshalIndent(cfg.Dump(), "", "  ")
				fmt.Println(string(dump))
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return apperrors.NewInternalErrorWithCause("wiring runtime components", err)
			}
			defer app.mcpManager.ReleaseAll()

			if useReact {
				return runReact(ctx, app, task)
			}
			if useStream {
				return runStreaming(ctx, app, task)
			}
			return runOnce(ctx, app, task)
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "task prompt (alternatively pass it as the trailing argument)")
	cmd.Flags().BoolVar(&useReact, "react", false, "drive the task through the ReAct Thought/Action/Observation workflow instead of a single agent-loop turn")
	cmd.Flags().BoolVar(&useStream, "stream", false, "stream the model's output as it arrives instead of printing it at the end")
	cmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved (secret-redacted) configuration before running")
	return cmd
}

// app bundles the wired-together runtime components a run/react invocation
// needs, so both code paths share one construction routine.
type app struct {
	loop       *agentloop.Loop
	registry   *tool.Registry
	mcpManager *mcp.Manager
	tracker    *usage.Tracker
	cfg        *config.Config
	logger     *zap.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := tool.NewRegistry()

	mcpManager := mcp.NewManager(logger)
	for _, sc := range cfg.MCP {
		serverCfg, err := toMCPServerConfig(sc)
		if err != nil {
			return nil, err
		}
		handle, err := mcpManager.Attach(serverCfg)
		if err != nil {
			return nil, fmt.Errorf("attaching mcp server %q: %w", sc.Name, err)
		}
		if _, err := handle.RegisterInto(ctx, registry); err != nil {
			logger.Warn("mcp server's tools unavailable this run", zap.String("server", sc.Name), zap.Error(err))
		}
	}

	backend := openaicompat.New(openaicompat.Config{
		Name:                "default",
		BaseURL:             cfg.ModelBackend.BaseURL,
		APIKey:              cfg.ModelBackend.APIKey,
		AggressivenessLevel: cfg.Retry.Level,
		FailureThreshold:    cfg.Retry.FailureThreshold,
		SuccessThreshold:    cfg.Retry.SuccessThreshold,
		BreakerTimeout:      cfg.Retry.BreakerTimeout,
	}, logger)

	strategy := buildStrategy(cfg, backend, logger)
	ctxMgr := contextmgr.NewManager(cfg.Context.ToCompactionConfig(), strategy, "")
	tracker := usage.NewTracker()

	loopCfg := agentloop.DefaultConfig()
	loopCfg.Model = cfg.ModelBackend.Model
	loopCfg.Temperature = cfg.ModelBackend.Temperature
	loopCfg.MaxTokens = cfg.ModelBackend.MaxTokens
	loopCfg.ToolRetryLevel = cfg.Retry.Level

	loop := agentloop.New(backend, registry, ctxMgr, tracker, logger, loopCfg)

	return &app{loop: loop, registry: registry, mcpManager: mcpManager, tracker: tracker, cfg: cfg, logger: logger}, nil
}

// buildStrategy is the factory the contextmgr package deliberately omits
// (its Manager doc notes several strategies need collaborators like an LLM
// Summarizer) — wiring it here keeps that collaborator choice at the
// application edge instead of baking a backend dependency into the package.
func buildStrategy(cfg *config.Config, backend llmbackend.Client, logger *zap.Logger) contextmgr.Strategy {
	preserve := cfg.Context.PreserveRecentTurns
	switch entity.CompactionStrategy(cfg.Context.Strategy) {
	case entity.StrategySlidingWindow:
		return contextmgr.NewSlidingWindowStrategy(preserve)
	case entity.StrategySummarizeOlder:
		return contextmgr.NewSummarizeOlderStrategy(nil, preserve, logger)
	case entity.StrategyImportance:
		return contextmgr.NewImportanceScoringStrategy(preserve, nil)
	case entity.StrategyHybrid:
		return contextmgr.NewHybridStrategy(
			contextmgr.NewSelectivePruningStrategy(preserve),
			contextmgr.NewSlidingWindowStrategy(preserve),
		)
	default:
		return contextmgr.NewSelectivePruningStrategy(preserve)
	}
}

func toMCPServerConfig(sc config.MCPServerConfig) (mcp.ServerConfig, error) {
	out := mcp.ServerConfig{
		Name:       sc.Name,
		Transport:  mcp.Transport(sc.Transport),
		Command:    sc.Command,
		Args:       sc.Args,
		Env:        sc.Env,
		URL:        sc.URL,
		ToolPrefix: sc.ToolPrefix,
	}
	if sc.Auth != nil {
		out.Auth = &mcp.AuthConfig{
			Key:        sc.Auth.Key,
			KeyEnv:     sc.Auth.KeyEnv,
			HeaderName: sc.Auth.HeaderName,
		}
	}
	return out, nil
}

func runOnce(ctx context.Context, a *app, task string) error {
	result, err := a.loop.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Println(result.Output)
	a.logger.Info("run complete",
		zap.Int64("prompt_tokens", result.Usage.PromptTokens),
		zap.Int64("completion_tokens", result.Usage.CompletionTokens),
		zap.Int64("total_tokens", result.Usage.TotalTokens),
	)
	return nil
}

func runStreaming(ctx context.Context, a *app, task string) error {
	deltas := make(chan llmbackend.StreamChunk, 16)
	done := make(chan struct{})
	safego.Go(a.logger, "stream-printer", func() {
		defer close(done)
		for chunk := range deltas {
			if chunk.DeltaText != "" {
				fmt.Print(chunk.DeltaText)
			}
		}
	})

	result, err := a.loop.RunStream(ctx, task, deltas)
	close(deltas)
	<-done
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Println()
	a.logger.Info("streaming run complete",
		zap.Int64("prompt_tokens", result.Usage.PromptTokens),
		zap.Int64("completion_tokens", result.Usage.CompletionTokens),
		zap.Int64("total_tokens", result.Usage.TotalTokens),
	)
	return nil
}

func runReact(ctx context.Context, a *app, task string) error {
	reactCfg := react.Config{
		ExposeReasoning:        a.cfg.React.ExposeReasoning,
		ReasoningPrefix:        a.cfg.React.ReasoningPrefix,
		ActionPrefix:           a.cfg.React.ActionPrefix,
		ObservationPrefix:      a.cfg.React.ObservationPrefix,
		FinalAnswerToolName:    a.cfg.React.FinalAnswerToolName,
		AutoCompactInWorkflow:  a.cfg.React.AutoCompactInWorkflow,
		CompactThresholdRatio:  a.cfg.React.CompactThresholdRatio,
		MaxConsecutiveThoughts: a.cfg.React.MaxConsecutiveThoughts,
		IncludeScratchpad:      a.cfg.React.IncludeScratchpad,
		ToolRetryCount:         a.cfg.React.ToolRetryCount,
		MaxIterations:          a.cfg.React.MaxIterations,
		TimeoutSeconds:         a.cfg.React.TimeoutSeconds,
		StepTimeoutSeconds:     a.cfg.React.StepTimeoutSeconds,
	}
	if reactCfg.MaxIterations == 0 {
		reactCfg.MaxIterations = 15
	}
	if reactCfg.FinalAnswerToolName == "" {
		reactCfg.FinalAnswerToolName = "final_answer"
	}

	hooks := react.Hooks{
		Thought: func(ctx context.Context, entry entity.ScratchpadEntry) {
			fmt.Printf("Thought: %s\n", entry.Content)
		},
		Action: func(ctx context.Context, entry entity.ScratchpadEntry) {
			fmt.Printf("Action: %s\n", entry.Content)
		},
		Observation: func(ctx context.Context, entry entity.ScratchpadEntry) {
			fmt.Printf("Observation: %s\n", entry.Content)
		},
	}

	wf, err := react.New(a.loop, reactCfg, hooks, a.logger)
	if err != nil {
		return fmt.Errorf("react: %w", err)
	}

	result, err := wf.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("react run: %w", err)
	}
	fmt.Println(result.Output)
	return nil
}
