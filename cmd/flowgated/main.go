package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowgate/internal/app"
	"flowgate/internal/domain"
	"flowgate/internal/infra/config"
)

type rootOptions struct {
	configPath string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := rootOptions{}

	root := &cobra.Command{
		Use:   "flowgated",
		Short: "Tool-call router that discovers workflow webhook endpoints",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to config file (optional, env-only without it)")

	root.AddCommand(
		newServeCmd(&opts),
		newToolsCmd(&opts),
		newCallCmd(&opts),
		newValidateCmd(logger, &opts),
	)

	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the discovery index fresh and serve the operator endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := buildApp(opts.configPath)
			if err != nil {
				return err
			}
			return application.Serve(ctx)
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Discover and print the current tool name index",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp(opts.configPath)
			if err != nil {
				return err
			}
			if err := application.Cache.ForceRefresh(cmd.Context()); err != nil {
				return err
			}

			snapshot := application.Cache.Snapshot()
			names := make([]string, 0, len(snapshot.Index))
			for name := range snapshot.Index {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range application.Overrides.Names() {
				endpoint, _ := application.Overrides.Resolve(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(override)\n", name, endpoint.URL)
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, snapshot.Index[name].URL)
			}
			return nil
		},
	}
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Dispatch a single tool call and print the correlated result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp(opts.configPath)
			if err != nil {
				return err
			}

			arguments := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments must be valid JSON")
				}
				arguments = json.RawMessage(args[1])
			}

			messages := application.RunToolCalls(cmd.Context(), []domain.ToolCall{{
				CallID:    "call_" + uuid.NewString(),
				ToolName:  args[0],
				Arguments: arguments,
			}})

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(messages)
		},
	}
}

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without network I/O",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.NewLoader(logger).Load(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	}
}

func buildApp(configPath string) (*app.App, error) {
	cfg, err := config.NewLoader(zap.NewNop()).Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
