// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the partsbot command: the refrigerator and
// dishwasher parts chat service and a one-shot question mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/config"
)

const serviceName = "partsbot"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "PartSelect refrigerator and dishwasher parts assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to config file (default ./configs/config.yaml or ./config.yaml)")

	root.AddCommand(newServeCommand(opts), newAskCommand(opts), newVersionCommand())
	return root
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		port        int
		watchConfig bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, root.configPath, watchConfig)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload the log level when the config file changes")
	return cmd
}

func newAskCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the markdown reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			// One-shot runs have nobody to leave feedback.
			cfg.Transcript.Enabled = false

			logger, _, err := initializeLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			app, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return ask(cmd.Context(), app, args[0], cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, version)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, configPath string, watch bool) error {
	logger, level, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logConfig(logger, cfg)
	setGinMode(cfg)

	app, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer app.Close()

	if watch {
		watchLogLevel(configPath, level, logger)
	}

	srv, err := app.newServer(cfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
