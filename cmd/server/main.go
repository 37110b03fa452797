/*
 * Copyright 2025 The servicemon Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/servicemon/servicemon/pkg/config"
	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/poller"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
	"github.com/servicemon/servicemon/pkg/server"
	"github.com/servicemon/servicemon/pkg/translog"
)

var (
	portFlag        int
	logFilePathFlag string
	configFlag      string
)

var rootCmd = &cobra.Command{
	Use:          "servicemon-server",
	Short:        "Service liveness monitoring server",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor server",
	Long: `Start the monitor server: listen for client sessions, poll every
registered service, and append status transitions to the log file.

Examples:
  servicemon-server run --port 5000 --log-file-path ./transitions.log
  servicemon-server run --config /etc/servicemon/server.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServer(cmd)
	},
}

func init() {
	runCmd.Flags().IntVar(&portFlag, "port", server.DefaultPort, "server port")
	runCmd.Flags().StringVar(&logFilePathFlag, "log-file-path", "./transitions.log", "path for the transition log file")
	runCmd.Flags().StringVar(&configFlag, "config", "", "path to server config file")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewComponent("server", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	transitions, err := translog.New(cfg.LogFilePath)
	if err != nil {
		return err
	}
	defer func() { _ = transitions.Close() }()

	broadcaster := server.NewBroadcaster(log)
	defer broadcaster.Close()

	reg := registry.New(translog.Multi(transitions, broadcaster), log)
	probes := probe.NewRegistry()

	engine := poller.New(&cfg.Poller, reg, probes, nil, log)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start polling engine: %w", err)
	}

	defer func() {
		if err := engine.Stop(context.Background()); err != nil {
			log.Error().Err(err).Msg("Polling engine shutdown failed")
		}
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind port %d: %w", cfg.Port, err)
	}

	return server.New(reg, probes, broadcaster, log).Serve(ctx, ln)
}

// loadConfig reads the optional config file, then lets explicit flags win.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*server.Config, error) {
	var cfg server.Config

	if configFlag != "" {
		if err := config.NewConfig(nil).LoadAndValidate(ctx, configFlag, &cfg); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("port") || cfg.Port == 0 {
		cfg.Port = portFlag
	}

	if cmd.Flags().Changed("log-file-path") || cfg.LogFilePath == "" {
		cfg.LogFilePath = logFilePathFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
