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
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/servicemon/servicemon/pkg/client"
	"github.com/servicemon/servicemon/pkg/logger"
)

var (
	serverIPFlag       string
	serverPortFlag     int
	requestTimeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "servicemon-client",
	Short:        "Interactive client for the service monitor",
	SilenceUsage: true,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a monitor server and start an interactive session",
	Long: `Open an interactive command session against a monitor server.

Commands in the session:
  add <id> <target> [probe-kind] [interval]
                                   register a service (default probe: port,
                                   default cadence: server poll interval)
  remove <id>                      stop monitoring a service
  status <id>                      show one service's cached status
  list                             show all monitored services
  suspend <id> <duration>          pause probing through a maintenance window
  resume <id>                      end a maintenance window early
  watch / unwatch                  toggle live status-transition events
  quit                             end the session

Example:
  servicemon-client connect --server-ip 127.0.0.1 --server-port 5000`,
	RunE: func(*cobra.Command, []string) error {
		return runConnect()
	},
}

func init() {
	connectCmd.Flags().StringVar(&serverIPFlag, "server-ip", "", "monitoring server IP")
	connectCmd.Flags().IntVar(&serverPortFlag, "server-port", 0, "monitoring server port")
	connectCmd.Flags().DurationVar(&requestTimeoutFlag, "request-timeout", client.DefaultRequestTimeout, "per-request response timeout")

	_ = connectCmd.MarkFlagRequired("server-ip")
	_ = connectCmd.MarkFlagRequired("server-port")

	rootCmd.AddCommand(connectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runConnect() error {
	log, err := logger.NewComponent("client", &logger.Config{Level: "warn", Output: "stderr"})
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(serverIPFlag, strconv.Itoa(serverPortFlag))

	fmt.Println("Connecting to server...")

	session := client.NewInteractive(addr, requestTimeoutFlag, os.Stdin, os.Stdout, log)
	if err := session.Run(); err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	return nil
}
