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

package server

import (
	"fmt"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/poller"
)

const (
	// DefaultPort is the server's default listen port.
	DefaultPort = 5000

	defaultLogFilePath = "./transitions.log"
)

// Config represents monitor server configuration.
type Config struct {
	Port        int            `json:"port"`
	LogFilePath string         `json:"log_file_path"`
	Poller      poller.Config  `json:"poller"`
	Logging     *logger.Config `json:"logging,omitempty"`
}

// Validate implements config.Validator and applies defaults.
func (c *Config) Validate() error {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, c.Port)
	}

	if c.LogFilePath == "" {
		c.LogFilePath = defaultLogFilePath
	}

	return c.Poller.Validate()
}
