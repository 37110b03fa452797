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

// Package config loads JSON configuration files and validates them.
package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/servicemon/servicemon/pkg/logger"
)

var (
	errLoadConfigFailed = errors.New("failed to load configuration")
	errInvalidConfigPtr = errors.New("config must be a non-nil pointer")
)

// Validator allows configuration structs to self-validate and apply defaults.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	loader Loader
	logger logger.Logger
}

// NewConfig initializes a new Config instance with a file loader.
// If log is nil, a no-op logger is used.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{
		loader: &FileLoader{},
		logger: log,
	}
}

// LoadAndValidate loads configuration from path into dst and, if dst
// implements Validator, validates it.
func (c *Config) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errInvalidConfigPtr
	}

	if err := c.loader.Load(ctx, path, dst); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
	}

	if validator, ok := dst.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
		}
	}

	c.logger.Debug().Str("path", path).Msg("Loaded configuration")

	return nil
}
