package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicemon/servicemon/pkg/models"
)

type testConfig struct {
	Name     string          `json:"name"`
	Interval models.Duration `json:"interval"`

	validateErr error
}

func (c *testConfig) Validate() error {
	if c.validateErr != nil {
		return c.validateErr
	}

	if c.Name == "" {
		c.Name = "default"
	}

	return nil
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempConfig(t, `{"name":"monitor","interval":"30s"}`)

	var cfg testConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Name)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Interval))
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"interval":"1m"}`)

	var cfg testConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "default", cfg.Name)
}

func TestLoadAndValidateErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		var cfg testConfig

		err := NewConfig(nil).LoadAndValidate(context.Background(), "/nonexistent/config.json", &cfg)
		assert.ErrorIs(t, err, errLoadConfigFailed)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeTempConfig(t, `{not json`)

		var cfg testConfig

		err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
		assert.ErrorIs(t, err, errLoadConfigFailed)
	})

	t.Run("validation failure", func(t *testing.T) {
		path := writeTempConfig(t, `{"name":"monitor"}`)

		wantErr := errors.New("bad config")
		cfg := testConfig{validateErr: wantErr}

		err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("non-pointer destination", func(t *testing.T) {
		err := NewConfig(nil).LoadAndValidate(context.Background(), "ignored", testConfig{})
		assert.ErrorIs(t, err, errInvalidConfigPtr)
	})
}
