// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal() can be
// called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Cloud.Model = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

// TestConfig_SetGlobalBeforeFirstAccess checks that an explicitly set
// config is not replaced by the lazy load.
func TestConfig_SetGlobalBeforeFirstAccess(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	custom := Default()
	custom.Cloud.Model = "custom-model"
	SetGlobal(custom)

	require.Equal(t, "custom-model", Global().Cloud.Model)
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	require.Equal(t, "gpt-4o-mini", cfg.Cloud.Model)
	require.InDelta(t, 0.7, cfg.Cloud.Temperature, 1e-9)
	require.Equal(t, DriverFile, cfg.Storage.Driver)
	require.Equal(t, "turochat", cfg.Storage.Namespace)
	require.Equal(t, 30, cfg.Session.TitleMaxRunes)
	require.False(t, cfg.Session.StrictLoad)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"invalid driver", func(c *Config) { c.Storage.Driver = "floppy" }, "storage.driver"},
		{"invalid base url", func(c *Config) { c.Cloud.BaseURL = "not a url" }, "cloud.base_url"},
		{"temperature too high", func(c *Config) { c.Cloud.Temperature = 2.5 }, "cloud.temperature"},
		{"negative timeout", func(c *Config) { c.Cloud.TimeoutSecs = -1 }, "cloud.timeout_secs"},
		{"namespace with slash", func(c *Config) { c.Storage.Namespace = "a/b" }, "storage.namespace"},
		{"invalid log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"invalid log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"invalid theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			require.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestConfig_SaveAndLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Cloud.Model = "gpt-4o"
	cfg.Storage.Driver = DriverSQLite
	cfg.Session.StrictLoad = true
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", loaded.Cloud.Model)
	require.Equal(t, DriverSQLite, loaded.Storage.Driver)
	require.True(t, loaded.Session.StrictLoad)
	require.InDelta(t, 0.7, loaded.Cloud.Temperature, 1e-9)
}

func TestConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\ndriver = \"BOLT\"\n"), 0600))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, DriverBolt, loaded.Storage.Driver)
	require.Equal(t, "gpt-4o-mini", loaded.Cloud.Model)
	require.Equal(t, "turochat", loaded.Storage.Namespace)
}

func TestConfig_SaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Log.Level = "debug"
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.Log.Level)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("TUROCHAT_MODEL", "gpt-4.1")
	t.Setenv("TUROCHAT_STORAGE_DRIVER", "redis")
	t.Setenv("TUROCHAT_REDIS_DB", "3")
	t.Setenv("TUROCHAT_STRICT_LOAD", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "gpt-4.1", cfg.Cloud.Model)
	require.Equal(t, DriverRedis, cfg.Storage.Driver)
	require.Equal(t, 3, cfg.Storage.RedisDB)
	require.True(t, cfg.Session.StrictLoad)
}

func TestConfig_StoragePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Default()
	p, err := cfg.StoragePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".turochat", "data"), p)

	cfg.Storage.Driver = DriverSQLite
	p, err = cfg.StoragePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".turochat", "turochat.db"), p)

	cfg.Storage.Path = "/tmp/custom.db"
	p, err = cfg.StoragePath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.db", p)
}
