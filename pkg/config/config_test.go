package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/cabinetdb/pkg/engine"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data/cabinet.kch", config.Database.Path)
	assert.Equal(t, []string{"writer", "create"}, config.Database.Modes)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.Equal(t, "auto", config.Security.APIKey)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // hex encoded

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("keys are unique", func(t *testing.T) {
		a, err := GenerateSecureKey(16)
		require.NoError(t, err)
		b, err := GenerateSecureKey(16)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestSaveAndLoadConfig(t *testing.T) {
	tests := map[string]string{
		"yaml": "config.yaml",
		"toml": "config.toml",
	}

	for name, file := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "nested", file)

			config := DefaultConfig()
			config.Database.Path = "/srv/cabinet/words.kct"
			config.Database.Compressor = "zstd"
			config.Database.PageCacheSize = 1 << 20
			config.Port = 9090
			config.Security.APIKey = "secret"

			require.NoError(t, SaveConfig(config, configPath))

			info, err := os.Stat(configPath)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := LoadConfig(configPath)
			require.NoError(t, err)
			assert.Equal(t, config, loaded)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "does not exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [unterminated"), 0600))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: 7000\n"), 0600))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, "./data/cabinet.kch", config.Database.Path)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dbPath := "/custom/data/store.kct"

	config, err := BootstrapConfig(configPath, dbPath)
	require.NoError(t, err)

	assert.Equal(t, dbPath, config.Database.Path)
	assert.Equal(t, 8080, config.Port)
	assert.NotEqual(t, "auto", config.Security.APIKey)
	_, err = hex.DecodeString(config.Security.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestBootstrapConfigRejectsUnknownType(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	_, err := BootstrapConfig(configPath, "/data/store.sqlite")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, ConfigExists(configPath))
}

func TestConfigDescriptor(t *testing.T) {
	config := DefaultConfig()
	config.Database.Path = "/data/cabinet.kct"
	config.Database.Modes = []string{"reader", "nolock"}
	config.Database.Options = "lc"
	config.Database.PageSize = 4096
	config.Database.MemoryMapSize = 1 << 24

	desc, err := config.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, engine.FileTree, desc.Type)
	assert.Equal(t, "/data/cabinet.kct", desc.Path)
	assert.Equal(t, engine.Reader|engine.NoLock, desc.Mode)
	assert.Equal(t, map[Argument]string{
		ArgOptions:       "lc",
		ArgPageSize:      "4096",
		ArgMemoryMapSize: "16777216",
	}, desc.Args)
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(c *Config)
		errIs  error
		errMsg string
	}{
		"port out of range": {
			mutate: func(c *Config) { c.Port = 70000 },
			errMsg: "out of range",
		},
		"bad log level": {
			mutate: func(c *Config) { c.Logging.Level = "chatty" },
			errMsg: "logging level",
		},
		"bad log format": {
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			errMsg: "unknown log format",
		},
		"missing path": {
			mutate: func(c *Config) { c.Database.Path = "" },
			errMsg: "path is required",
		},
		"unknown mode": {
			mutate: func(c *Config) { c.Database.Modes = []string{"writer", "sideways"} },
			errMsg: "unknown mode",
		},
		"unknown option": {
			mutate: func(c *Config) { c.Database.Options = "sx" },
			errMsg: "unknown option",
		},
		"argument not supported by type": {
			mutate: func(c *Config) { c.Database.PageCacheSize = 1024 },
			errIs:  ErrUnsupportedArgument,
		},
		"memory database with file arguments": {
			mutate: func(c *Config) {
				c.Database.Path = "*"
				c.Database.MemoryMapSize = 1024
			},
			errIs: ErrUnsupportedArgument,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "cabinet")
	assert.Contains(t, path, ".yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()

	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	require.NoError(t, os.WriteFile(existingPath, []byte("test"), 0644))

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := &Config{
		Database: Database{
			Path:       "/test/data.kch",
			Compressor: "snappy",
			Buckets:    1024,
		},
		Port: 9999,
		Bind: "localhost",
		Security: Security{
			APIKey: "api-key-789",
		},
		Logging: Logging{
			Level: "warn",
		},
	}

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "page_size")

	var unmarshalled Config
	require.NoError(t, yaml.Unmarshal(data, &unmarshalled))
	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	err := SaveConfig(DefaultConfig(), filepath.Join(blocker, "sub", "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
