package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/log"
)

// Config represents the CabinetDB configuration
type Config struct {
	Database Database `yaml:"database" toml:"database"`
	Port     int      `yaml:"port" toml:"port"`
	Bind     string   `yaml:"bind" toml:"bind"`
	Security Security `yaml:"security" toml:"security"`
	Logging  Logging  `yaml:"logging" toml:"logging"`
}

// Database describes the database to open
type Database struct {
	// Path of the database file or directory, or an in-memory identifier
	// such as "+" or "*".
	Path          string   `yaml:"path" toml:"path"`
	Modes         []string `yaml:"modes,omitempty" toml:"modes,omitempty"`
	Options       string   `yaml:"options,omitempty" toml:"options,omitempty"`
	Compressor    string   `yaml:"compressor,omitempty" toml:"compressor,omitempty"`
	CipherKey     string   `yaml:"cipher_key,omitempty" toml:"cipher_key,omitempty"`
	Buckets       int64    `yaml:"buckets,omitempty" toml:"buckets,omitempty"`
	PageCacheSize int64    `yaml:"page_cache_size,omitempty" toml:"page_cache_size,omitempty"`
	PageSize      int64    `yaml:"page_size,omitempty" toml:"page_size,omitempty"`
	MemoryMapSize int64    `yaml:"memory_map_size,omitempty" toml:"memory_map_size,omitempty"`
	DefragUnit    int64    `yaml:"defrag_unit,omitempty" toml:"defrag_unit,omitempty"`
	MaxRecords    int64    `yaml:"max_records,omitempty" toml:"max_records,omitempty"`
	MaxMemory     int64    `yaml:"max_memory,omitempty" toml:"max_memory,omitempty"`
	Encoding      string   `yaml:"encoding,omitempty" toml:"encoding,omitempty"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: Database{
			Path:  "./data/cabinet.kch",
			Modes: []string{"writer", "create"},
		},
		Port: 8080,
		Bind: "127.0.0.1",
		Security: Security{
			APIKey: "auto",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration without opening anything.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("port %d out of range", c.Port)
	}
	if _, err := log.ParseLogLevel(c.Logging.Level); err != nil {
		return errors.Wrapf(err, "logging level %q", c.Logging.Level)
	}
	if _, err := log.ParseLoggerType(c.Logging.Format); err != nil {
		return err
	}
	_, err := c.Descriptor()
	return err
}

// Descriptor builds the database descriptor from the configuration.
func (c *Config) Descriptor() (Descriptor, error) {
	d := c.Database
	if d.Path == "" {
		return Descriptor{}, errors.New("database path is required")
	}
	b := NewBuilder(d.Path)

	for _, m := range d.Modes {
		mode, ok := engine.ParseMode(m)
		if !ok {
			return Descriptor{}, errors.Newf("unknown mode %q", m)
		}
		b.Modes(mode)
	}
	if d.Options != "" {
		opts := make([]Option, 0, len(d.Options))
		for i := 0; i < len(d.Options); i++ {
			o := Option(d.Options[i])
			if o != OptionSmall && o != OptionLinear && o != OptionCompress {
				return Descriptor{}, errors.Newf("unknown option %q", string(o))
			}
			opts = append(opts, o)
		}
		b.Options(opts...)
	}
	if d.Compressor != "" {
		b.Compressor(d.Compressor)
	}
	if d.CipherKey != "" {
		b.CipherKey(d.CipherKey)
	}
	ints := []struct {
		n   int64
		set func(int64) *Builder
	}{
		{d.Buckets, b.Buckets},
		{d.PageCacheSize, b.PageCacheSize},
		{d.PageSize, b.PageSize},
		{d.MemoryMapSize, b.MemoryMapSize},
		{d.DefragUnit, b.DefragUnit},
		{d.MaxRecords, b.MaximumRecords},
		{d.MaxMemory, b.MaximumMemory},
	}
	for _, i := range ints {
		if i.n != 0 {
			i.set(i.n)
		}
	}
	return b.Build()
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from the specified path. Files ending in
// .toml are read as TOML, everything else as YAML.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isTOML(configPath) {
		err = toml.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(configPath) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(config)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(config)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key.
func BootstrapConfig(configPath string, dbPath string) (*Config, error) {
	config := DefaultConfig()
	if dbPath != "" {
		config.Database.Path = dbPath
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bootstrap config: %w", err)
	}
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./cabinet.yaml"
	}

	// For Linux/macOS, use ~/.config/cabinet/config.yaml
	configDir := filepath.Join(homeDir, ".config", "cabinet")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
