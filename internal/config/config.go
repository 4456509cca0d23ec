// Package config provides configuration for the livedoc client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the client configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Journal JournalConfig `mapstructure:"journal"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig holds the WebSocket connection settings.
type ServerConfig struct {
	URL            string        `mapstructure:"url"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// HTTPConfig holds the inspection server settings. An empty Addr disables
// the server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// JournalConfig holds the SQLite journal settings. An empty DSN disables
// journaling.
type JournalConfig struct {
	DSN string `mapstructure:"dsn"`
}

type CacheConfig struct {
	MaxMessageAge int `mapstructure:"max_message_age"`
}

// PolicyConfig selects the outbound policy. An empty File uses the built-in
// policy.
type PolicyConfig struct {
	File          string `mapstructure:"file"`
	DeveloperMode bool   `mapstructure:"developer_mode"`
}

type LogConfig struct {
	Verbosity int `mapstructure:"verbosity"`
}

type SessionConfig struct {
	QueryString string `mapstructure:"query_string"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// LIVEDOC_. LIVEDOC_CONFIG names a toml file that must exist; otherwise
// ~/.config/livedoc/config.toml is read if present.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("server.url", "ws://localhost:8501/_stcore/stream")
	v.SetDefault("server.ping_interval", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.max_message_size", 200<<20)
	v.SetDefault("http.addr", "")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("cache.max_message_age", 2)
	v.SetDefault("policy.file", "")
	v.SetDefault("policy.developer_mode", false)
	v.SetDefault("log.verbosity", 0)
	v.SetDefault("session.query_string", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LIVEDOC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "livedoc"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LIVEDOC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Cache.MaxMessageAge < 0 {
		return Config{}, fmt.Errorf("cache.max_message_age must not be negative, got %d", c.Cache.MaxMessageAge)
	}
	return c, nil
}
