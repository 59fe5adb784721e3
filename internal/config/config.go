package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the client configuration. Every key can be overridden with
// a NOSTR_ prefixed environment variable, e.g. NOSTR_QUERY_TIMEOUT=5s.
type Config struct {
	Relays             []string      `mapstructure:"relays"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
	MaxInFlight        int64         `mapstructure:"max_in_flight"`
	InboxSize          int           `mapstructure:"inbox_size"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
	VerifySignatures   bool          `mapstructure:"verify_signatures"`
	AllowPrivateRelays bool          `mapstructure:"allow_private_relays"`
	PrivateKey         string        `mapstructure:"private_key"` // nsec or hex, optional
	LogLevel           string        `mapstructure:"log_level"`
}

// DefaultRelays are used when no relays are configured.
var DefaultRelays = []string{
	"wss://relay.nostr.band",
	"wss://relay.damus.io",
	"wss://relay.primal.net",
	"wss://nos.lol",
}

var (
	config     *Config
	configErr  error
	configOnce sync.Once
)

// Get loads the configuration from the default locations once and
// returns it on every later call.
func Get() (*Config, error) {
	configOnce.Do(func() {
		config, configErr = Load("")
	})
	return config, configErr
}

// Load reads configuration from path, or from config.yaml in the working
// directory or $HOME/.nostr-threads when path is empty. A missing file
// leaves defaults and environment in effect.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.nostr-threads")
	}

	v.SetEnvPrefix("NOSTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL is honoured for parity with other tooling
	_ = v.BindEnv("log_level", "NOSTR_LOG_LEVEL", "LOG_LEVEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("no config file found, using defaults")
	} else {
		slog.Debug("config loaded", "file", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = append([]string(nil), DefaultRelays...)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relays", DefaultRelays)
	v.SetDefault("query_timeout", 15*time.Second)
	v.SetDefault("max_in_flight", 5)
	v.SetDefault("inbox_size", 4096)
	v.SetDefault("handshake_timeout", 10*time.Second)
	v.SetDefault("verify_signatures", true)
	v.SetDefault("allow_private_relays", false)
	v.SetDefault("private_key", "")
	v.SetDefault("log_level", "info")
}
