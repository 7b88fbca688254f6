package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds all configuration for the sign-in orchestrator on the
// existing device. Tags use mapstructure for Viper unmarshalling.
type ClientConfig struct {
	HomeserverURL string `mapstructure:"HOMESERVER_URL"`
	RelayURL      string `mapstructure:"RELAY_URL"`

	// UseModernProtocol selects the OIDC-flavored rendezvous protocol instead
	// of the legacy peer-to-peer one.
	UseModernProtocol bool `mapstructure:"USE_MODERN_PROTOCOL"`
	// CryptoEnabled gates the verifying phase: when true the new device must
	// pass cross-signing verification before the attempt is reported
	// successful.
	CryptoEnabled bool `mapstructure:"CRYPTO_ENABLED"`

	PollIntervalMS int `mapstructure:"POLL_INTERVAL_MS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// PollInterval returns the relay long-poll retry interval as a Duration.
func (c *ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ServerConfig holds all configuration for the relay / login-token server.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Empty URIs select the in-memory backends.
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	ChannelTTLSec     int   `mapstructure:"CHANNEL_TTL_SEC"`
	LoginTokenTTLSec  int   `mapstructure:"LOGIN_TOKEN_TTL_SEC"`
	MaxPayloadBytes   int64 `mapstructure:"MAX_PAYLOAD_BYTES"`
	TokenRatePerMin   int   `mapstructure:"TOKEN_RATE_PER_MIN"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// ChannelTTL returns the relay channel lifetime as a Duration.
func (c *ServerConfig) ChannelTTL() time.Duration {
	return time.Duration(c.ChannelTTLSec) * time.Second
}

// LoginTokenTTL returns the login token lifetime as a Duration.
func (c *ServerConfig) LoginTokenTTL() time.Duration {
	return time.Duration(c.LoginTokenTTLSec) * time.Second
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/rendezvous/")
	v.AddConfigPath("$HOME/.rendezvous")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func readIn(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// LoadClientConfig reads the existing-device configuration from file,
// environment variables, and defaults.
func LoadClientConfig() (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("HOMESERVER_URL", "http://localhost:8080")
	v.SetDefault("RELAY_URL", "http://localhost:8080/_rendezvous")
	v.SetDefault("USE_MODERN_PROTOCOL", false)
	v.SetDefault("CRYPTO_ENABLED", true)
	v.SetDefault("POLL_INTERVAL_MS", 1000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := readIn(v); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// LoadServerConfig reads the relay/login-token server configuration from
// file, environment variables, and defaults.
func LoadServerConfig() (*ServerConfig, error) {
	v := newViper()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "rendezvous")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CHANNEL_TTL_SEC", 120)
	v.SetDefault("LOGIN_TOKEN_TTL_SEC", 120)
	v.SetDefault("MAX_PAYLOAD_BYTES", 10240)
	v.SetDefault("TOKEN_RATE_PER_MIN", 6)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := readIn(v); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
