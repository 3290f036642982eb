// Package config loads gateway configuration from a TOML file with an
// environment-variable overlay, naming upstream services, the schema poll
// interval, the listen address, and CORS origins.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samsarahq/go/oops"
	"github.com/spf13/viper"
)

// Service names one upstream subgraph's query/mutation URL and, if it
// supports subscriptions, its WebSocket URL.
type Service struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	WSURL     string `toml:"ws_url"`
	Protocol  string `toml:"ws_protocol"` // "graphql-ws" or "graphql-transport-ws"; defaults to the latter
	RoundTrip int    `toml:"round_trip_pool_size"`
}

// Config is the gateway's full runtime configuration.
type Config struct {
	ListenAddr    string        `toml:"listen_addr"`
	PollInterval  time.Duration `toml:"-"`
	PollIntervalS int           `toml:"poll_interval_seconds"`
	CORSOrigins   []string      `toml:"cors_origins"`
	LogLevel      string        `toml:"log_level"`
	Services      []Service     `toml:"services"`
}

// Load reads path as TOML, then overlays any GATEWAY_-prefixed environment
// variables via viper (grounded on the manifests of real federation
// gateways that layer viper env vars over a checked-in file rather than
// requiring a full redeploy to tweak one value).
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, oops.Wrapf(err, "decoding config file %s", path)
	}

	v := viper.New()
	v.SetEnvPrefix("gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("listen_addr") {
		cfg.ListenAddr = v.GetString("listen_addr")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("poll_interval_seconds") {
		cfg.PollIntervalS = v.GetInt("poll_interval_seconds")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":4000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PollIntervalS == 0 {
		cfg.PollIntervalS = 10
	}
	cfg.PollInterval = time.Duration(cfg.PollIntervalS) * time.Second

	for i := range cfg.Services {
		if cfg.Services[i].Protocol == "" {
			cfg.Services[i].Protocol = "graphql-transport-ws"
		}
		if cfg.Services[i].RoundTrip == 0 {
			cfg.Services[i].RoundTrip = 4
		}
	}

	if len(cfg.Services) == 0 {
		return nil, oops.Errorf("config %s declares no services", path)
	}

	return &cfg, nil
}
