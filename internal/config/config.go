package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for Totalizer. Both binaries
// load the same file; the agent reads the agent/redis/rules sections, the
// query server reads the query section.
type Config struct {
	Agent AgentConfig `koanf:"agent"`
	Redis RedisConfig `koanf:"redis"`
	Rules RulesConfig `koanf:"rules"`
	Query QueryConfig `koanf:"query"`
}

// AgentConfig holds the ingestion agent settings.
type AgentConfig struct {
	AdminAddr     string `koanf:"admin_addr"`
	QueueMax      int    `koanf:"queue_max"`
	Connections   int    `koanf:"connections"`
	StatsInterval string `koanf:"stats_interval"` // parsed as time.Duration in main
	Mode          string `koanf:"mode"`           // "debug" or "release"
}

// RedisConfig holds the store connection settings.
type RedisConfig struct {
	Addr           string `koanf:"addr"`
	Password       string `koanf:"password"`
	DB             int    `koanf:"db"`
	ConnectTimeout string `koanf:"connect_timeout"`
}

// RulesConfig locates the watch rule files.
type RulesConfig struct {
	Path string `koanf:"path"`
}

// QueryConfig holds the query server settings.
type QueryConfig struct {
	Addr          string  `koanf:"addr"`
	Mode          string  `koanf:"mode"`
	DNSServer     string  `koanf:"dns_server"`
	Domain        string  `koanf:"domain"`     // RKVDNS domain, also the rendezvous name
	Federated     bool    `koanf:"federated"`  // discover locations by PTR lookup
	Delimiter     string  `koanf:"delimiter"`  // key segment delimiter
	Parts         int     `koanf:"parts"`      // stored-key segment count incl. timestamp
	TrendFraction float64 `koanf:"trend_fraction"`
}

// Load loads the configuration from the given file path and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"agent.admin_addr":      "127.0.0.1:3449",
		"agent.queue_max":       50,
		"agent.connections":     2,
		"agent.stats_interval":  "600s",
		"agent.mode":            "release",
		"redis.addr":            "127.0.0.1:6379",
		"redis.password":        "",
		"redis.db":              0,
		"redis.connect_timeout": "5s",
		"rules.path":            "./rules",
		"query.addr":            "0.0.0.0:3450",
		"query.mode":            "release",
		"query.dns_server":      "127.0.0.1:53",
		"query.domain":          "",
		"query.federated":       false,
		"query.delimiter":       ";",
		"query.parts":           4,
		"query.trend_fraction":  0.25,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// 2. Load from file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Load from Environment Variables
	// TOTALIZER_REDIS__ADDR=10.0.0.5:6379 overrides redis.addr
	if err := k.Load(env.Provider("TOTALIZER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TOTALIZER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
