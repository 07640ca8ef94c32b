// Package config loads service configuration from a YAML file and
// ADVISQL_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/advisql/advisql/internal/cache"
)

// LLMConfig configures the optional advisory oracle.
type LLMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// Config is the full service configuration.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	SchemaName  string `mapstructure:"schema_name"`
	ListenAddr  string `mapstructure:"listen_addr"`
	LogLevel    string `mapstructure:"log_level"`

	// TTLs per cache category.
	SchemaTTL        time.Duration `mapstructure:"schema_ttl"`
	RelationshipsTTL time.Duration `mapstructure:"relationships_ttl"`
	StatisticsTTL    time.Duration `mapstructure:"statistics_ttl"`
	SampleDataTTL    time.Duration `mapstructure:"sample_data_ttl"`
	FullContextTTL   time.Duration `mapstructure:"full_context_ttl"`

	LLM LLMConfig `mapstructure:"llm"`
}

// Load reads configuration from an optional YAML file plus the
// environment. An empty path skips the file and uses env and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default registered, or AutomaticEnv will not
	// surface its environment variable through Unmarshal.
	v.SetDefault("database_url", "")
	v.SetDefault("schema_name", "public")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	defaults := cache.DefaultTTLs()
	v.SetDefault("schema_ttl", defaults[cache.CategorySchema])
	v.SetDefault("relationships_ttl", defaults[cache.CategoryRelationships])
	v.SetDefault("statistics_ttl", defaults[cache.CategoryStatistics])
	v.SetDefault("sample_data_ttl", defaults[cache.CategorySampleData])
	v.SetDefault("full_context_ttl", defaults[cache.CategoryFullContext])

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.api_key", "")

	v.SetEnvPrefix("ADVISQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, ttl := range map[string]time.Duration{
		"schema_ttl":        c.SchemaTTL,
		"relationships_ttl": c.RelationshipsTTL,
		"statistics_ttl":    c.StatisticsTTL,
		"sample_data_ttl":   c.SampleDataTTL,
		"full_context_ttl":  c.FullContextTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.LLM.Enabled && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required when the oracle is enabled")
	}
	return nil
}

// TTLs maps the configured durations onto cache categories.
func (c *Config) TTLs() map[cache.Category]time.Duration {
	return map[cache.Category]time.Duration{
		cache.CategorySchema:        c.SchemaTTL,
		cache.CategoryRelationships: c.RelationshipsTTL,
		cache.CategoryStatistics:    c.StatisticsTTL,
		cache.CategorySampleData:    c.SampleDataTTL,
		cache.CategoryFullContext:   c.FullContextTTL,
	}
}
