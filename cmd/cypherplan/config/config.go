// Package config provides configuration for the cypherplan CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/TFMV/cypherplan/pkg/llm"
	"github.com/TFMV/cypherplan/pkg/services"
)

// EnvPrefix is the prefix for environment overrides, e.g. CYPHERPLAN_NEO4J_URI.
const EnvPrefix = "CYPHERPLAN"

// Config represents the CLI configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	Neo4j     Neo4jConfig     `yaml:"neo4j" json:"neo4j"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	Schema    SchemaConfig    `yaml:"schema" json:"schema"`
	History   HistoryConfig   `yaml:"history" json:"history"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// Neo4jConfig represents the graph store connection.
type Neo4jConfig struct {
	URI               string        `yaml:"uri" json:"uri"`
	Username          string        `yaml:"username" json:"username"`
	Password          string        `yaml:"password" json:"-"`
	Database          string        `yaml:"database" json:"database"`
	MaxConnections    int           `yaml:"max_connections" json:"max_connections"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// LLMConfig represents the language model settings.
type LLMConfig struct {
	Provider          string        `yaml:"provider" json:"provider"`
	Model             string        `yaml:"model" json:"model"`
	APIKey            string        `yaml:"api_key" json:"-"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Temperature       float64       `yaml:"temperature" json:"temperature"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	DomainContext     string        `yaml:"domain_context" json:"domain_context"`
}

// ExecutionConfig tunes validation and plan execution.
type ExecutionConfig struct {
	MaxComplexity    int           `yaml:"max_complexity" json:"max_complexity"`
	DefaultLimit     int           `yaml:"default_limit" json:"default_limit"`
	QueryTimeout     time.Duration `yaml:"query_timeout" json:"query_timeout"`
	PlanDeadline     time.Duration `yaml:"plan_deadline" json:"plan_deadline"`
	ScheduleMode     string        `yaml:"schedule_mode" json:"schedule_mode"`
	SampleSize       int           `yaml:"sample_size" json:"sample_size"`
	ApplySafetyLimit bool          `yaml:"apply_safety_limit" json:"apply_safety_limit"`
}

// SchemaConfig selects the schema summary source.
type SchemaConfig struct {
	// StaticFile, when set, replaces graph introspection.
	StaticFile string        `yaml:"static_file" json:"static_file"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
}

// HistoryConfig represents the run history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// MetricsConfig represents the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Neo4j: Neo4jConfig{
			URI:               "bolt://localhost:7687",
			Username:          "neo4j",
			Database:          "neo4j",
			MaxConnections:    50,
			ConnectionTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          llm.ProviderOpenAI,
			Temperature:       0.1,
			RequestsPerSecond: 2,
			Burst:             2,
			Timeout:           60 * time.Second,
		},
		Execution: ExecutionConfig{
			MaxComplexity: services.DefaultMaxComplexity,
			DefaultLimit:  services.DefaultQueryLimit,
			QueryTimeout:  30 * time.Second,
			PlanDeadline:  2 * time.Minute,
			ScheduleMode:  string(services.ScheduleList),
			SampleSize:    services.DefaultSampleSize,
		},
		Schema: SchemaConfig{
			TTL: 10 * time.Minute,
		},
		History: HistoryConfig{
			Enabled: true,
			DSN:     "cypherplan_history.duckdb",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// SetDefaults registers the default configuration on v and enables
// environment overrides.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.username", d.Neo4j.Username)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)
	v.SetDefault("neo4j.max_connections", d.Neo4j.MaxConnections)
	v.SetDefault("neo4j.connection_timeout", d.Neo4j.ConnectionTimeout)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.domain_context", d.LLM.DomainContext)

	v.SetDefault("execution.max_complexity", d.Execution.MaxComplexity)
	v.SetDefault("execution.default_limit", d.Execution.DefaultLimit)
	v.SetDefault("execution.query_timeout", d.Execution.QueryTimeout)
	v.SetDefault("execution.plan_deadline", d.Execution.PlanDeadline)
	v.SetDefault("execution.schedule_mode", d.Execution.ScheduleMode)
	v.SetDefault("execution.sample_size", d.Execution.SampleSize)
	v.SetDefault("execution.apply_safety_limit", d.Execution.ApplySafetyLimit)

	v.SetDefault("schema.static_file", d.Schema.StaticFile)
	v.SetDefault("schema.ttl", d.Schema.TTL)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dsn", d.History.DSN)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the optional config file named by the "config" key and builds
// a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		Neo4j: Neo4jConfig{
			URI:               v.GetString("neo4j.uri"),
			Username:          v.GetString("neo4j.username"),
			Password:          v.GetString("neo4j.password"),
			Database:          v.GetString("neo4j.database"),
			MaxConnections:    v.GetInt("neo4j.max_connections"),
			ConnectionTimeout: v.GetDuration("neo4j.connection_timeout"),
		},
		LLM: LLMConfig{
			Provider:          v.GetString("llm.provider"),
			Model:             v.GetString("llm.model"),
			APIKey:            v.GetString("llm.api_key"),
			BaseURL:           v.GetString("llm.base_url"),
			Temperature:       v.GetFloat64("llm.temperature"),
			RequestsPerSecond: v.GetFloat64("llm.requests_per_second"),
			Burst:             v.GetInt("llm.burst"),
			Timeout:           v.GetDuration("llm.timeout"),
			DomainContext:     v.GetString("llm.domain_context"),
		},
		Execution: ExecutionConfig{
			MaxComplexity:    v.GetInt("execution.max_complexity"),
			DefaultLimit:     v.GetInt("execution.default_limit"),
			QueryTimeout:     v.GetDuration("execution.query_timeout"),
			PlanDeadline:     v.GetDuration("execution.plan_deadline"),
			ScheduleMode:     v.GetString("execution.schedule_mode"),
			SampleSize:       v.GetInt("execution.sample_size"),
			ApplySafetyLimit: v.GetBool("execution.apply_safety_limit"),
		},
		Schema: SchemaConfig{
			StaticFile: v.GetString("schema.static_file"),
			TTL:        v.GetDuration("schema.ttl"),
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			DSN:     v.GetString("history.dsn"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Address: v.GetString("metrics.address"),
			Path:    v.GetString("metrics.path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	d := DefaultConfig()

	switch strings.ToLower(c.LogLevel) {
	case "":
		c.LogLevel = d.LogLevel
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = d.LogFormat
	case "json", "pretty":
	default:
		return fmt.Errorf("unsupported log format: %s", c.LogFormat)
	}

	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j uri is required")
	}
	if c.Neo4j.MaxConnections <= 0 {
		c.Neo4j.MaxConnections = d.Neo4j.MaxConnections
	}
	if c.Neo4j.ConnectionTimeout <= 0 {
		c.Neo4j.ConnectionTimeout = d.Neo4j.ConnectionTimeout
	}

	switch c.LLM.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGoogle, llm.ProviderOllama:
	case "":
		c.LLM.Provider = d.LLM.Provider
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm requests per second must not be negative")
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}

	if c.Execution.MaxComplexity <= 0 {
		c.Execution.MaxComplexity = d.Execution.MaxComplexity
	}
	if c.Execution.MaxComplexity > 5 {
		return fmt.Errorf("max complexity must be between 1 and 5, got %d", c.Execution.MaxComplexity)
	}
	if c.Execution.DefaultLimit <= 0 {
		c.Execution.DefaultLimit = d.Execution.DefaultLimit
	}
	if c.Execution.SampleSize <= 0 {
		c.Execution.SampleSize = d.Execution.SampleSize
	}
	if c.Execution.QueryTimeout < 0 || c.Execution.PlanDeadline < 0 {
		return fmt.Errorf("execution timeouts must not be negative")
	}
	if _, err := services.ParseScheduleMode(c.Execution.ScheduleMode); err != nil {
		return err
	}

	if c.Schema.TTL < 0 {
		return fmt.Errorf("schema ttl must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}

	return nil
}
