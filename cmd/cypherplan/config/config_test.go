package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cypherplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
neo4j:
  uri: bolt://graph:7687
  database: berlin
llm:
  provider: anthropic
  temperature: 0.3
execution:
  max_complexity: 3
  plan_deadline: 45s
  schedule_mode: dependency
history:
  enabled: false
`), 0o600))

	v := newViper()
	v.Set("config", path)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "berlin", cfg.Neo4j.Database)
	assert.Equal(t, "neo4j", cfg.Neo4j.Username)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Execution.MaxComplexity)
	assert.Equal(t, 45*time.Second, cfg.Execution.PlanDeadline)
	assert.Equal(t, "dependency", cfg.Execution.ScheduleMode)
	assert.False(t, cfg.History.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	v := newViper()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CYPHERPLAN_NEO4J_URI", "neo4j://cluster:7687")
	t.Setenv("CYPHERPLAN_EXECUTION_SAMPLE_SIZE", "8")

	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "neo4j://cluster:7687", cfg.Neo4j.URI)
	assert.Equal(t, 8, cfg.Execution.SampleSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name:   "zero values filled",
			mutate: func(c *Config) { c.Execution.MaxComplexity = 0; c.Execution.SampleSize = 0; c.LogLevel = "" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 4, c.Execution.MaxComplexity)
				assert.Equal(t, 5, c.Execution.SampleSize)
				assert.Equal(t, "info", c.LogLevel)
			},
		},
		{name: "log level normalised", mutate: func(c *Config) { c.LogLevel = "WARN" },
			check: func(t *testing.T, c *Config) { assert.Equal(t, "warn", c.LogLevel) }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "missing uri", mutate: func(c *Config) { c.Neo4j.URI = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "mystery" }, wantErr: true},
		{name: "temperature too high", mutate: func(c *Config) { c.LLM.Temperature = 3 }, wantErr: true},
		{name: "complexity above scale", mutate: func(c *Config) { c.Execution.MaxComplexity = 6 }, wantErr: true},
		{name: "unknown schedule mode", mutate: func(c *Config) { c.Execution.ScheduleMode = "parallel" }, wantErr: true},
		{name: "negative deadline", mutate: func(c *Config) { c.Execution.PlanDeadline = -time.Second }, wantErr: true},
		{name: "metrics without address", mutate: func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
