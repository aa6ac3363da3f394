package cache

import (
	"time"
)

// Config sizes a MemoryCache. The planner keeps small, hot values here
// (the graph schema summary fed to query generation), so the defaults are
// tuned for a handful of entries rather than bulk result caching.
type Config struct {
	// MaxEntries caps the entry count before least recently used eviction. Zero disables the cap.
	MaxEntries int
	// TTL bounds how long an entry is served after Put. Zero keeps entries until
	// they are evicted, deleted or cleared.
	TTL time.Duration
	// EnableStats turns on hit, miss and eviction counters.
	EnableStats bool
}

// DefaultConfig returns the general purpose configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries:  128,
		TTL:         5 * time.Minute,
		EnableStats: true,
	}
}

// SchemaSummaryConfig holds exactly one schema summary for ttl.
// A non-positive ttl keeps it until the cache is cleared.
func SchemaSummaryConfig(ttl time.Duration) *Config {
	return DefaultConfig().WithMaxEntries(1).WithTTL(ttl)
}

// WithMaxEntries sets the entry cap.
func (c *Config) WithMaxEntries(n int) *Config {
	c.MaxEntries = n
	return c
}

// WithTTL sets the entry lifetime.
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}

// WithStats toggles the counters.
func (c *Config) WithStats(enable bool) *Config {
	c.EnableStats = enable
	return c
}

// normalized clamps negative limits to their "unbounded" zero value.
func (c Config) normalized() Config {
	c.MaxEntries = max(c.MaxEntries, 0)
	c.TTL = max(c.TTL, 0)
	return c
}
