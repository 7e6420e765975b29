// Package settings defines application-level configuration data.
package settings

import "time"

// StoreConfig selects and locates the persistent store.
type StoreConfig struct {
	Driver string `yaml:"driver" kong:"help='Store driver (sqlite/postgres)',default='sqlite',enum='sqlite,postgres'"`
	Path   string `yaml:"path" kong:"help='SQLite database path'"`
	DSN    string `yaml:"dsn" kong:"help='PostgreSQL connection string',env='FEEDKEEP_STORE_DSN'"`
}

// RefreshConfig controls the refresh fan-out.
type RefreshConfig struct {
	Workers             int `yaml:"workers" kong:"help='Feeds refreshed concurrently',default='4'"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" kong:"help='Per-feed fetch timeout in seconds',default='30'"`
	IntervalMinutes     int `yaml:"interval_minutes" kong:"help='Watch mode refresh interval in minutes',default='30'"`
}

// FetchConfig controls how feeds are fetched.
type FetchConfig struct {
	UserAgent      string `yaml:"user_agent" kong:"help='HTTP User-Agent',default='Feedkeep/1.0'"`
	HostIntervalMS int    `yaml:"host_interval_ms" kong:"help='Minimum delay between requests to one host in milliseconds',default='0'"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" kong:"help='Log level (debug/info/warn/error)',default='info'"`
	Format string `yaml:"format" kong:"help='Log format (text/json)',default='text',enum='text,json'"`
}

// MetricsConfig controls the Prometheus endpoint served in watch mode.
type MetricsConfig struct {
	Address string `yaml:"address" kong:"help='Metrics listen address, empty disables'"`
}

// Settings represents the application configuration.
type Settings struct {
	Store    StoreConfig   `yaml:"store" kong:"embed,prefix='store.'"`
	Refresh  RefreshConfig `yaml:"refresh" kong:"embed,prefix='refresh.'"`
	Fetch    FetchConfig   `yaml:"fetch" kong:"embed,prefix='fetch.'"`
	Identity string        `yaml:"identity" kong:"help='Story identity used to carry read state (title/link)',default='title',enum='title,link'"`
	Log      LogConfig     `yaml:"log" kong:"embed,prefix='log.'"`
	Metrics  MetricsConfig `yaml:"metrics" kong:"embed,prefix='metrics.'"`
}

// FetchTimeout returns the per-feed fetch timeout, zero meaning none.
func (r RefreshConfig) FetchTimeout() time.Duration {
	if r.FetchTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.FetchTimeoutSeconds) * time.Second
}

// Interval returns the watch mode refresh interval.
func (r RefreshConfig) Interval() time.Duration {
	if r.IntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// HostInterval returns the minimum spacing between requests to one host.
func (f FetchConfig) HostInterval() time.Duration {
	if f.HostIntervalMS <= 0 {
		return 0
	}
	return time.Duration(f.HostIntervalMS) * time.Millisecond
}
