// Package config loads client runtime settings: defaults first, then an
// optional JSON file, then command-line flags. Later sources override
// earlier ones.
package config

import "time"

// Config holds runtime settings for the kanban client.
//
// Fields:
//   - ServerURL: base URL of the backend API, e.g. http://127.0.0.1:8080.
//   - DatabaseDSN: sqlite DSN of the local mirror.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - SyncInterval: how often the reconciler runs a full sync while online.
type Config struct {
	ServerURL           string
	DatabaseDSN         string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabaseDSN = "kanban.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
}

// WebsocketURL derives the realtime endpoint from ServerURL.
func (c *Config) WebsocketURL() string {
	u := c.ServerURL
	switch {
	case len(u) >= 8 && u[:8] == "https://":
		u = "wss://" + u[8:]
	case len(u) >= 7 && u[:7] == "http://":
		u = "ws://" + u[7:]
	}
	return u + "/ws"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
