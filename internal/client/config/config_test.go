package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "kanban.db", c.DatabaseDSN)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestWebsocketURL(t *testing.T) {
	c := Config{ServerURL: "http://localhost:8080"}
	assert.Equal(t, "ws://localhost:8080/ws", c.WebsocketURL())

	c.ServerURL = "https://kanban.example.com"
	assert.Equal(t, "wss://kanban.example.com/ws", c.WebsocketURL())
}

func TestParseJson(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"server_url": "http://10.0.0.5:9000",
		"database_dsn": "/tmp/mirror.db",
		"online_check_interval": "5s",
		"sync_interval": "1m"
	}`), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"client", "-c", file}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, "http://10.0.0.5:9000", c.ServerURL)
	assert.Equal(t, "/tmp/mirror.db", c.DatabaseDSN)
	assert.Equal(t, 5*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, time.Minute, c.SyncInterval)
}

func TestParseJson_PartialOverlayKeepsDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"server_url": "http://10.0.0.5:9000"}`), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"client", "-c", file}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, "http://10.0.0.5:9000", c.ServerURL)
	assert.Equal(t, "kanban.db", c.DatabaseDSN)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
}
