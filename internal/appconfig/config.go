// Package appconfig layers the sheetsink configuration: compiled-in
// defaults, then an optional TOML file, then SHEETSINK_* environment
// overrides. Command-line flags are applied later by the CLI and win.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/edgelake/sheetsink/internal/config"
)

// Load builds a Config from file and environment. An empty path searches
// ~/.sheetsink/config.toml then /etc/sheetsink/config.toml; a missing file
// is not an error.
func Load(path string) (config.Config, error) {
	var cfg config.Config

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".sheetsink", "config.toml"))
	}
	candidates = append(candidates, "/etc/sheetsink/config.toml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func applyEnv(cfg *config.Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setStr("SHEETSINK_SITE_ID", &cfg.Site.SiteID)
	setStr("SHEETSINK_LIST_ID", &cfg.Site.ListID)
	setStr("SHEETSINK_WATCHED_PATH", &cfg.Site.WatchedPath)
	setStr("SHEETSINK_CLIENT_STATE", &cfg.Site.ClientState)

	setStr("SHEETSINK_SOURCE_URL", &cfg.Source.BaseURL)
	setStr("SHEETSINK_SOURCE_TOKEN", &cfg.Source.Token)
	setDur("SHEETSINK_SOURCE_TIMEOUT", &cfg.Source.Timeout)

	if v := os.Getenv("SHEETSINK_BROKERS"); v != "" {
		cfg.Queue.Brokers = splitCSV(v)
	}
	setStr("SHEETSINK_TOPIC", &cfg.Queue.Topic)
	setStr("SHEETSINK_GROUP", &cfg.Queue.Group)
	setInt("SHEETSINK_WORKERS", &cfg.Queue.Workers)

	setStr("SHEETSINK_DB_URL", &cfg.Warehouse.URL)
	setStr("SHEETSINK_DB_SCHEMA", &cfg.Warehouse.Schema)

	setInt("SHEETSINK_BATCH_SIZE", &cfg.Sync.BatchSize)
	setInt("SHEETSINK_RESYNC_WINDOW_MINUTES", &cfg.Sync.ResyncWindowMinute)
	setDur("SHEETSINK_RUN_TIMEOUT", &cfg.Sync.RunTimeout)

	setStr("SHEETSINK_OPS_LISTEN", &cfg.Ops.Listen)
	setInt("SHEETSINK_OPS_PORT", &cfg.Ops.Port)

	setStr("SHEETSINK_LOG_LEVEL", &cfg.Logging.Level)
	setStr("SHEETSINK_LOG_FORMAT", &cfg.Logging.Format)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
