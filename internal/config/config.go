package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgelake/sheetsink/pkg/canonpath"
)

// SiteConfig identifies the watched (site, list) pair on the Source.
type SiteConfig struct {
	SiteID      string `toml:"site_id"`
	ListID      string `toml:"list_id"`
	WatchedPath string `toml:"watched_path"`
	ClientState string `toml:"client_state"`
}

// SourceConfig holds the Source API endpoint and credential.
type SourceConfig struct {
	BaseURL string        `toml:"base_url"`
	Token   string        `toml:"token"`
	Timeout time.Duration `toml:"timeout"`
}

// QueueConfig holds the notification topic settings.
type QueueConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	Group   string   `toml:"group"`
	Workers int      `toml:"workers"`
}

// WarehouseConfig holds the destination database settings.
type WarehouseConfig struct {
	URL    string `toml:"url"`
	Schema string `toml:"schema"`
}

// SyncConfig holds the orchestrator tuning knobs.
type SyncConfig struct {
	BatchSize          int           `toml:"batch_size"`
	ResyncWindowMinute int           `toml:"resync_window_minutes"`
	RunTimeout         time.Duration `toml:"run_timeout"`
}

// OpsConfig holds the ops HTTP server settings. Port 0 disables the server.
type OpsConfig struct {
	Listen string `toml:"listen"`
	Port   int    `toml:"port"`
}

// LoggingConfig holds settings for structured logging.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Config is the top-level configuration for sheetsink.
type Config struct {
	Site      SiteConfig      `toml:"site"`
	Source    SourceConfig    `toml:"source"`
	Queue     QueueConfig     `toml:"queue"`
	Warehouse WarehouseConfig `toml:"warehouse"`
	Sync      SyncConfig      `toml:"sync"`
	Ops       OpsConfig       `toml:"ops"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ResyncWindow returns the look-back applied when the Source invalidates the
// delta cursor.
func (c *Config) ResyncWindow() time.Duration {
	return time.Duration(c.Sync.ResyncWindowMinute) * time.Minute
}

// ApplyDefaults fills every unset field that has a sane default. Validation
// assumes defaults were applied first.
func (c *Config) ApplyDefaults() {
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Queue.Group == "" {
		c.Queue.Group = "sheetsink"
	}
	if c.Queue.Workers < 1 {
		c.Queue.Workers = 4
	}
	if c.Warehouse.Schema == "" {
		c.Warehouse.Schema = "edges_raw"
	}
	if c.Sync.BatchSize < 1 {
		c.Sync.BatchSize = 200
	}
	if c.Sync.ResyncWindowMinute < 1 {
		c.Sync.ResyncWindowMinute = 10
	}
	if c.Sync.RunTimeout == 0 {
		c.Sync.RunTimeout = 5 * time.Minute
	}
	if c.Ops.Listen == "" {
		c.Ops.Listen = "127.0.0.1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Site.WatchedPath = canonpath.Canonical(c.Site.WatchedPath)
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	var errs []error

	if c.Site.SiteID == "" {
		errs = append(errs, errors.New("site id is required"))
	} else if err := validateSiteID(c.Site.SiteID); err != nil {
		errs = append(errs, err)
	}
	if c.Site.ListID == "" {
		errs = append(errs, errors.New("list id is required"))
	} else if _, err := uuid.Parse(c.Site.ListID); err != nil {
		errs = append(errs, fmt.Errorf("list id %q is not a GUID", c.Site.ListID))
	}
	if c.Site.WatchedPath == "" {
		errs = append(errs, errors.New("watched path is required"))
	}
	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source base URL is required"))
	}
	if len(c.Queue.Brokers) == 0 {
		errs = append(errs, errors.New("at least one queue broker is required"))
	}
	if c.Queue.Topic == "" {
		errs = append(errs, errors.New("queue topic is required"))
	}
	if c.Warehouse.URL == "" {
		errs = append(errs, errors.New("warehouse database URL is required"))
	}

	return errors.Join(errs...)
}

// validateSiteID accepts either a bare GUID or the composite
// "host,site-guid,web-guid" form the Source hands out for named sites.
func validateSiteID(s string) error {
	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		if _, err := uuid.Parse(parts[0]); err != nil {
			return fmt.Errorf("site id %q is not a GUID", s)
		}
		return nil
	case 3:
		if strings.TrimSpace(parts[0]) == "" {
			return fmt.Errorf("site id %q: empty host in composite form", s)
		}
		for _, g := range parts[1:] {
			if _, err := uuid.Parse(g); err != nil {
				return fmt.Errorf("site id %q: %q is not a GUID", s, g)
			}
		}
		return nil
	default:
		return fmt.Errorf("site id %q: expected a GUID or host,guid,guid", s)
	}
}
