package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindGoogle = "google"
	KindICS    = "ics"
)

// View modes accepted for Display.DefaultView.
const (
	ViewDay   = "day"
	ViewWeek  = "week"
	ViewMonth = "month"
)

// Source describes one remote calendar feed contributing events to a column.
type Source struct {
	// ID is the calendar identifier: a Google calendar ID for kind
	// "google", ignored for kind "ics".
	ID string `yaml:"id" json:"id"`
	// Name is an optional human-friendly label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Color overrides the palette color for this source's events.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
	// Kind selects the fetcher: "google" (default) or "ics".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
	// URL is the subscription endpoint for kind "ics".
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Column groups the sources aggregated under one display column
// (typically one person).
type Column struct {
	Name    string   `yaml:"name" json:"name"`
	Sources []Source `yaml:"sources" json:"sources"`
}

// Display holds the time-grid presentation settings the engine needs for
// geometry and default behavior.
type Display struct {
	// StartHour and EndHour bound the visible window [StartHour, EndHour).
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
	// DefaultView is "day", "week" or "month".
	DefaultView string `yaml:"default_view" json:"default_view"`
	// Timezone is the IANA display timezone; empty means the host zone.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	// ShowTentative controls whether tentative events appear by default.
	ShowTentative bool `yaml:"show_tentative" json:"show_tentative"`
}

// BasicAuth optionally protects the API endpoints. PasswordHash is a bcrypt
// hash of the password, never the password itself.
type BasicAuth struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Config is the engine configuration, loaded once at startup and read-only
// afterwards.
type Config struct {
	Columns []Column `yaml:"columns" json:"columns"`
	Display Display  `yaml:"display" json:"display"`

	// RefreshCron is a cron spec for the periodic silent refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Palette supplies fallback event colors for sources without an
	// explicit color, indexed by the source's position in its column.
	Palette []string `yaml:"palette,omitempty" json:"palette"`

	BasicAuth *BasicAuth `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultPalette mirrors the calendar service's own event colors.
var DefaultPalette = []string{
	"#4285f4", // blue
	"#34a853", // green
	"#fbbc04", // yellow
	"#ea4335", // red
	"#9c27b0", // purple
	"#ff9800", // orange
	"#009688", // teal
	"#e91e63", // pink
	"#3f51b5", // indigo
	"#00bcd4", // cyan
}

// Default returns an in-memory default configuration with no columns.
func Default() *Config {
	return &Config{
		Columns: []Column{},
		Display: Display{
			StartHour:     0,
			EndHour:       24,
			DefaultView:   ViewDay,
			ShowTentative: true,
		},
		RefreshCron: "@every 5m",
		Palette:     append([]string(nil), DefaultPalette...),
	}
}

// Normalize fills zero values with defaults so partially-written config
// files still behave.
func (c *Config) Normalize() {
	if c.Display.EndHour <= c.Display.StartHour {
		c.Display.StartHour = 0
		c.Display.EndHour = 24
	}
	if c.Display.StartHour < 0 || c.Display.StartHour > 23 {
		c.Display.StartHour = 0
	}
	if c.Display.EndHour < 1 || c.Display.EndHour > 24 {
		c.Display.EndHour = 24
	}
	switch c.Display.DefaultView {
	case ViewDay, ViewWeek, ViewMonth:
	default:
		c.Display.DefaultView = ViewDay
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "@every 5m"
	}
	if len(c.Palette) == 0 {
		c.Palette = append([]string(nil), DefaultPalette...)
	}
	for i := range c.Columns {
		for j := range c.Columns[i].Sources {
			src := &c.Columns[i].Sources[j]
			if src.Kind == "" {
				src.Kind = KindGoogle
			}
			if src.ID == "" && src.Kind == KindICS {
				src.ID = src.URL
			}
		}
	}
}

// Validate reports configuration mistakes that Normalize cannot repair.
func (c *Config) Validate() error {
	for _, col := range c.Columns {
		if col.Name == "" {
			return errors.New("config: column without a name")
		}
		for _, src := range col.Sources {
			switch src.Kind {
			case KindGoogle:
				if src.ID == "" {
					return fmt.Errorf("config: column %q has a google source without an id", col.Name)
				}
			case KindICS:
				if src.URL == "" {
					return fmt.Errorf("config: column %q has an ics source without a url", col.Name)
				}
			default:
				return fmt.Errorf("config: column %q has unknown source kind %q", col.Name, src.Kind)
			}
		}
	}
	return nil
}

// FallbackColor resolves the palette fallback for the source at the given
// position within its column. Stable across refreshes for an unchanged
// configuration.
func (c *Config) FallbackColor(sourceIndex int) string {
	if len(c.Palette) == 0 {
		return DefaultPalette[sourceIndex%len(DefaultPalette)]
	}
	return c.Palette[sourceIndex%len(c.Palette)]
}

// Load reads the YAML config at path. A missing file yields the default
// configuration rather than an error, so the service can start unconfigured.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the configured display timezone, falling back to the
// host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Display.Timezone, err)
	}
	return loc, nil
}
