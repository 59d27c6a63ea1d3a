// ABOUTME: CLI configuration resolution: env, YAML config file, TOML profiles
// ABOUTME: Profiles live in ~/.config/driftline/credentials.toml

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/driftline/driftline-console/internal/config"
)

// profile is one named entry in credentials.toml.
type profile struct {
	Origin          string   `toml:"origin"`
	FallbackOrigins []string `toml:"fallback_origins"`
	Username        string   `toml:"username"`
	JournalPath     string   `toml:"journal_path"`
}

// profilesFile is the decoded credentials.toml: a map of profile name to
// settings.
type profilesFile map[string]profile

// loadProfile reads the named profile from ~/.config/driftline/credentials.toml.
// A missing file is not an error; a missing named profile is.
func loadProfile(name string) (*profile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}
	path := filepath.Join(home, ".config", "driftline", "credentials.toml")

	var file profilesFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	p, ok := file[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in %s", name, path)
	}
	return &p, nil
}

// resolveConfig builds the console configuration. Precedence: DRIFTLINE_CONFIG
// YAML file, then environment overrides, then the TOML profile.
func resolveConfig() (*config.Config, error) {
	if path := os.Getenv("DRIFTLINE_CONFIG"); path != "" {
		return config.Load(path)
	}

	profileName := os.Getenv("DRIFTLINE_PROFILE")
	if profileName == "" {
		profileName = "default"
	}
	p, err := loadProfile(profileName)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if p != nil {
		cfg.API.Origin = p.Origin
		cfg.API.FallbackOrigins = p.FallbackOrigins
		cfg.Journal.Path = p.JournalPath
	}
	if origin := os.Getenv("DRIFTLINE_API"); origin != "" {
		cfg.API.Origin = origin
	}
	if cfg.API.Origin == "" {
		return nil, fmt.Errorf("no API origin configured: set DRIFTLINE_API or add a profile")
	}
	if cfg.Journal.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Journal.Path = filepath.Join(home, ".local", "state", "driftline", "journal.db")
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}
