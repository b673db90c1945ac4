package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileName is looked up in the config directory when no file is given.
const DefaultFileName = "app.yml"

// ResolvePath picks the config file to load. An explicit path wins, then
// $AGENDA_CONFIG, then app.yml inside $CONFIG_DIR (or the working directory)
// if it exists. An empty result means environment-only configuration.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("AGENDA_CONFIG"); env != "" {
		return env
	}

	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "."
	}
	candidate := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return candidate
}

// Init resolves and loads the configuration, then validates it.
func Init(explicit string) (*Config, error) {
	cfg, err := LoadConfig(ResolvePath(explicit))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
