package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variables read by LoadFromEnv
const (
	EnvDBPath              = "COMPOSECOMPLETE_DB_PATH"
	EnvDisplayProfileImage = "COMPOSECOMPLETE_DISPLAY_PROFILE_IMAGE"
	EnvLocale              = "COMPOSECOMPLETE_LOCALE"
	EnvMaxSessions         = "COMPOSECOMPLETE_MAX_SESSIONS"
	EnvIngestWorkers       = "COMPOSECOMPLETE_INGEST_WORKERS"
)

const (
	// DefaultDBPath is used when EnvDBPath is unset
	DefaultDBPath = "~/.composecomplete/cache.db"
	// DefaultMaxSessions bounds the number of live completion sessions
	DefaultMaxSessions = 64

	// PreferenceDisplayProfileImage is the stored preference key controlling
	// profile images in suggestions
	PreferenceDisplayProfileImage = "display_profile_image"
)

// ErrInvalidConfig is returned when an environment value cannot be parsed
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds process settings
type Config struct {
	DBPath string
	Locale string

	// DisplayProfileImage overrides the stored preference when set
	DisplayProfileImage *bool

	MaxSessions   int
	IngestWorkers int // 0 means one per CPU
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		DBPath:      DefaultDBPath,
		MaxSessions: DefaultMaxSessions,
	}
}

// LoadFromEnv builds a Config from the environment.
// Priority for the locale: COMPOSECOMPLETE_LOCALE, then LANG.
func LoadFromEnv() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		cfg.DBPath = v
	}

	cfg.Locale = strings.TrimSpace(getenv(EnvLocale))
	if cfg.Locale == "" {
		cfg.Locale = localeFromLang(getenv("LANG"))
	}

	if v := strings.TrimSpace(getenv(EnvDisplayProfileImage)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvDisplayProfileImage, v)
		}
		cfg.DisplayProfileImage = &b
	}

	if v := strings.TrimSpace(getenv(EnvMaxSessions)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidConfig, EnvMaxSessions, v)
		}
		cfg.MaxSessions = n
	}

	if v := strings.TrimSpace(getenv(EnvIngestWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrInvalidConfig, EnvIngestWorkers, v)
		}
		cfg.IngestWorkers = n
	}

	return cfg, nil
}

// localeFromLang turns a POSIX locale such as ja_JP.UTF-8 into ja-JP
func localeFromLang(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "C" || lang == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(lang, "_", "-")
}

// ResolveDBPath expands a leading ~ and creates the parent directory.
// ":memory:" is returned unchanged.
func (c *Config) ResolveDBPath() (string, error) {
	path := c.DBPath
	if path == "" {
		path = DefaultDBPath
	}
	if path == ":memory:" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}

// BoolSource reads boolean preferences
type BoolSource interface {
	Bool(key string, def bool) bool
}

// Preferences layers the environment overrides over base, which is usually
// the preferences table of the store. base may be nil.
func (c *Config) Preferences(base BoolSource) BoolSource {
	overrides := map[string]bool{}
	if c.DisplayProfileImage != nil {
		overrides[PreferenceDisplayProfileImage] = *c.DisplayProfileImage
	}
	return overlay{base: base, overrides: overrides}
}

type overlay struct {
	base      BoolSource
	overrides map[string]bool
}

func (o overlay) Bool(key string, def bool) bool {
	if v, ok := o.overrides[key]; ok {
		return v
	}
	if o.base == nil {
		return def
	}
	return o.base.Bool(key, def)
}
