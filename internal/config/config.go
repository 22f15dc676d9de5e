// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vmunix/librarr/internal/library"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Downloads   DownloadsConfig   `toml:"downloads"`
	Processing  ProcessingConfig  `toml:"processing"`
	Matching    MatchingConfig    `toml:"matching"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	TMDB        TMDBConfig        `toml:"tmdb"`
	Libraries   []LibraryConfig   `toml:"libraries"`
}

type ServerConfig struct {
	Listen   string `toml:"listen"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"` // empty logs to stderr only
	DataDir  string `toml:"data_dir"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type DownloadsConfig struct {
	Root         string        `toml:"root"`
	PollInterval time.Duration `toml:"poll_interval"`
	// StuckAfter is how long a download may sit in processing before the
	// poller hands it to the processor again.
	StuckAfter time.Duration `toml:"stuck_after"`
}

type ProcessingConfig struct {
	GroupWorkers           int           `toml:"group_workers"`
	BatchDelay             time.Duration `toml:"batch_delay"`
	ExpandTimeout          time.Duration `toml:"expand_timeout"`
	DiscoverTimeout        time.Duration `toml:"discover_timeout"`
	MaxConcurrentDownloads int           `toml:"max_concurrent_downloads"`
	ExpandArchives         bool          `toml:"expand_archives"`
	UnrarPath              string        `toml:"unrar_path"`
	SevenZipPath           string        `toml:"sevenzip_path"`
}

// MatchingConfig overrides similarity thresholds. Zero keeps the default.
type MatchingConfig struct {
	ShowName   float64 `toml:"show_name"`
	MovieTitle float64 `toml:"movie_title"`
	Album      float64 `toml:"album"`
	Artist     float64 `toml:"artist"`
	Track      float64 `toml:"track"`
}

type MaintenanceConfig struct {
	Enabled   bool          `toml:"enabled"`
	Interval  time.Duration `toml:"interval"`
	Orphans   bool          `toml:"orphans"`
	EmptyDirs bool          `toml:"empty_dirs"`
}

type TMDBConfig struct {
	APIKey   string        `toml:"api_key"`
	CacheTTL time.Duration `toml:"cache_ttl"`
}

type LibraryConfig struct {
	Name              string `toml:"name"`
	Type              string `toml:"type"`
	Root              string `toml:"root"`
	NamingPattern     string `toml:"naming_pattern"`
	Organize          *bool  `toml:"organize"` // unset means true
	TransferMode      string `toml:"transfer_mode"`
	AutoAddDiscovered bool   `toml:"auto_add_discovered"`
}

// Library converts the entry into a library record ready to be upserted.
func (l LibraryConfig) Library() *library.Library {
	organize := true
	if l.Organize != nil {
		organize = *l.Organize
	}
	mode := library.TransferMode(l.TransferMode)
	if mode == "" {
		mode = library.TransferCopy
	}
	return &library.Library{
		Name:              l.Name,
		Type:              library.Type(l.Type),
		Root:              l.Root,
		NamingPattern:     l.NamingPattern,
		Organize:          organize,
		TransferMode:      mode,
		AutoAddDiscovered: l.AutoAddDiscovered,
	}
}

// SweepLockPath is the lock file that serializes maintenance sweeps.
func (c *Config) SweepLockPath() string {
	return filepath.Join(c.Server.DataDir, "sweep.lock")
}

// Load reads, substitutes, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return cfg, nil
}

// LoadWithoutValidation reads and parses the configuration file and applies
// defaults, but does not validate it.
func LoadWithoutValidation(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))
	if len(missing) > 0 {
		return nil, &ConfigError{Path: path, Missing: missing}
	}

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8585"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = DefaultDataDir()
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Server.DataDir, "librarr.db")
	}

	if c.Downloads.PollInterval == 0 {
		c.Downloads.PollInterval = time.Minute
	}
	if c.Downloads.StuckAfter == 0 {
		c.Downloads.StuckAfter = 30 * time.Minute
	}

	p := &c.Processing
	if p.GroupWorkers == 0 {
		p.GroupWorkers = 2
	}
	if p.BatchDelay == 0 {
		p.BatchDelay = 2 * time.Second
	}
	if p.ExpandTimeout == 0 {
		p.ExpandTimeout = 10 * time.Minute
	}
	if p.DiscoverTimeout == 0 {
		p.DiscoverTimeout = 15 * time.Second
	}
	if p.MaxConcurrentDownloads == 0 {
		p.MaxConcurrentDownloads = 2
	}

	if c.Maintenance.Interval == 0 {
		c.Maintenance.Interval = 24 * time.Hour
	}
	if c.TMDB.CacheTTL == 0 {
		c.TMDB.CacheTTL = 24 * time.Hour
	}
}

// DefaultDataDir returns the XDG-compliant default data directory.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "./data"
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "librarr")
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// substituteEnvVars replaces variable references with their values. A
// reference that cannot be resolved is left as is and reported in missing,
// together with its message for the :? form.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, op, arg := parts[1], parts[2], parts[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case "-":
			if value == "" {
				return arg
			}
			return value
		case "?":
			if value == "" {
				missing = append(missing, name+": "+strings.TrimSpace(arg))
				return match
			}
			return value
		}
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	return out, missing
}
