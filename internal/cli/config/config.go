// Package config loads CLI configuration from defaults, a YAML file,
// environment variables, and flags, in rising precedence.
package config

import "time"

// Default configuration values.
const (
	DefaultDatabase    = "tankrank.db"
	DefaultOutput      = "auto" // auto-detect: TTY=text, piped=markdown
	DefaultServerPort  = 8478
	DefaultSyncTimeout = 15 * time.Second
)

// Config holds all CLI configuration options.
type Config struct {
	Database   string       `koanf:"database"`
	Dictionary string       `koanf:"dictionary"`
	MaxScore   int          `koanf:"max_score"`
	Verbose    bool         `koanf:"verbose"`
	Output     string       `koanf:"output"`
	Import     ImportConfig `koanf:"import"`
	Server     ServerConfig `koanf:"server"`
	Sync       SyncConfig   `koanf:"sync"`
}

// ImportConfig tunes CSV imports.
type ImportConfig struct {
	// RowLimit caps data rows per import; zero uses the importer default.
	RowLimit int `koanf:"row_limit"`
}

// ServerConfig tunes the snapshot server.
type ServerConfig struct {
	Port int `koanf:"port"`
	// WatchDictionary hot-reloads the resolver dictionary while serving.
	WatchDictionary bool `koanf:"watch_dictionary"`
}

// SyncConfig wires the remote roster and catalog sync jobs.
type SyncConfig struct {
	ApplicationID string `koanf:"application_id"`
	// BaseURLs overrides the per-region API hosts, mainly for tests.
	BaseURLs map[string]string `koanf:"base_urls"`
	// Clans maps each region onto the clan ids whose rosters to pull.
	Clans       map[string][]int64 `koanf:"clans"`
	Timeout     time.Duration      `koanf:"timeout"`
	MaxAttempts int                `koanf:"max_attempts"`
}
