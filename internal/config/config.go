package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	// Policy is the default segmentation policy: time_anchored, field_completion, or grouped.
	Policy string `json:"policy,omitempty"`

	// DropLinesMatching removes raw input lines matching this case-insensitive pattern.
	DropLinesMatching string `json:"drop_lines_matching,omitempty"`

	// DropRecordsMatching removes every record that a matching line contributed to.
	// Setting it to "\\bSAW\\b" skips Sabiha Gökçen pickups.
	DropRecordsMatching string `json:"drop_records_matching,omitempty"`

	// IncludeBOM prepends a UTF-8 BOM to rendered tables so spreadsheets detect the encoding.
	// Exported .tsv files always carry one.
	IncludeBOM bool `json:"include_bom,omitempty"`

	// MaxInputChars caps the size of a session buffer and of a single convert request.
	MaxInputChars int `json:"max_input_chars"`

	// VocabularyPath points to a TOML file whose word lists extend the built-in vocabulary.
	VocabularyPath string `json:"vocabulary_path,omitempty"`

	// Store selects the session backend: sqlite (default), postgres, or memory.
	Store string `json:"store,omitempty"`

	// PostgresDSN is the connection string used when Store is postgres.
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	// AllowedPaths is an allowlist of directories for export.
	// Paths outside ~/.transferbot/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is console or json.
	LogFormat string `json:"log_format,omitempty"`

	// LogFile, when set, receives a rotated copy of the log.
	LogFile string `json:"log_file,omitempty"`

	// MetricsFile, when set, receives periodic metric and trace dumps.
	MetricsFile string `json:"metrics_file,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Policy:        "time_anchored",
		MaxInputChars: 200000,
		Store:         StoreSQLite,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.transferbot.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.transferbot) and repo (.transferbot) directories.
// Repo config is found by walking upward from startDir to find the nearest .transferbot/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .transferbot/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".transferbot", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Policy:              pickString(base.Policy, overlay.Policy),
		DropLinesMatching:   pickString(base.DropLinesMatching, overlay.DropLinesMatching),
		DropRecordsMatching: pickString(base.DropRecordsMatching, overlay.DropRecordsMatching),
		VocabularyPath:      pickString(base.VocabularyPath, overlay.VocabularyPath),
		Store:               pickString(base.Store, overlay.Store),
		PostgresDSN:         pickString(base.PostgresDSN, overlay.PostgresDSN),
		LogLevel:            pickString(base.LogLevel, overlay.LogLevel),
		LogFormat:           pickString(base.LogFormat, overlay.LogFormat),
		LogFile:             pickString(base.LogFile, overlay.LogFile),
		MetricsFile:         pickString(base.MetricsFile, overlay.MetricsFile),
	}

	// Scalars: overlay wins if non-zero, else base
	result.MaxInputChars = overlay.MaxInputChars
	if result.MaxInputChars == 0 {
		result.MaxInputChars = base.MaxInputChars
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.IncludeBOM = base.IncludeBOM || overlay.IncludeBOM

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
