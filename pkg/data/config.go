// Package data provides configuration management, list import/export and session
// persistence for the listrank application. It handles MyAnimeList and CSV lists,
// ranking engine settings, image lookups, storage backends and export options
// with validation and environment variable support.
package data

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for configuration validation
var (
	ErrInvalidImportConfig  = errors.New("invalid import configuration")
	ErrInvalidRankingConfig = errors.New("invalid ranking configuration")
	ErrInvalidImagesConfig  = errors.New("invalid images configuration")
	ErrInvalidStorageConfig = errors.New("invalid storage configuration")
	ErrInvalidExportConfig  = errors.New("invalid export configuration")
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrConfigParseError     = errors.New("failed to parse configuration file")
)

// Config is the top-level application configuration
type Config struct {
	Import  ImportConfig  `yaml:"import" json:"import"`
	Ranking RankingConfig `yaml:"ranking" json:"ranking"`
	Images  ImagesConfig  `yaml:"images" json:"images"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Export  ExportConfig  `yaml:"export" json:"export"`
	UI      UIConfig      `yaml:"ui" json:"ui"`
}

// ImportConfig defines which list entries become ranking items
type ImportConfig struct {
	Format             string   `yaml:"format" json:"format"`                             // auto, mal or csv
	AnimeStatuses      []string `yaml:"anime_statuses" json:"anime_statuses"`             // MAL statuses kept for anime lists
	MangaStatuses      []string `yaml:"manga_statuses" json:"manga_statuses"`             // MAL statuses kept for manga lists
	UseExistingRatings bool     `yaml:"use_existing_ratings" json:"use_existing_ratings"` // Seed strengths from current scores
	Delimiter          string   `yaml:"delimiter" json:"delimiter"`                       // CSV field separator
}

// RankingConfig holds engine tunables
type RankingConfig struct {
	DisplayMode            string  `yaml:"display_mode" json:"display_mode"`                         // zscore or distribution
	PriorCoverageThreshold float64 `yaml:"prior_coverage_threshold" json:"prior_coverage_threshold"` // Share of rated items that shortens the session
	PriorReduction         float64 `yaml:"prior_reduction" json:"prior_reduction"`                   // Budget multiplier for well-rated lists
	StrengthBias           bool    `yaml:"strength_bias" json:"strength_bias"`                       // Pair similar prior strengths on alternate rounds
	Seed                   uint64  `yaml:"seed" json:"seed"`                                         // Random seed, 0 for random
}

// ImagesConfig controls cover art lookups
type ImagesConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`                 // Jikan compatible API root
	RequestInterval time.Duration `yaml:"request_interval" json:"request_interval"` // Minimum gap between requests
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`                   // Per request timeout
	Prefetch        int           `yaml:"prefetch" json:"prefetch"`                 // Upcoming items to warm
}

// StorageConfig selects where progress is saved
type StorageConfig struct {
	Backend  string        `yaml:"backend" json:"backend"`     // file or sqlite
	Path     string        `yaml:"path" json:"path"`           // Directory (file) or database file (sqlite)
	MaxAge   time.Duration `yaml:"max_age" json:"max_age"`     // Saved progress older than this is discarded
	AutoSave bool          `yaml:"auto_save" json:"auto_save"` // Save after every comparison
}

// ExportConfig holds output format settings
type ExportConfig struct {
	Format        string `yaml:"format" json:"format"`                 // csv, json, text, mal-json or mal-xml
	RoundDecimals int    `yaml:"round_decimals" json:"round_decimals"` // Decimal places for ratings
}

// UIConfig holds terminal interface preferences
type UIConfig struct {
	ShowProgress bool `yaml:"show_progress" json:"show_progress"` // Display the progress bar
	ShowAccuracy bool `yaml:"show_accuracy" json:"show_accuracy"` // Display the accuracy estimate
}

// Supported values
var (
	validImportFormats  = []string{"auto", "mal", "csv"}
	validStorageBackend = []string{"file", "sqlite"}
	validExportFormats  = []string{"csv", "json", "text", "mal-json", "mal-xml"}
	validDelimiters     = []string{",", ";", "\t", "|"}
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Import:  DefaultImportConfig(),
		Ranking: DefaultRankingConfig(),
		Images:  DefaultImagesConfig(),
		Storage: DefaultStorageConfig(),
		Export:  DefaultExportConfig(),
		UI:      DefaultUIConfig(),
	}
}

// DefaultImportConfig returns import defaults
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Format:             "auto",
		AnimeStatuses:      []string{"Completed", "Watching"},
		MangaStatuses:      []string{"Completed", "Reading"},
		UseExistingRatings: true,
		Delimiter:          ",",
	}
}

// DefaultRankingConfig returns engine defaults
func DefaultRankingConfig() RankingConfig {
	engine := ranking.DefaultConfig()
	return RankingConfig{
		DisplayMode:            string(engine.DisplayMode),
		PriorCoverageThreshold: engine.PriorCoverageThreshold,
		PriorReduction:         engine.PriorReduction,
		StrengthBias:           engine.StrengthBias,
	}
}

// DefaultImagesConfig returns image lookup defaults
func DefaultImagesConfig() ImagesConfig {
	return ImagesConfig{
		Enabled:         true,
		BaseURL:         "https://api.jikan.moe/v4",
		RequestInterval: 400 * time.Millisecond,
		Timeout:         10 * time.Second,
		Prefetch:        6,
	}
}

// DefaultStorageConfig returns persistence defaults
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:  "file",
		Path:     "",
		MaxAge:   7 * 24 * time.Hour,
		AutoSave: true,
	}
}

// DefaultExportConfig returns export format defaults
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Format:        "csv",
		RoundDecimals: 1,
	}
}

// DefaultUIConfig returns TUI interface defaults
func DefaultUIConfig() UIConfig {
	return UIConfig{
		ShowProgress: true,
		ShowAccuracy: true,
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import config validation failed: %w", err)
	}
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("ranking config validation failed: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images config validation failed: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config validation failed: %w", err)
	}
	return nil
}

// Validate checks that import configuration is valid
func (c *ImportConfig) Validate() error {
	if !contains(validImportFormats, c.Format) {
		return fmt.Errorf("%w: format '%s' must be one of: %s", ErrInvalidImportConfig, c.Format, strings.Join(validImportFormats, ", "))
	}
	if len(c.AnimeStatuses) == 0 && len(c.MangaStatuses) == 0 {
		return fmt.Errorf("%w: at least one list status must be selected", ErrInvalidImportConfig)
	}
	if !contains(validDelimiters, c.Delimiter) {
		return fmt.Errorf("%w: delimiter '%s' is not a common CSV separator", ErrInvalidImportConfig, c.Delimiter)
	}
	return nil
}

// Validate checks that ranking configuration is valid
func (r *RankingConfig) Validate() error {
	if _, err := r.EngineConfig(nil); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRankingConfig, err)
	}
	return nil
}

// EngineConfig converts the section into ranking engine settings
func (r *RankingConfig) EngineConfig(logger *slog.Logger) (ranking.Config, error) {
	config := ranking.Config{
		DisplayMode:            ranking.DisplayMode(r.DisplayMode),
		PriorCoverageThreshold: r.PriorCoverageThreshold,
		PriorReduction:         r.PriorReduction,
		StrengthBias:           r.StrengthBias,
		Seed:                   r.Seed,
		Logger:                 logger,
	}
	return config, config.Validate()
}

// Validate checks that images configuration is valid
func (i *ImagesConfig) Validate() error {
	if !i.Enabled {
		return nil
	}
	if !strings.HasPrefix(i.BaseURL, "http://") && !strings.HasPrefix(i.BaseURL, "https://") {
		return fmt.Errorf("%w: base_url '%s' must be an http(s) URL", ErrInvalidImagesConfig, i.BaseURL)
	}
	if i.RequestInterval < 0 {
		return fmt.Errorf("%w: request_interval must not be negative, got %v", ErrInvalidImagesConfig, i.RequestInterval)
	}
	if i.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidImagesConfig, i.Timeout)
	}
	if i.Prefetch < 0 {
		return fmt.Errorf("%w: prefetch must not be negative, got %d", ErrInvalidImagesConfig, i.Prefetch)
	}
	return nil
}

// Validate checks that storage configuration is valid
func (s *StorageConfig) Validate() error {
	if !contains(validStorageBackend, s.Backend) {
		return fmt.Errorf("%w: backend '%s' must be one of: %s", ErrInvalidStorageConfig, s.Backend, strings.Join(validStorageBackend, ", "))
	}
	if s.MaxAge <= 0 {
		return fmt.Errorf("%w: max_age must be positive, got %v", ErrInvalidStorageConfig, s.MaxAge)
	}
	return nil
}

// Validate checks that export configuration is valid
func (e *ExportConfig) Validate() error {
	if !contains(validExportFormats, e.Format) {
		return fmt.Errorf("%w: format '%s' must be one of: %s", ErrInvalidExportConfig, e.Format, strings.Join(validExportFormats, ", "))
	}
	if e.RoundDecimals < 0 || e.RoundDecimals > 4 {
		return fmt.Errorf("%w: round_decimals %d must be between 0 and 4", ErrInvalidExportConfig, e.RoundDecimals)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	// Unmarshal over defaults so omitted keys keep their default values
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filename, err)
	}

	return &config, nil
}

// LoadWithEnvironment loads configuration from file and applies environment variable overrides
func LoadWithEnvironment(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		fileConfig, err := LoadFromFile(filename)
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
		if err == nil {
			config = *fileConfig
		}
	}

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid final configuration: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

// applyEnvironmentOverrides applies LISTRANK_* environment variable overrides
func applyEnvironmentOverrides(config *Config) {
	// Import overrides
	if val := os.Getenv("LISTRANK_IMPORT_FORMAT"); val != "" {
		config.Import.Format = val
	}
	if val := os.Getenv("LISTRANK_IMPORT_ANIME_STATUSES"); val != "" {
		config.Import.AnimeStatuses = splitList(val)
	}
	if val := os.Getenv("LISTRANK_IMPORT_MANGA_STATUSES"); val != "" {
		config.Import.MangaStatuses = splitList(val)
	}
	if val := os.Getenv("LISTRANK_IMPORT_USE_EXISTING_RATINGS"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Import.UseExistingRatings = parsed
		}
	}

	// Ranking overrides
	if val := os.Getenv("LISTRANK_RANKING_DISPLAY_MODE"); val != "" {
		config.Ranking.DisplayMode = val
	}
	if val := os.Getenv("LISTRANK_RANKING_SEED"); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.Ranking.Seed = parsed
		}
	}
	if val := os.Getenv("LISTRANK_RANKING_PRIOR_REDUCTION"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Ranking.PriorReduction = parsed
		}
	}

	// Images overrides
	if val := os.Getenv("LISTRANK_IMAGES_ENABLED"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Images.Enabled = parsed
		}
	}
	if val := os.Getenv("LISTRANK_IMAGES_BASE_URL"); val != "" {
		config.Images.BaseURL = val
	}
	if val := os.Getenv("LISTRANK_IMAGES_REQUEST_INTERVAL"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			config.Images.RequestInterval = parsed
		}
	}

	// Storage overrides
	if val := os.Getenv("LISTRANK_STORAGE_BACKEND"); val != "" {
		config.Storage.Backend = val
	}
	if val := os.Getenv("LISTRANK_STORAGE_PATH"); val != "" {
		config.Storage.Path = val
	}
	if val := os.Getenv("LISTRANK_STORAGE_MAX_AGE"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			config.Storage.MaxAge = parsed
		}
	}

	// Export overrides
	if val := os.Getenv("LISTRANK_EXPORT_FORMAT"); val != "" {
		config.Export.Format = val
	}
	if val := os.Getenv("LISTRANK_EXPORT_ROUND_DECIMALS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Export.RoundDecimals = parsed
		}
	}
}

func splitList(val string) []string {
	var result []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
