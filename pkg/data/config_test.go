package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/listrank/pkg/ranking"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "listrank.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestDefaultConfigs(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		assert.NotZero(t, config.Import)
		assert.NotZero(t, config.Ranking)
		assert.NotZero(t, config.Images)
		assert.NotZero(t, config.Storage)
		assert.NotZero(t, config.Export)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultImportConfig", func(t *testing.T) {
		config := DefaultImportConfig()

		assert.Equal(t, "auto", config.Format)
		assert.Equal(t, []string{"Completed", "Watching"}, config.AnimeStatuses)
		assert.Equal(t, []string{"Completed", "Reading"}, config.MangaStatuses)
		assert.True(t, config.UseExistingRatings)
		assert.Equal(t, ",", config.Delimiter)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultRankingConfig", func(t *testing.T) {
		config := DefaultRankingConfig()

		assert.Equal(t, "zscore", config.DisplayMode)
		assert.Equal(t, 0.7, config.PriorCoverageThreshold)
		assert.Equal(t, 0.6, config.PriorReduction)
		assert.True(t, config.StrengthBias)
		assert.Zero(t, config.Seed)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultImagesConfig", func(t *testing.T) {
		config := DefaultImagesConfig()

		assert.True(t, config.Enabled)
		assert.Equal(t, "https://api.jikan.moe/v4", config.BaseURL)
		assert.Equal(t, 400*time.Millisecond, config.RequestInterval)
		assert.Equal(t, 6, config.Prefetch)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultStorageConfig", func(t *testing.T) {
		config := DefaultStorageConfig()

		assert.Equal(t, "file", config.Backend)
		assert.Equal(t, 7*24*time.Hour, config.MaxAge)
		assert.True(t, config.AutoSave)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultExportConfig", func(t *testing.T) {
		config := DefaultExportConfig()

		assert.Equal(t, "csv", config.Format)
		assert.Equal(t, 1, config.RoundDecimals)

		assert.NoError(t, config.Validate())
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown import format",
			mutate:  func(c *Config) { c.Import.Format = "xlsx" },
			wantErr: ErrInvalidImportConfig,
		},
		{
			name: "no statuses selected",
			mutate: func(c *Config) {
				c.Import.AnimeStatuses = nil
				c.Import.MangaStatuses = nil
			},
			wantErr: ErrInvalidImportConfig,
		},
		{
			name:    "unusual delimiter",
			mutate:  func(c *Config) { c.Import.Delimiter = "##" },
			wantErr: ErrInvalidImportConfig,
		},
		{
			name:    "unknown display mode",
			mutate:  func(c *Config) { c.Ranking.DisplayMode = "percentile" },
			wantErr: ranking.ErrInvalidDisplayMode,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Ranking.PriorCoverageThreshold = 1.5 },
			wantErr: ranking.ErrInvalidThreshold,
		},
		{
			name:    "zero reduction",
			mutate:  func(c *Config) { c.Ranking.PriorReduction = 0 },
			wantErr: ErrInvalidRankingConfig,
		},
		{
			name:    "images base url without scheme",
			mutate:  func(c *Config) { c.Images.BaseURL = "api.jikan.moe/v4" },
			wantErr: ErrInvalidImagesConfig,
		},
		{
			name:    "negative image interval",
			mutate:  func(c *Config) { c.Images.RequestInterval = -time.Second },
			wantErr: ErrInvalidImagesConfig,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: ErrInvalidStorageConfig,
		},
		{
			name:    "zero max age",
			mutate:  func(c *Config) { c.Storage.MaxAge = 0 },
			wantErr: ErrInvalidStorageConfig,
		},
		{
			name:    "unknown export format",
			mutate:  func(c *Config) { c.Export.Format = "yaml" },
			wantErr: ErrInvalidExportConfig,
		},
		{
			name:    "too many decimals",
			mutate:  func(c *Config) { c.Export.RoundDecimals = 5 },
			wantErr: ErrInvalidExportConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			err := config.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("disabled images skip validation", func(t *testing.T) {
		config := DefaultConfig()
		config.Images.Enabled = false
		config.Images.BaseURL = ""
		assert.NoError(t, config.Validate())
	})
}

func TestRankingEngineConfig(t *testing.T) {
	config := DefaultRankingConfig()
	config.DisplayMode = "distribution"
	config.Seed = 99

	engineConfig, err := config.EngineConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ranking.DisplayDistribution, engineConfig.DisplayMode)
	assert.Equal(t, uint64(99), engineConfig.Seed)
	assert.Equal(t, 0.6, engineConfig.PriorReduction)
}

func TestYAMLLoading(t *testing.T) {
	t.Run("LoadValidYAML", func(t *testing.T) {
		filename := writeConfigFile(t, `
import:
  format: mal
  anime_statuses: [Completed, Dropped]
  use_existing_ratings: false

ranking:
  display_mode: distribution
  seed: 7

images:
  enabled: false
  request_interval: 1s

storage:
  backend: sqlite
  path: /tmp/listrank.db
  max_age: 48h

export:
  format: mal-xml
  round_decimals: 0
`)

		config, err := LoadFromFile(filename)
		require.NoError(t, err)

		assert.Equal(t, "mal", config.Import.Format)
		assert.Equal(t, []string{"Completed", "Dropped"}, config.Import.AnimeStatuses)
		assert.False(t, config.Import.UseExistingRatings)
		assert.Equal(t, "distribution", config.Ranking.DisplayMode)
		assert.Equal(t, uint64(7), config.Ranking.Seed)
		assert.False(t, config.Images.Enabled)
		assert.Equal(t, time.Second, config.Images.RequestInterval)
		assert.Equal(t, "sqlite", config.Storage.Backend)
		assert.Equal(t, 48*time.Hour, config.Storage.MaxAge)
		assert.Equal(t, "mal-xml", config.Export.Format)
		assert.Equal(t, 0, config.Export.RoundDecimals)
	})

	t.Run("LoadPartialYAML", func(t *testing.T) {
		filename := writeConfigFile(t, `
ranking:
  strength_bias: false
`)

		config, err := LoadFromFile(filename)
		require.NoError(t, err)

		assert.False(t, config.Ranking.StrengthBias)

		// defaults survive
		assert.Equal(t, "zscore", config.Ranking.DisplayMode)
		assert.Equal(t, []string{"Completed", "Reading"}, config.Import.MangaStatuses)
		assert.Equal(t, 7*24*time.Hour, config.Storage.MaxAge)
	})

	t.Run("LoadNonexistentFile", func(t *testing.T) {
		config, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Nil(t, config)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("LoadInvalidYAML", func(t *testing.T) {
		filename := writeConfigFile(t, `
ranking:
  display_mode: [unclosed
`)

		config, err := LoadFromFile(filename)
		assert.Nil(t, config)
		assert.ErrorIs(t, err, ErrConfigParseError)
	})

	t.Run("LoadInvalidValues", func(t *testing.T) {
		filename := writeConfigFile(t, `
export:
  format: pdf
`)

		config, err := LoadFromFile(filename)
		assert.Nil(t, config)
		assert.ErrorIs(t, err, ErrInvalidExportConfig)
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("LISTRANK_IMPORT_FORMAT", "csv")
		t.Setenv("LISTRANK_IMPORT_ANIME_STATUSES", "Completed, On-Hold ,")
		t.Setenv("LISTRANK_IMPORT_USE_EXISTING_RATINGS", "false")
		t.Setenv("LISTRANK_RANKING_DISPLAY_MODE", "distribution")
		t.Setenv("LISTRANK_RANKING_SEED", "1234")
		t.Setenv("LISTRANK_IMAGES_ENABLED", "false")
		t.Setenv("LISTRANK_STORAGE_BACKEND", "sqlite")
		t.Setenv("LISTRANK_STORAGE_MAX_AGE", "72h")
		t.Setenv("LISTRANK_EXPORT_FORMAT", "json")
		t.Setenv("LISTRANK_EXPORT_ROUND_DECIMALS", "2")

		config, err := LoadWithEnvironment("")
		require.NoError(t, err)

		assert.Equal(t, "csv", config.Import.Format)
		assert.Equal(t, []string{"Completed", "On-Hold"}, config.Import.AnimeStatuses)
		assert.False(t, config.Import.UseExistingRatings)
		assert.Equal(t, "distribution", config.Ranking.DisplayMode)
		assert.Equal(t, uint64(1234), config.Ranking.Seed)
		assert.False(t, config.Images.Enabled)
		assert.Equal(t, "sqlite", config.Storage.Backend)
		assert.Equal(t, 72*time.Hour, config.Storage.MaxAge)
		assert.Equal(t, "json", config.Export.Format)
		assert.Equal(t, 2, config.Export.RoundDecimals)
	})

	t.Run("InvalidEnvironmentValues", func(t *testing.T) {
		t.Setenv("LISTRANK_RANKING_SEED", "not_a_number")
		t.Setenv("LISTRANK_IMAGES_ENABLED", "not_boolean")

		// invalid values are ignored
		config, err := LoadWithEnvironment("")
		require.NoError(t, err)

		assert.Zero(t, config.Ranking.Seed)
		assert.True(t, config.Images.Enabled)
	})

	t.Run("OverrideProducesInvalidConfig", func(t *testing.T) {
		t.Setenv("LISTRANK_STORAGE_BACKEND", "postgres")

		_, err := LoadWithEnvironment("")
		assert.ErrorIs(t, err, ErrInvalidStorageConfig)
	})
}

func TestSaveToFile(t *testing.T) {
	config := DefaultConfig()
	config.Ranking.DisplayMode = "distribution"
	config.Images.RequestInterval = 750 * time.Millisecond
	config.Storage.Backend = "sqlite"

	filename := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, config.SaveToFile(filename))

	loaded, err := LoadFromFile(filename)
	require.NoError(t, err)
	assert.Equal(t, config, *loaded)
}

func TestConfigurationIntegration(t *testing.T) {
	config := DefaultConfig()
	config.Import.Format = "mal"
	config.Export.Format = "text"

	filename := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, config.SaveToFile(filename))

	t.Setenv("LISTRANK_EXPORT_FORMAT", "mal-json")

	loaded, err := LoadWithEnvironment(filename)
	require.NoError(t, err)

	assert.Equal(t, "mal", loaded.Import.Format)
	assert.Equal(t, "mal-json", loaded.Export.Format)

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		loaded, err := LoadWithEnvironment(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "auto", loaded.Import.Format)
	})
}
