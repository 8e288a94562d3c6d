package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts/engines"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/tts/sentence"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the aloud configuration file.
type Config struct {
	// Provider selects and configures the synthesis backend
	Provider itts.Settings `yaml:"provider" mapstructure:"provider"`

	// Cache settings
	Cache cache.Config `yaml:"cache" mapstructure:"cache"`

	// Playback settings
	Playback PlaybackConfig `yaml:"playback" mapstructure:"playback"`

	// Log settings
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// PlaybackConfig holds playback-related settings
type PlaybackConfig struct {
	// Format requested from the provider. Empty picks the provider's default.
	Format itts.AudioFormat `yaml:"format" mapstructure:"format"`

	// Number of chunks kept synthesized ahead of the cursor
	PrefetchDepth int `yaml:"prefetch_depth" mapstructure:"prefetch_depth"`

	// Segments shorter than this are merged with their neighbours
	MinChunkLength int `yaml:"min_chunk_length" mapstructure:"min_chunk_length"`

	// Per-call synthesis timeout
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" mapstructure:"synthesis_timeout"`

	// Output device sample rate (44100 or 48000)
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`

	// Provider calls in flight during export
	ExportConcurrency int `yaml:"export_concurrency" mapstructure:"export_concurrency"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// debug, info, warn or error
	Level string `yaml:"level" mapstructure:"level"`

	// Log file. Empty uses the default location in the data directory.
	File string `yaml:"file" mapstructure:"file"`
}

// EnvOverrides are settings read from the environment. They win over the
// config file.
type EnvOverrides struct {
	APIKey   string `env:"ALOUD_API_KEY"`
	Provider string `env:"ALOUD_PROVIDER"`
	Voice    string `env:"ALOUD_VOICE"`
	CacheDir string `env:"ALOUD_CACHE_DIR"`
	LogLevel string `env:"ALOUD_LOG_LEVEL"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: itts.Settings{
			Provider: itts.ProviderOpenAI,
			Speed:    1.0,
		},
		Cache: cache.DefaultConfig(),
		Playback: PlaybackConfig{
			PrefetchDepth:     3,
			MinChunkLength:    sentence.DefaultMinLength,
			SynthesisTimeout:  60 * time.Second,
			SampleRate:        44100,
			ExportConcurrency: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the configuration at path on top of the defaults. A
// missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("No config file found, using defaults", "path", path)
			return config, config.expandPaths()
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Debug("Loaded configuration", "path", path)
	return config, config.expandPaths()
}

// SaveConfig saves the configuration to path
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("Saved configuration", "path", path)
	return nil
}

// ApplyEnv reads EnvOverrides from the environment into the config.
func (c *Config) ApplyEnv() error {
	overrides, err := env.ParseAs[EnvOverrides]()
	if err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	c.applyOverrides(overrides)
	return c.expandPaths()
}

func (c *Config) applyOverrides(o EnvOverrides) {
	if o.APIKey != "" {
		c.Provider.APIKey = o.APIKey
	}
	if o.Provider != "" {
		c.Provider.Provider = itts.ProviderName(strings.ToLower(o.Provider))
	}
	if o.Voice != "" {
		c.Provider.Voice = o.Voice
	}
	if o.CacheDir != "" {
		c.Cache.Dir = o.CacheDir
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Cache.Dir, &c.Log.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration without touching the network.
func (c *Config) Validate() error {
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if c.Playback.Format != "" {
		if _, err := itts.ParseAudioFormat(string(c.Playback.Format)); err != nil {
			return fmt.Errorf("playback.format: %w: %q", err, c.Playback.Format)
		}
	}
	if c.Playback.PrefetchDepth < 0 {
		return fmt.Errorf("playback.prefetch_depth must not be negative, got %d", c.Playback.PrefetchDepth)
	}
	if c.Playback.MinChunkLength < 0 {
		return fmt.Errorf("playback.min_chunk_length must not be negative, got %d", c.Playback.MinChunkLength)
	}
	if c.Playback.ExportConcurrency < 0 {
		return fmt.Errorf("playback.export_concurrency must not be negative, got %d", c.Playback.ExportConcurrency)
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendDisk, cache.BackendSQLite, cache.BackendTiered, "":
	default:
		return fmt.Errorf("cache: %w: %q", cache.ErrUnknownBackend, c.Cache.Backend)
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}

// AudioFormat returns the configured format, or the provider's default.
func (c *Config) AudioFormat() itts.AudioFormat {
	if c.Playback.Format != "" {
		return c.Playback.Format
	}
	return engines.DefaultFormat(c.Provider.Provider)
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig() string {
	config := DefaultConfig()
	config.Provider.Model = "gpt-4o-mini-tts"
	config.Provider.Voice = "shimmer"
	config.Cache.Dir = "~/.cache/aloud"

	data, _ := yaml.Marshal(config)

	header := `# aloud configuration
#
# provider.name selects the synthesis backend: openai, google or mock.
# The API key may also be supplied with ALOUD_API_KEY.
#
# cache.backend is one of memory, disk, sqlite or tiered.

`
	return header + string(data)
}
