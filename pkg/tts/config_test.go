package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Provider.Provider != itts.ProviderOpenAI {
		t.Errorf("default provider = %q, want openai", config.Provider.Provider)
	}
	if config.Playback.PrefetchDepth != 3 {
		t.Errorf("default prefetch depth = %d, want 3", config.Playback.PrefetchDepth)
	}
	if config.Playback.MinChunkLength != 20 {
		t.Errorf("default min chunk length = %d, want 20", config.Playback.MinChunkLength)
	}
	if config.Cache.Backend != cache.BackendTiered {
		t.Errorf("default cache backend = %q, want tiered", config.Cache.Backend)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Playback.PrefetchDepth != DefaultConfig().Playback.PrefetchDepth {
		t.Error("missing file did not yield defaults")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aloud.yml")
	content := `provider:
  name: google
  voice: en-US-Neural2-C
  speed: 1.25
cache:
  backend: sqlite
  dir: /tmp/aloud-cache
  max_age: 48h
playback:
  format: wav
  prefetch_depth: 5
  synthesis_timeout: 15s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Provider.Provider != itts.ProviderGoogle {
		t.Errorf("provider = %q, want google", config.Provider.Provider)
	}
	if config.Provider.Voice != "en-US-Neural2-C" {
		t.Errorf("voice = %q", config.Provider.Voice)
	}
	if config.Provider.Speed != 1.25 {
		t.Errorf("speed = %v, want 1.25", config.Provider.Speed)
	}
	if config.Cache.Backend != cache.BackendSQLite || config.Cache.Dir != "/tmp/aloud-cache" {
		t.Errorf("cache = %+v", config.Cache)
	}
	if config.Cache.MaxAge != 48*time.Hour {
		t.Errorf("max age = %v, want 48h", config.Cache.MaxAge)
	}
	// Unset keys keep their defaults.
	if config.Cache.CleanupInterval != time.Hour {
		t.Errorf("cleanup interval = %v, want 1h", config.Cache.CleanupInterval)
	}
	if config.Playback.Format != itts.FormatWAV || config.Playback.PrefetchDepth != 5 {
		t.Errorf("playback = %+v", config.Playback)
	}
	if config.Playback.SynthesisTimeout != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", config.Playback.SynthesisTimeout)
	}
	if config.Log.Level != "debug" {
		t.Errorf("log level = %q", config.Log.Level)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "aloud.yml")

	config := DefaultConfig()
	config.Provider.Voice = "alloy"
	config.Playback.SynthesisTimeout = 90 * time.Second
	if err := SaveConfig(config, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Provider.Voice != "alloy" {
		t.Errorf("voice = %q, want alloy", loaded.Provider.Voice)
	}
	if loaded.Playback.SynthesisTimeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", loaded.Playback.SynthesisTimeout)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("ALOUD_API_KEY", "sk-test")
	t.Setenv("ALOUD_PROVIDER", "Mock")
	t.Setenv("ALOUD_VOICE", "mock-alto")
	t.Setenv("ALOUD_CACHE_DIR", "~/aloud-cache")
	t.Setenv("ALOUD_LOG_LEVEL", "warn")

	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if config.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", config.Provider.APIKey)
	}
	if config.Provider.Provider != itts.ProviderMock {
		t.Errorf("provider = %q, want mock", config.Provider.Provider)
	}
	if config.Provider.Voice != "mock-alto" {
		t.Errorf("voice = %q", config.Provider.Voice)
	}
	if strings.HasPrefix(config.Cache.Dir, "~") || !strings.HasSuffix(config.Cache.Dir, "aloud-cache") {
		t.Errorf("cache dir = %q, want an expanded path", config.Cache.Dir)
	}
	if config.Log.Level != "warn" {
		t.Errorf("log level = %q", config.Log.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"speed", func(c *Config) { c.Provider.Speed = 9 }, itts.ErrSpeedOutOfRange},
		{"format", func(c *Config) { c.Playback.Format = "ogg" }, itts.ErrUnsupportedFormat},
		{"backend", func(c *Config) { c.Cache.Backend = "redis" }, cache.ErrUnknownBackend},
		{"depth", func(c *Config) { c.Playback.PrefetchDepth = -1 }, errAny},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, errAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			switch {
			case tt.wantErr == nil && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr == errAny && err == nil:
				t.Error("expected an error")
			case tt.wantErr != nil && tt.wantErr != errAny && !errors.Is(err, tt.wantErr):
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

var errAny = errors.New("any error")

func TestConfig_AudioFormat(t *testing.T) {
	config := DefaultConfig()
	if got := config.AudioFormat(); got != itts.FormatMP3 {
		t.Errorf("openai default format = %q, want mp3", got)
	}
	config.Provider.Provider = itts.ProviderMock
	if got := config.AudioFormat(); got != itts.FormatPCM {
		t.Errorf("mock default format = %q, want pcm", got)
	}
	config.Playback.Format = itts.FormatWAV
	if got := config.AudioFormat(); got != itts.FormatWAV {
		t.Errorf("explicit format = %q, want wav", got)
	}
}

func TestGenerateExampleConfig(t *testing.T) {
	example := GenerateExampleConfig()
	for _, want := range []string{"provider:", "name: openai", "cache:", "prefetch_depth: 3"} {
		if !strings.Contains(example, want) {
			t.Errorf("example config missing %q", want)
		}
	}
}
