package tts

import (
	"encoding/json"
	"strings"
)

// ProviderName identifies a synthesis provider implementation.
type ProviderName string

const (
	// ProviderOpenAI is any OpenAI-compatible /v1/audio/speech endpoint.
	ProviderOpenAI ProviderName = "openai"

	// ProviderGoogle is Google Cloud Text-to-Speech.
	ProviderGoogle ProviderName = "google"

	// ProviderMock synthesizes silence locally, for tests and dry runs.
	ProviderMock ProviderName = "mock"

	// ProviderNone represents no provider selected.
	ProviderNone ProviderName = ""
)

// AudioFormat is the encoded output format requested from a provider.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
	// FormatPCM is headerless 16-bit little-endian mono.
	FormatPCM AudioFormat = "pcm"
)

// ParseAudioFormat maps a user supplied name to an AudioFormat.
func ParseAudioFormat(s string) (AudioFormat, error) {
	switch f := AudioFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP3, FormatWAV, FormatPCM:
		return f, nil
	case "":
		return FormatMP3, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Options is the voice configuration a provider synthesizes with. Its
// serialized form is part of every cache key, so two Options values that
// serialize identically must produce identical audio.
type Options struct {
	Provider     ProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model        string       `json:"model,omitempty" yaml:"model" mapstructure:"model"`
	Voice        string       `json:"voice,omitempty" yaml:"voice" mapstructure:"voice"`
	Instructions string       `json:"instructions,omitempty" yaml:"instructions" mapstructure:"instructions"`
	Endpoint     string       `json:"endpoint,omitempty" yaml:"endpoint" mapstructure:"endpoint"`
	LanguageCode string       `json:"languageCode,omitempty" yaml:"language_code" mapstructure:"language_code"`
	Speed        float64      `json:"speed,omitempty" yaml:"speed" mapstructure:"speed"`
}

// Serialize returns the canonical encoding of o used for fingerprinting.
func (o Options) Serialize() string {
	// Struct fields encode in declaration order, which keeps this stable.
	b, _ := json.Marshal(o)
	return string(b)
}

// Equal reports whether o and other would address the same cached audio.
func (o Options) Equal(other Options) bool {
	return o.Serialize() == other.Serialize()
}

// Settings is the user-facing provider configuration. Providers turn it into
// Options with ConvertToOptions; credentials never reach the cache key.
type Settings struct {
	Provider     ProviderName `yaml:"name" mapstructure:"name"`
	APIKey       string       `yaml:"api_key" mapstructure:"api_key"`
	Endpoint     string       `yaml:"endpoint" mapstructure:"endpoint"`
	Model        string       `yaml:"model" mapstructure:"model"`
	Voice        string       `yaml:"voice" mapstructure:"voice"`
	Instructions string       `yaml:"instructions" mapstructure:"instructions"`
	LanguageCode string       `yaml:"language_code" mapstructure:"language_code"`
	Speed        float64      `yaml:"speed" mapstructure:"speed"`
	// RequestsPerMinute throttles outgoing provider calls. Zero disables it.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// Voice describes one voice a provider can synthesize with.
type Voice struct {
	Name          string
	LanguageCodes []string
	Gender        string
}
