package engines

import (
	"fmt"
	"strings"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
)

// New creates the provider selected by settings.Provider.
func New(settings tts.Settings) (tts.Provider, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	switch settings.Provider {
	case tts.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:            settings.APIKey,
			Endpoint:          settings.Endpoint,
			RequestsPerMinute: settings.RequestsPerMinute,
		}), nil
	case tts.ProviderGoogle:
		return NewGoogleProvider(GoogleConfig{
			APIKey:            settings.APIKey,
			RequestsPerMinute: settings.RequestsPerMinute,
		}), nil
	case tts.ProviderMock:
		return NewMockProvider(), nil
	case tts.ProviderNone:
		return nil, tts.ErrNoProviderConfigured
	default:
		return nil, fmt.Errorf("%w: %s", tts.ErrUnknownProvider, settings.Provider)
	}
}

// DefaultFormat returns the output format a provider is asked for when none
// is configured. The mock only produces raw PCM.
func DefaultFormat(name tts.ProviderName) tts.AudioFormat {
	if name == tts.ProviderMock {
		return tts.FormatPCM
	}
	return tts.FormatMP3
}

// filterVoices keeps voices that speak languageCode. The match is a
// case-insensitive prefix, so "en" selects "en-US" and "en-GB".
func filterVoices(voices []tts.Voice, languageCode string) []tts.Voice {
	if languageCode == "" {
		return voices
	}
	lang := strings.ToLower(languageCode)
	var out []tts.Voice
	for _, v := range voices {
		for _, code := range v.LanguageCodes {
			if strings.HasPrefix(strings.ToLower(code), lang) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
