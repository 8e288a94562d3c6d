package tts

import (
	"fmt"
	"strings"
)

// ValidateProviderSelection resolves the provider name chosen on the command
// line or, failing that, in the config. Aliases are normalized.
func ValidateProviderSelection(cliArg string, settings Settings) (ProviderName, error) {
	name := strings.ToLower(strings.TrimSpace(cliArg))
	if name == "" {
		name = strings.ToLower(string(settings.Provider))
	}

	switch name {
	case "":
		return ProviderNone, fmt.Errorf("%w\n\nPlease specify a provider:\n  aloud speak --provider openai notes.md\n  aloud speak --provider google notes.md\n\nOr set a default in aloud.yml:\n  provider:\n    name: openai", ErrNoProviderConfigured)
	case "openai", "openai-compat", "openaicompat":
		return ProviderOpenAI, nil
	case "google", "gcloud", "gtts":
		return ProviderGoogle, nil
	case "mock":
		return ProviderMock, nil
	default:
		return ProviderNone, fmt.Errorf("%w: %s\n\nSupported providers:\n  - openai (OpenAI-compatible HTTP)\n  - google (Google Cloud TTS)\n  - mock (local silence)", ErrUnknownProvider, name)
	}
}

// Validate checks settings values that do not require network access.
func (s Settings) Validate() error {
	if s.Speed != 0 && (s.Speed < 0.25 || s.Speed > 4.0) {
		return ErrSpeedOutOfRange
	}
	if s.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative, got %d", s.RequestsPerMinute)
	}
	return nil
}
