package tts

import "context"

// Provider is a speech synthesis backend.
// Implementations are thin network clients; caching, chunking and retry
// policy live in the caller.
type Provider interface {
	// Name returns the provider identifier used in Options.Provider.
	Name() ProviderName

	// Call synthesizes text and returns encoded audio in format.
	// Failures should be returned as *ProviderError so callers can classify them.
	Call(ctx context.Context, text string, opts Options, format AudioFormat) ([]byte, error)

	// ValidateConnection checks that settings can reach the provider.
	ValidateConnection(ctx context.Context, settings Settings) error

	// ConvertToOptions derives the voice options used for synthesis and cache keys.
	ConvertToOptions(settings Settings) Options
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	Voices(ctx context.Context, languageCode string) ([]Voice, error)
}
