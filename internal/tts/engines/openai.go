package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultOpenAIEndpoint is used when no endpoint is configured.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"

	defaultOpenAIModel = "gpt-4o-mini-tts"
	defaultOpenAIVoice = "shimmer"
	openAITimeout      = 60 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

var _ tts.Provider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to any OpenAI compatible /audio/speech endpoint.
type OpenAIProvider struct {
	apiKey      string
	endpoint    string
	client      *http.Client
	rateLimiter *rate.Limiter
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey   string
	Endpoint string
	// RequestsPerMinute throttles calls. Zero disables throttling.
	RequestsPerMinute int
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// NewOpenAIProvider creates a provider. The API key may be empty for
// self-hosted endpoints that do not check it.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   cfg.Client,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultOpenAIEndpoint
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: openAITimeout}
	}
	if cfg.RequestsPerMinute > 0 {
		p.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return p
}

// Name implements tts.Provider.
func (p *OpenAIProvider) Name() tts.ProviderName {
	return tts.ProviderOpenAI
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Instructions   string  `json:"instructions,omitempty"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Call implements tts.Provider.
func (p *OpenAIProvider) Call(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewProviderError("empty input", 400, tts.ErrEmptyText)
	}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, tts.NewProviderError("rate limiter", 0, err)
		}
	}

	body, err := json.Marshal(speechRequest{
		Model:          opts.Model,
		Input:          text,
		Voice:          opts.Voice,
		Instructions:   opts.Instructions,
		ResponseFormat: string(format),
		Speed:          opts.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := p.endpoint
	if opts.Endpoint != "" {
		endpoint = strings.TrimRight(opts.Endpoint, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, tts.NewProviderError("invalid request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, tts.NewProviderError("request failed", 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, tts.NewHTTPError(resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tts.NewProviderError("failed to read audio", 0, err)
	}
	log.Debug("openai: synthesized", "bytes", len(data), "took", time.Since(start))
	return data, nil
}

// ValidateConnection lists models with the configured key. Any non-2xx
// response is reported as a ProviderError.
func (p *OpenAIProvider) ValidateConnection(ctx context.Context, settings tts.Settings) error {
	endpoint := strings.TrimRight(settings.Endpoint, "/")
	if endpoint == "" {
		endpoint = p.endpoint
	}
	key := settings.APIKey
	if key == "" {
		key = p.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/models", nil)
	if err != nil {
		return tts.NewProviderError("invalid request", 0, err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return tts.NewProviderError("request failed", 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return tts.NewHTTPError(resp.StatusCode, msg)
	}
	return nil
}

// ConvertToOptions implements tts.Provider.
func (p *OpenAIProvider) ConvertToOptions(settings tts.Settings) tts.Options {
	opts := tts.Options{
		Provider:     tts.ProviderOpenAI,
		Model:        settings.Model,
		Voice:        settings.Voice,
		Instructions: settings.Instructions,
		Speed:        settings.Speed,
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	if opts.Voice == "" {
		opts.Voice = defaultOpenAIVoice
	}
	// Only non-default endpoints distinguish cached audio.
	if ep := strings.TrimRight(settings.Endpoint, "/"); ep != "" && ep != DefaultOpenAIEndpoint {
		opts.Endpoint = ep
	}
	return opts
}

// openAIVoices are the built-in voices of the hosted API.
var openAIVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"nova", "onyx", "sage", "shimmer", "verse",
}

// Voices implements tts.VoiceLister. The hosted API has no voice listing
// endpoint, so the built-in set is returned for any language.
func (p *OpenAIProvider) Voices(_ context.Context, _ string) ([]tts.Voice, error) {
	voices := make([]tts.Voice, len(openAIVoices))
	for i, name := range openAIVoices {
		voices[i] = tts.Voice{Name: name}
	}
	return voices, nil
}
