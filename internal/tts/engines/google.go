package engines

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultGoogleVoice    = "en-US-Neural2-F"
	defaultGoogleLanguage = "en-US"
	googleSampleRate      = 24000
)

var (
	_ tts.Provider    = (*GoogleProvider)(nil)
	_ tts.VoiceLister = (*GoogleProvider)(nil)
)

// GoogleProvider synthesizes with Google Cloud Text-to-Speech. Without an API
// key the client falls back to application default credentials.
type GoogleProvider struct {
	apiKey      string
	rateLimiter *rate.Limiter

	mu     sync.Mutex
	client *texttospeech.Client
}

// GoogleConfig holds configuration for the Google provider.
type GoogleConfig struct {
	APIKey            string
	RequestsPerMinute int
}

// NewGoogleProvider creates a provider. The gRPC client is dialed lazily on
// first use.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	p := &GoogleProvider{apiKey: cfg.APIKey}
	if cfg.RequestsPerMinute > 0 {
		p.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return p
}

// Name implements tts.Provider.
func (p *GoogleProvider) Name() tts.ProviderName {
	return tts.ProviderGoogle
}

func (p *GoogleProvider) getClient(ctx context.Context, apiKey string) (*texttospeech.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && apiKey == p.apiKey {
		return p.client, nil
	}

	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	if p.client != nil {
		_ = p.client.Close()
	}
	p.client = client
	p.apiKey = apiKey
	return client, nil
}

// Call implements tts.Provider. MP3 and WAV output are supported.
func (p *GoogleProvider) Call(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewProviderError("empty input", 400, tts.ErrEmptyText)
	}
	encoding, err := googleEncoding(format)
	if err != nil {
		return nil, tts.NewProviderError("unsupported format", 400, err)
	}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, tts.NewProviderError("rate limiter", 0, err)
		}
	}

	p.mu.Lock()
	key := p.apiKey
	p.mu.Unlock()
	client, err := p.getClient(ctx, key)
	if err != nil {
		return nil, tts.NewProviderError("client unavailable", 0, err)
	}

	lang := opts.LanguageCode
	if lang == "" {
		lang = languageFromVoice(opts.Voice)
	}
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: encoding,
		SpeakingRate:  opts.Speed,
	}
	if encoding == texttospeechpb.AudioEncoding_LINEAR16 {
		audioCfg.SampleRateHertz = googleSampleRate
	}

	start := time.Now()
	resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         opts.Voice,
		},
		AudioConfig: audioCfg,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	log.Debug("google: synthesized", "bytes", len(resp.AudioContent), "took", time.Since(start))
	return resp.AudioContent, nil
}

// ValidateConnection lists voices with the given settings.
func (p *GoogleProvider) ValidateConnection(ctx context.Context, settings tts.Settings) error {
	key := settings.APIKey
	if key == "" {
		p.mu.Lock()
		key = p.apiKey
		p.mu.Unlock()
	}
	client, err := p.getClient(ctx, key)
	if err != nil {
		return tts.NewProviderError("client unavailable", 0, err)
	}
	if _, err := client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: settings.LanguageCode}); err != nil {
		return grpcError(err)
	}
	return nil
}

// ConvertToOptions implements tts.Provider.
func (p *GoogleProvider) ConvertToOptions(settings tts.Settings) tts.Options {
	opts := tts.Options{
		Provider:     tts.ProviderGoogle,
		Voice:        settings.Voice,
		LanguageCode: settings.LanguageCode,
		Speed:        settings.Speed,
	}
	if opts.Voice == "" {
		opts.Voice = defaultGoogleVoice
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = languageFromVoice(opts.Voice)
	}
	return opts
}

// Voices implements tts.VoiceLister.
func (p *GoogleProvider) Voices(ctx context.Context, languageCode string) ([]tts.Voice, error) {
	p.mu.Lock()
	key := p.apiKey
	p.mu.Unlock()
	client, err := p.getClient(ctx, key)
	if err != nil {
		return nil, tts.NewProviderError("client unavailable", 0, err)
	}

	resp, err := client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: languageCode})
	if err != nil {
		return nil, grpcError(err)
	}
	voices := make([]tts.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, tts.Voice{
			Name:          v.Name,
			LanguageCodes: v.LanguageCodes,
			Gender:        strings.ToLower(v.SsmlGender.String()),
		})
	}
	return voices, nil
}

// Close releases the gRPC connection, if one was opened.
func (p *GoogleProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func googleEncoding(format tts.AudioFormat) (texttospeechpb.AudioEncoding, error) {
	switch format {
	case tts.FormatMP3, "":
		return texttospeechpb.AudioEncoding_MP3, nil
	case tts.FormatWAV:
		// LINEAR16 responses carry a WAV header.
		return texttospeechpb.AudioEncoding_LINEAR16, nil
	default:
		return texttospeechpb.AudioEncoding_AUDIO_ENCODING_UNSPECIFIED, tts.ErrUnsupportedFormat
	}
}

// languageFromVoice extracts "en-US" from names like "en-US-Neural2-F".
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return defaultGoogleLanguage
	}
	return parts[0] + "-" + parts[1]
}

// grpcStatusCodes maps gRPC codes onto the HTTP codes the error taxonomy
// classifies by.
var grpcStatusCodes = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
}

// grpcError wraps a gRPC error in a ProviderError. Codes without an HTTP
// equivalent, and errors that are not gRPC statuses, get no status code.
func grpcError(err error) *tts.ProviderError {
	st, ok := status.FromError(err)
	if !ok {
		return tts.AsProviderError(err)
	}
	perr := tts.NewProviderError(st.Code().String(), grpcStatusCodes[st.Code()], nil)
	if msg := st.Message(); msg != "" {
		perr.Detail = &tts.ErrorDetail{Message: msg, Code: st.Code().String()}
	}
	return perr
}
