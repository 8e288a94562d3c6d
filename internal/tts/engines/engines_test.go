package engines

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestOpenAIProvider_Call(t *testing.T) {
	var got speechRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Endpoint: srv.URL + "/v1/"})
	opts := p.ConvertToOptions(tts.Settings{Voice: "nova", Speed: 1.25})

	data, err := p.Call(context.Background(), "Hello there.", opts, tts.FormatMP3)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("data = %q", data)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Input != "Hello there." || got.Voice != "nova" || got.Model != defaultOpenAIModel {
		t.Errorf("unexpected request %+v", got)
	}
	if got.ResponseFormat != "mp3" || got.Speed != 1.25 {
		t.Errorf("unexpected format/speed %+v", got)
	}
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      tts.ErrorKind
		retryable bool
		message   string
	}{
		{"rate limited", 429, `{"error":{"message":"slow down","type":"requests"}}`, tts.KindRateLimited, true, "slow down"},
		{"server error", 503, "upstream unavailable", tts.KindServerError, true, "upstream unavailable"},
		{"bad request", 400, `{"error":{"message":"voice not found","code":"invalid_voice"}}`, tts.KindClientError, false, "voice not found"},
		{"unauthorized", 401, "", tts.KindClientError, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{Endpoint: srv.URL})
			_, err := p.Call(context.Background(), "Hi.", p.ConvertToOptions(tts.Settings{}), tts.FormatMP3)

			var perr *tts.ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ProviderError, got %T: %v", err, err)
			}
			if perr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", perr.StatusCode, tt.status)
			}
			if perr.Kind() != tt.kind {
				t.Errorf("Kind = %v, want %v", perr.Kind(), tt.kind)
			}
			if perr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", perr.IsRetryable(), tt.retryable)
			}
			if tt.message != "" && (perr.Detail == nil || perr.Detail.Message != tt.message) {
				t.Errorf("Detail = %+v, want message %q", perr.Detail, tt.message)
			}
		})
	}
}

func TestOpenAIProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Endpoint: url})
	_, err := p.Call(context.Background(), "Hi.", tts.Options{}, tts.FormatMP3)
	perr := tts.AsProviderError(err)
	if perr == nil || perr.Kind() != tts.KindNetworkOrUnknown || !perr.IsRetryable() {
		t.Errorf("expected retryable network error, got %v", err)
	}
}

func TestOpenAIProvider_ValidateConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Endpoint: srv.URL})
	if err := p.ValidateConnection(context.Background(), tts.Settings{APIKey: "good"}); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	err := p.ValidateConnection(context.Background(), tts.Settings{APIKey: "bad"})
	if perr := tts.AsProviderError(err); perr == nil || perr.StatusCode != 401 {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestOpenAIProvider_ConvertToOptions(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})

	def := p.ConvertToOptions(tts.Settings{APIKey: "secret", Endpoint: DefaultOpenAIEndpoint + "/"})
	if def.Endpoint != "" {
		t.Errorf("default endpoint should not enter options, got %q", def.Endpoint)
	}
	if def.Voice != defaultOpenAIVoice || def.Model != defaultOpenAIModel {
		t.Errorf("defaults not applied: %+v", def)
	}

	custom := p.ConvertToOptions(tts.Settings{Endpoint: "http://localhost:8880/v1"})
	if custom.Endpoint != "http://localhost:8880/v1" {
		t.Errorf("custom endpoint = %q", custom.Endpoint)
	}
	if custom.Equal(def) {
		t.Error("different endpoints must not share cache keys")
	}
}

func TestOpenAIProvider_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Endpoint: srv.URL, RequestsPerMinute: 1})
	if _, err := p.Call(context.Background(), "one", tts.Options{}, tts.FormatMP3); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Call(ctx, "two", tts.Options{}, tts.FormatMP3); err == nil {
		t.Error("second call inside the same minute should wait and time out")
	}
}

func TestGRPCError(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
		kind tts.ErrorKind
	}{
		{codes.ResourceExhausted, 429, tts.KindRateLimited},
		{codes.Unavailable, 503, tts.KindServerError},
		{codes.Internal, 500, tts.KindServerError},
		{codes.InvalidArgument, 400, tts.KindClientError},
		{codes.PermissionDenied, 403, tts.KindClientError},
		{codes.Canceled, 0, tts.KindNetworkOrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			perr := grpcError(status.Error(tt.code, "boom"))
			if perr.StatusCode != tt.want {
				t.Errorf("StatusCode = %d, want %d", perr.StatusCode, tt.want)
			}
			if perr.Kind() != tt.kind {
				t.Errorf("Kind = %v, want %v", perr.Kind(), tt.kind)
			}
			if perr.Detail == nil || perr.Detail.Message != "boom" {
				t.Errorf("Detail = %+v", perr.Detail)
			}
		})
	}

	plain := grpcError(errors.New("dial failed"))
	if plain.StatusCode != 0 || plain.Kind() != tts.KindNetworkOrUnknown {
		t.Errorf("plain error classified as %v", plain.Kind())
	}
}

func TestGoogleHelpers(t *testing.T) {
	if got := languageFromVoice("de-DE-Wavenet-B"); got != "de-DE" {
		t.Errorf("languageFromVoice = %q", got)
	}
	if got := languageFromVoice("custom"); got != defaultGoogleLanguage {
		t.Errorf("languageFromVoice fallback = %q", got)
	}
	if _, err := googleEncoding(tts.FormatPCM); !errors.Is(err, tts.ErrUnsupportedFormat) {
		t.Errorf("pcm should be unsupported, got %v", err)
	}

	p := NewGoogleProvider(GoogleConfig{})
	opts := p.ConvertToOptions(tts.Settings{Voice: "en-GB-Neural2-A"})
	if opts.LanguageCode != "en-GB" || opts.Provider != tts.ProviderGoogle {
		t.Errorf("unexpected options %+v", opts)
	}
	if _, err := p.Call(context.Background(), "hi", opts, tts.FormatPCM); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider()
	ctx := context.Background()

	data, err := m.Call(ctx, "0123456789", tts.Options{}, tts.FormatPCM)
	if err != nil {
		t.Fatal(err)
	}
	// 10 runes * 10ms at 24kHz, 2 bytes per sample.
	if want := 2400 * 2; len(data) != want {
		t.Errorf("len = %d, want %d", len(data), want)
	}

	if _, err := m.Call(ctx, "x", tts.Options{}, tts.FormatMP3); !errors.Is(err, tts.ErrUnsupportedFormat) {
		t.Errorf("mp3 should be unsupported, got %v", err)
	}

	boom := tts.NewProviderError("Too Many Requests", 429, nil)
	m.FailOn("bad", boom)
	if _, err := m.Call(ctx, "bad", tts.Options{}, tts.FormatPCM); !errors.Is(err, boom) {
		t.Errorf("injected failure = %v", err)
	}
	m.ClearFailures()
	if _, err := m.Call(ctx, "bad", tts.Options{}, tts.FormatPCM); err != nil {
		t.Errorf("failure should be cleared, got %v", err)
	}

	if m.CallCount() != 4 || m.CallsFor("bad") != 2 {
		t.Errorf("calls = %d, bad = %d", m.CallCount(), m.CallsFor("bad"))
	}
}

func TestMockProvider_Block(t *testing.T) {
	m := NewMockProvider()
	m.Block()

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "wait", tts.Options{}, tts.FormatPCM)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("call returned while blocked")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unblock()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("call did not return after Unblock")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Block()
	cancel()
	if _, err := m.Call(ctx, "x", tts.Options{}, tts.FormatPCM); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	m.Unblock()
}

func TestMockProvider_Voices(t *testing.T) {
	m := NewMockProvider()
	all, _ := m.Voices(context.Background(), "")
	if len(all) != 3 {
		t.Errorf("all voices = %d", len(all))
	}
	de, _ := m.Voices(context.Background(), "de")
	if len(de) != 1 || de[0].Name != "mock-neutral" {
		t.Errorf("de voices = %+v", de)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider tts.ProviderName
		want     tts.ProviderName
		err      error
	}{
		{tts.ProviderOpenAI, tts.ProviderOpenAI, nil},
		{tts.ProviderGoogle, tts.ProviderGoogle, nil},
		{tts.ProviderMock, tts.ProviderMock, nil},
		{tts.ProviderNone, "", tts.ErrNoProviderConfigured},
		{"espeak", "", tts.ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			p, err := New(tts.Settings{Provider: tt.provider})
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name = %q, want %q", p.Name(), tt.want)
			}
		})
	}

	if _, err := New(tts.Settings{Provider: tts.ProviderMock, Speed: 9}); !errors.Is(err, tts.ErrSpeedOutOfRange) {
		t.Errorf("invalid settings should be rejected, got %v", err)
	}
}

func TestDefaultFormat(t *testing.T) {
	if DefaultFormat(tts.ProviderMock) != tts.FormatPCM {
		t.Error("mock should default to pcm")
	}
	if DefaultFormat(tts.ProviderOpenAI) != tts.FormatMP3 {
		t.Error("openai should default to mp3")
	}
}
