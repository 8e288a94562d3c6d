package engines

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
)

// mockSampleRate matches the PCM rate assumed by the audio decoder.
const mockSampleRate = 24000

// MockCall records one call made to a MockProvider.
type MockCall struct {
	Text    string
	Options tts.Options
	Format  tts.AudioFormat
}

// MockProvider synthesizes silence locally. The length of the audio grows
// with the text, so durations are deterministic. Failures and blocking can
// be injected for tests.
type MockProvider struct {
	// PerRune is the audio length produced per rune of text.
	PerRune time.Duration

	mu       sync.Mutex
	delay    time.Duration
	calls    []MockCall
	failures map[string]error
	failAll  error
	gate     chan struct{}
	voices   []tts.Voice
}

// NewMockProvider creates a mock producing 10ms of audio per rune.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		PerRune:  10 * time.Millisecond,
		failures: make(map[string]error),
		voices: []tts.Voice{
			{Name: "mock-alto", LanguageCodes: []string{"en-US"}, Gender: "female"},
			{Name: "mock-baritone", LanguageCodes: []string{"en-GB"}, Gender: "male"},
			{Name: "mock-neutral", LanguageCodes: []string{"en-US", "de-DE"}, Gender: "neutral"},
		},
	}
}

// Name implements tts.Provider.
func (m *MockProvider) Name() tts.ProviderName {
	return tts.ProviderMock
}

// Call implements tts.Provider. Only PCM output is supported.
func (m *MockProvider) Call(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Options: opts, Format: format})
	gate, delay := m.gate, m.delay
	err := m.failAll
	if e, ok := m.failures[text]; ok {
		err = e
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, tts.NewProviderError("empty input", 400, tts.ErrEmptyText)
	}
	if format != tts.FormatPCM {
		return nil, tts.NewProviderError("unsupported format", 400, tts.ErrUnsupportedFormat)
	}

	dur := time.Duration(utf8.RuneCountInString(text)) * m.PerRune
	samples := int(dur.Seconds() * mockSampleRate)
	return make([]byte, samples*2), nil
}

// ValidateConnection implements tts.Provider.
func (m *MockProvider) ValidateConnection(_ context.Context, _ tts.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failAll
}

// ConvertToOptions implements tts.Provider.
func (m *MockProvider) ConvertToOptions(settings tts.Settings) tts.Options {
	voice := settings.Voice
	if voice == "" {
		voice = "mock-neutral"
	}
	return tts.Options{
		Provider: tts.ProviderMock,
		Voice:    voice,
		Speed:    settings.Speed,
	}
}

// Voices implements tts.VoiceLister.
func (m *MockProvider) Voices(_ context.Context, languageCode string) ([]tts.Voice, error) {
	return filterVoices(m.voices, languageCode), nil
}

// Test control methods

// SetDelay sets a simulated synthesis delay.
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailOn makes calls for exactly text fail with err.
func (m *MockProvider) FailOn(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[text] = err
}

// FailAll makes every call fail with err. A nil err clears it.
func (m *MockProvider) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// ClearFailures removes all injected failures.
func (m *MockProvider) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
	m.failAll = nil
}

// Block makes calls wait until Unblock is called.
func (m *MockProvider) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Unblock releases every waiting call.
func (m *MockProvider) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns the calls made so far.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns how many calls were made for text.
func (m *MockProvider) CallsFor(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Text == text {
			n++
		}
	}
	return n
}
