package loader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/adrianlyjak/obsidian-aloud-tts-sub000/loader"

// Stats counts loader activity since creation.
type Stats struct {
	Requests      int64 // loads started
	CacheHits     int64
	ProviderCalls int64
	Failures      int64
	Discarded     int64 // results dropped because the chunk changed
}

// metrics mirrors Stats into OpenTelemetry instruments. Whatever meter
// provider is installed globally receives them; without one they are no-ops.
type metrics struct {
	requests      atomic.Int64
	cacheHits     atomic.Int64
	providerCalls atomic.Int64
	failures      atomic.Int64
	discarded     atomic.Int64

	loads    metric.Int64Counter
	failed   metric.Int64Counter
	dropped  metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics() *metrics {
	m := &metrics{}
	if err := m.init(otel.Meter(instrumentationName)); err != nil {
		log.Warn("loader: failed to initialize metrics", "err", err)
	}
	return m
}

func (m *metrics) init(meter metric.Meter) error {
	var err error
	if m.loads, err = meter.Int64Counter("aloud.loader.loads",
		metric.WithDescription("Chunk loads by audio source")); err != nil {
		return err
	}
	if m.failed, err = meter.Int64Counter("aloud.loader.failures",
		metric.WithDescription("Chunk loads that ended in error, by error kind")); err != nil {
		return err
	}
	if m.dropped, err = meter.Int64Counter("aloud.loader.discarded",
		metric.WithDescription("Results discarded because the chunk changed in flight")); err != nil {
		return err
	}
	m.duration, err = meter.Float64Histogram("aloud.loader.duration",
		metric.WithDescription("Time to obtain chunk audio"), metric.WithUnit("s"))
	return err
}

func (m *metrics) started() {
	m.requests.Add(1)
}

func (m *metrics) loaded(ctx context.Context, source string, elapsed time.Duration) {
	if source == sourceCache {
		m.cacheHits.Add(1)
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	if m.loads != nil {
		m.loads.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *metrics) called() {
	m.providerCalls.Add(1)
}

func (m *metrics) failure(ctx context.Context, kind string) {
	m.failures.Add(1)
	if m.failed != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *metrics) discard(ctx context.Context) {
	m.discarded.Add(1)
	if m.dropped != nil {
		m.dropped.Add(ctx, 1)
	}
}

func (m *metrics) snapshot() Stats {
	return Stats{
		Requests:      m.requests.Load(),
		CacheHits:     m.cacheHits.Load(),
		ProviderCalls: m.providerCalls.Load(),
		Failures:      m.failures.Load(),
		Discarded:     m.discarded.Load(),
	}
}
