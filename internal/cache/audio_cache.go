package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/charmbracelet/log"
)

// AudioCache is the content-addressed store for synthesized audio. Every
// backend satisfies it identically; they differ only in persistence and
// capacity.
type AudioCache interface {
	// GetAudio returns cached audio or ErrCacheMiss.
	GetAudio(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, error)

	// SaveAudio stores audio for the triple. Saving identical content twice
	// is harmless.
	SaveAudio(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat, audio []byte) error

	// Expire deletes entries older than age.
	Expire(ctx context.Context, age time.Duration) error

	// StorageSize returns the bytes used by the backend.
	StorageSize(ctx context.Context) (int64, error)

	Close() error
}

// StoreCache adapts a Store into an AudioCache.
type StoreCache struct {
	store Store
	log   *log.Logger
}

// New returns an AudioCache backed by store.
func New(store Store) *StoreCache {
	return &StoreCache{
		store: store,
		log:   log.WithPrefix("cache"),
	}
}

// GetAudio implements AudioCache.
func (c *StoreCache) GetAudio(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.Get(ctx, Fingerprint(opts, format, text))
}

// SaveAudio implements AudioCache.
func (c *StoreCache) SaveAudio(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.Put(ctx, Fingerprint(opts, format, text), audio); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	return nil
}

// Expire implements AudioCache.
func (c *StoreCache) Expire(ctx context.Context, age time.Duration) error {
	n, err := c.store.Prune(ctx, age)
	if err != nil {
		return fmt.Errorf("failed to expire cache: %w", err)
	}
	if n > 0 {
		c.log.Debug("expired entries", "count", n, "age", age)
	}
	return nil
}

// StorageSize implements AudioCache.
func (c *StoreCache) StorageSize(ctx context.Context) (int64, error) {
	return c.store.Size(ctx)
}

// Stats returns the statistics of the underlying store.
func (c *StoreCache) Stats() CacheStats {
	return c.store.Stats()
}

// Clear removes every entry.
func (c *StoreCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close implements AudioCache.
func (c *StoreCache) Close() error {
	return c.store.Close()
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
