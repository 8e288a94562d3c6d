package cache

import (
	"context"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrUnknownBackend is returned for an unrecognized backend name
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps audio in process memory only.
	BackendMemory Backend = "memory"
	// BackendDisk keeps zstd-compressed files plus an index in a directory.
	BackendDisk Backend = "disk"
	// BackendSQLite keeps audio rows in a single SQLite database file.
	BackendSQLite Backend = "sqlite"
	// BackendTiered fronts the disk store with a memory store.
	BackendTiered Backend = "tiered"
)

// CacheStats holds cache performance metrics
type CacheStats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastAccess time.Time
	LastEvict  time.Time
}

func (s *CacheStats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for opening a Store.
type Config struct {
	Backend Backend `yaml:"backend" mapstructure:"backend"`

	// Dir holds the disk store files and the SQLite database.
	Dir string `yaml:"dir" mapstructure:"dir"`

	MemoryCapacity   int64 `yaml:"memory_capacity" mapstructure:"memory_capacity"` // Bytes
	DiskCapacity     int64 `yaml:"disk_capacity" mapstructure:"disk_capacity"`     // Bytes
	CompressionLevel int   `yaml:"compression_level" mapstructure:"compression_level"`

	// MaxAge is the age after which entries are expired by the janitor.
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`
	// CleanupInterval is how often the janitor runs. Zero disables it.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		Backend:          BackendTiered,
		MemoryCapacity:   100 * 1024 * 1024,  // 100MB
		DiskCapacity:     1024 * 1024 * 1024, // 1GB
		CompressionLevel: 3,
		MaxAge:           7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Store is a byte-oriented key/value store with size accounting and
// age-based expiry. Keys are fingerprints produced by Fingerprint.
type Store interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value and evicting
	// least recently used entries to stay within capacity.
	Put(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	// Size returns the bytes currently used.
	Size(ctx context.Context) (int64, error)

	// Prune removes entries written more than maxAge ago and reports how many.
	Prune(ctx context.Context, maxAge time.Duration) (int, error)

	Stats() CacheStats
	Close() error
}
