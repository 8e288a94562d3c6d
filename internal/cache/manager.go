package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// TieredStore fronts a persistent Store with a MemoryStore. Hits in the
// persistent tier are promoted into memory; writes go to both tiers.
type TieredStore struct {
	l1 *MemoryStore
	l2 Store

	mu    sync.Mutex
	stats struct {
		L1Hits     int64
		L2Hits     int64
		Misses     int64
		Promotions int64
	}
}

// NewTieredStore combines memory and persistent into one Store.
func NewTieredStore(memory *MemoryStore, persistent Store) *TieredStore {
	return &TieredStore{l1: memory, l2: persistent}
}

// Get implements Store.
func (t *TieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	if data, err := t.l1.Get(ctx, key); err == nil {
		t.mu.Lock()
		t.stats.L1Hits++
		t.mu.Unlock()
		return data, nil
	}

	data, err := t.l2.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			t.mu.Lock()
			t.stats.Misses++
			t.mu.Unlock()
		}
		return nil, err
	}

	t.mu.Lock()
	t.stats.L2Hits++
	t.stats.Promotions++
	t.mu.Unlock()
	// Promotion is best-effort
	_ = t.l1.Put(ctx, key, data)
	return data, nil
}

// Put implements Store. An item too large for memory is still persisted.
func (t *TieredStore) Put(ctx context.Context, key string, value []byte) error {
	if err := t.l1.Put(ctx, key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if err := t.l2.Put(ctx, key, value); err != nil {
		return fmt.Errorf("L2 cache error: %w", err)
	}
	return nil
}

// Delete implements Store.
func (t *TieredStore) Delete(ctx context.Context, key string) error {
	return errors.Join(t.l1.Delete(ctx, key), t.l2.Delete(ctx, key))
}

// Clear implements Store.
func (t *TieredStore) Clear(ctx context.Context) error {
	return errors.Join(t.l1.Clear(ctx), t.l2.Clear(ctx))
}

// Size implements Store. Memory holds copies of persisted entries, so only
// the persistent tier is counted.
func (t *TieredStore) Size(ctx context.Context) (int64, error) {
	return t.l2.Size(ctx)
}

// Prune implements Store and reports the persistent tier's count.
func (t *TieredStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if _, err := t.l1.Prune(ctx, maxAge); err != nil {
		return 0, err
	}
	return t.l2.Prune(ctx, maxAge)
}

// Stats implements Store with the persistent tier's sizes and the combined
// hit counts.
func (t *TieredStore) Stats() CacheStats {
	stats := t.l2.Stats()

	t.mu.Lock()
	defer t.mu.Unlock()
	stats.Hits = t.stats.L1Hits + t.stats.L2Hits
	stats.Misses = t.stats.Misses
	stats.HitRate = 0
	stats.updateHitRate()
	return stats
}

// Close implements Store.
func (t *TieredStore) Close() error {
	return errors.Join(t.l1.Close(), t.l2.Close())
}

// Janitor periodically expires old entries from a Store.
type Janitor struct {
	store    Store
	maxAge   time.Duration
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup

	mu          sync.Mutex
	runs        int64
	lastCleanup time.Time
}

// StartJanitor begins expiring entries older than maxAge every interval.
// The returned Janitor must be stopped with Stop.
func StartJanitor(store Store, maxAge, interval time.Duration) *Janitor {
	j := &Janitor{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		stop:     make(chan struct{}),
	}

	ticker := time.NewTicker(interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.RunOnce(context.Background())
			case <-j.stop:
				return
			}
		}
	}()
	return j
}

// RunOnce performs a single cleanup pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	n, err := j.store.Prune(ctx, j.maxAge)
	if err != nil {
		log.Warn("cache: cleanup failed", "err", err)
	} else if n > 0 {
		log.Debug("cache: expired entries", "count", n)
	}

	j.mu.Lock()
	j.runs++
	j.lastCleanup = time.Now()
	j.mu.Unlock()
}

// Runs returns how many cleanup passes have completed.
func (j *Janitor) Runs() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// Stop halts the janitor and waits for a running pass to finish.
func (j *Janitor) Stop() {
	close(j.stop)
	j.wg.Wait()
}

// managedStore closes its janitor together with the store.
type managedStore struct {
	Store
	janitor *Janitor
}

func (m *managedStore) Close() error {
	m.janitor.Stop()
	return m.Store.Close()
}

// Open creates the Store described by cfg. Disk-backed stores need cfg.Dir.
// When cfg.CleanupInterval and cfg.MaxAge are set, a janitor expires entries
// until the store is closed.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case BackendMemory:
		store = NewMemoryStore(cfg.MemoryCapacity)
	case BackendDisk, BackendTiered, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache dir is required for the %q backend", cfg.Backend)
		}
		var disk *DiskStore
		disk, err = NewDiskStore(filepath.Join(cfg.Dir, "audio"), cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		store = disk
		if cfg.Backend != BackendDisk {
			store = NewTieredStore(NewMemoryStore(cfg.MemoryCapacity), disk)
		}
	case BackendSQLite:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache dir is required for the %q backend", cfg.Backend)
		}
		store, err = NewSQLiteStore(ctx, filepath.Join(cfg.Dir, "audio.db"), cfg.DiskCapacity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	if cfg.CleanupInterval > 0 && cfg.MaxAge > 0 {
		return &managedStore{
			Store:   store,
			janitor: StartJanitor(store, cfg.MaxAge, cfg.CleanupInterval),
		}, nil
	}
	return store, nil
}
