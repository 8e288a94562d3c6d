package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements a persistent Store as rows of a single SQLite table.
type SQLiteStore struct {
	db       *sql.DB
	capacity int64

	mu    sync.Mutex
	stats CacheStats
	now   func() time.Time
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string, capacity int64) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		capacity: capacity,
		stats:    CacheStats{Capacity: capacity},
		now:      time.Now,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS audio_cache (
    key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    size INTEGER NOT NULL,
    written_at INTEGER NOT NULL,
    accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audio_cache_accessed ON audio_cache(accessed_at);
CREATE INDEX IF NOT EXISTS idx_audio_cache_written ON audio_cache(written_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM audio_cache WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.record(false)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("query audio: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE audio_cache SET accessed_at = ? WHERE key = ?`, s.now().UnixNano(), key); err != nil {
		return nil, fmt.Errorf("touch audio: %w", err)
	}
	s.record(true)
	return data, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	size := int64(len(value))
	if size > s.capacity {
		return ErrItemTooLarge
	}

	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audio_cache (key, data, size, written_at, accessed_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET data = excluded.data, size = excluded.size,
    written_at = excluded.written_at, accessed_at = excluded.accessed_at`,
		key, value, size, now, now)
	if err != nil {
		return fmt.Errorf("insert audio: %w", err)
	}
	return s.evict(ctx, key)
}

// evict drops least recently accessed rows, never keep, until within capacity.
func (s *SQLiteStore) evict(ctx context.Context, keep string) error {
	for {
		total, err := s.Size(ctx)
		if err != nil {
			return err
		}
		if total <= s.capacity {
			return nil
		}
		res, err := s.db.ExecContext(ctx, `
DELETE FROM audio_cache WHERE key = (
    SELECT key FROM audio_cache WHERE key != ? ORDER BY accessed_at ASC LIMIT 1
)`, keep)
		if err != nil {
			return fmt.Errorf("evict audio: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		s.mu.Lock()
		s.stats.Evictions++
		s.stats.LastEvict = s.now()
		s.mu.Unlock()
	}
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete audio: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache`); err != nil {
		return fmt.Errorf("clear audio: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *SQLiteStore) Size(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM audio_cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum audio size: %w", err)
	}
	return total, nil
}

// Prune implements Store. Age is measured from when the row was written.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE written_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audio: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stats implements Store. Size and item count are read from the database.
func (s *SQLiteStore) Stats() CacheStats {
	var size, count int64
	_ = s.db.QueryRow(`SELECT COALESCE(SUM(size), 0), COUNT(*) FROM audio_cache`).Scan(&size, &count)

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Size = size
	stats.ItemCount = count
	stats.updateHitRate()
	return stats
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) record(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.stats.Hits++
		s.stats.LastAccess = s.now()
	} else {
		s.stats.Misses++
	}
}
