package cache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"
	// compressThreshold is the smallest payload worth compressing.
	compressThreshold = 1024
)

// DiskStore implements a persistent Store of one file per entry, optionally
// zstd-compressed, with a gob-encoded index.
type DiskStore struct {
	basePath string
	capacity int64 // Maximum size on disk in bytes
	size     int64 // Current size on disk in bytes

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats CacheStats
	now   func() time.Time
}

// diskEntry represents an entry in the disk index
type diskEntry struct {
	Key          string
	File         string // file name relative to basePath
	Size         int64  // Size on disk
	OriginalSize int64
	Written      time.Time
	LastAccess   time.Time
	Compressed   bool
}

// NewDiskStore opens or creates a disk store in basePath. A compression
// level of zero disables compression.
func NewDiskStore(basePath string, capacity int64, compressionLevel int) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	ds := &DiskStore{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    CacheStats{Capacity: capacity},
		now:      time.Now,
	}

	if compressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Always able to read compressed entries written with another level.
	var err error
	ds.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := ds.loadIndex(); err != nil {
		log.Warn("cache: ignoring unreadable index", "path", basePath, "err", err)
		ds.index = make(map[string]*diskEntry)
	}
	ds.calculateSize()

	return ds, nil
}

// Get implements Store.
func (ds *DiskStore) Get(_ context.Context, key string) ([]byte, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, ok := ds.index[key]
	if !ok {
		ds.stats.Misses++
		return nil, ErrCacheMiss
	}

	data, err := os.ReadFile(ds.path(entry))
	if err != nil {
		// File missing, drop it from the index
		ds.dropLocked(key, entry)
		ds.stats.Misses++
		return nil, ErrCacheMiss
	}

	if entry.Compressed {
		decompressed, err := ds.decoder.DecodeAll(data, nil)
		if err != nil {
			ds.dropLocked(key, entry)
			ds.stats.Misses++
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
		}
		data = decompressed
	}

	entry.LastAccess = ds.now()
	ds.stats.Hits++
	ds.stats.LastAccess = entry.LastAccess
	return data, nil
}

// Put implements Store.
func (ds *DiskStore) Put(_ context.Context, key string, value []byte) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	data := value
	compressed := false
	if ds.encoder != nil && len(value) > compressThreshold {
		// Only keep the compressed form when it is actually smaller
		if c := ds.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}

	diskSize := int64(len(data))
	if diskSize > ds.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := ds.index[key]; ok {
		ds.dropLocked(key, existing)
	}
	for ds.size+diskSize > ds.capacity && len(ds.index) > 0 {
		ds.evictOldest()
	}

	entry := &diskEntry{
		Key:          key,
		File:         fileName(key),
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Written:      ds.now(),
		Compressed:   compressed,
	}
	entry.LastAccess = entry.Written

	if err := writeFileAtomic(ds.path(entry), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	ds.index[key] = entry
	ds.size += diskSize
	return ds.saveIndex()
}

// Delete implements Store.
func (ds *DiskStore) Delete(_ context.Context, key string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, ok := ds.index[key]
	if !ok {
		return nil
	}
	ds.dropLocked(key, entry)
	return ds.saveIndex()
}

// Clear implements Store.
func (ds *DiskStore) Clear(_ context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for _, entry := range ds.index {
		_ = os.Remove(ds.path(entry))
	}
	ds.index = make(map[string]*diskEntry)
	ds.size = 0
	return ds.saveIndex()
}

// Size implements Store.
func (ds *DiskStore) Size(_ context.Context) (int64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.size, nil
}

// Prune implements Store. Age is measured from when the entry was written.
func (ds *DiskStore) Prune(_ context.Context, maxAge time.Duration) (int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	cutoff := ds.now().Add(-maxAge)
	removed := 0
	for key, entry := range ds.index {
		if entry.Written.Before(cutoff) {
			ds.dropLocked(key, entry)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, ds.saveIndex()
}

// Stats implements Store.
func (ds *DiskStore) Stats() CacheStats {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	stats := ds.stats
	stats.Size = ds.size
	stats.ItemCount = int64(len(ds.index))
	stats.updateHitRate()
	return stats
}

// Close implements Store, saving the index.
func (ds *DiskStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.encoder != nil {
		_ = ds.encoder.Close()
	}
	ds.decoder.Close()
	return ds.saveIndex()
}

func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + ".cache"
}

func (ds *DiskStore) path(entry *diskEntry) string {
	return filepath.Join(ds.basePath, entry.File)
}

func (ds *DiskStore) dropLocked(key string, entry *diskEntry) {
	if err := os.Remove(ds.path(entry)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Debug("cache: removing file", "file", entry.File, "err", err)
	}
	delete(ds.index, key)
	ds.size -= entry.Size
}

// evictOldest drops the least recently accessed entry (lock held).
func (ds *DiskStore) evictOldest() {
	entries := make([]*diskEntry, 0, len(ds.index))
	for _, e := range ds.index {
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	oldest := entries[0]
	ds.dropLocked(oldest.Key, oldest)
	ds.stats.Evictions++
	ds.stats.LastEvict = ds.now()
}

func (ds *DiskStore) loadIndex() error {
	file, err := os.Open(filepath.Join(ds.basePath, indexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close() //nolint:errcheck

	return gob.NewDecoder(file).Decode(&ds.index)
}

func (ds *DiskStore) saveIndex() error {
	path := filepath.Join(ds.basePath, indexFile)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(ds.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save cache index: %w", err)
	}

	return os.Rename(tempPath, path)
}

func (ds *DiskStore) calculateSize() {
	ds.size = 0
	for _, entry := range ds.index {
		ds.size += entry.Size
	}
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
