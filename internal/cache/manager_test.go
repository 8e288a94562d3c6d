package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	disk, err := NewDiskStore(filepath.Join(t.TempDir(), "disk"), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "audio.db"), 1<<20)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	tieredDisk, err := NewDiskStore(filepath.Join(t.TempDir(), "tiered"), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(1 << 20),
		"disk":   disk,
		"sqlite": sqlite,
		"tiered": NewTieredStore(NewMemoryStore(1<<20), tieredDisk),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	// Compressible payload larger than the compression threshold
	large := bytes.Repeat([]byte("audio frame "), 500)

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
				t.Fatalf("expected ErrCacheMiss, got %v", err)
			}

			if err := store.Put(ctx, "small", []byte("abc")); err != nil {
				t.Fatalf("Put small failed: %v", err)
			}
			if err := store.Put(ctx, "large", large); err != nil {
				t.Fatalf("Put large failed: %v", err)
			}

			got, err := store.Get(ctx, "large")
			if err != nil {
				t.Fatalf("Get large failed: %v", err)
			}
			if !bytes.Equal(got, large) {
				t.Errorf("large value corrupted: got %d bytes", len(got))
			}

			// Saving identical content twice is harmless
			if err := store.Put(ctx, "small", []byte("abc")); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}
			got, err = store.Get(ctx, "small")
			if err != nil || string(got) != "abc" {
				t.Errorf("Get small = %q, %v", got, err)
			}

			size, err := store.Size(ctx)
			if err != nil {
				t.Fatalf("Size failed: %v", err)
			}
			if size <= 0 {
				t.Errorf("expected positive size, got %d", size)
			}

			if err := store.Delete(ctx, "small"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "small"); !errors.Is(err, ErrCacheMiss) {
				t.Errorf("expected miss after delete, got %v", err)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if size, _ := store.Size(ctx); size != 0 {
				t.Errorf("expected empty store after clear, got %d", size)
			}
		})
	}
}

func TestStores_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			buf := []byte("audio-bytes")
			if err := store.Put(ctx, "k", buf); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			buf[0] = 'X'

			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != "audio-bytes" {
				t.Fatalf("stored value changed with the caller's buffer: %q", got)
			}
			got[1] = 'Y'

			again, err := store.Get(ctx, "k")
			if err != nil || string(again) != "audio-bytes" {
				t.Errorf("stored value changed through a returned slice: %q, %v", again, err)
			}
		})
	}
}

func TestDiskStore_CompressesAndPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)

	ds, err := NewDiskStore(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	if err := ds.Put(ctx, "key", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if size, _ := ds.Size(ctx); size >= int64(len(payload)) {
		t.Errorf("expected compressed size below %d, got %d", len(payload), size)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, indexFile)); err != nil {
		t.Fatalf("index not written: %v", err)
	}

	reopened, err := NewDiskStore(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close() //nolint:errcheck

	got, err := reopened.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload changed across reopen")
	}
}

func TestDiskStore_MissingFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ds, err := NewDiskStore(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	defer ds.Close() //nolint:errcheck

	_ = ds.Put(ctx, "key", []byte("value"))
	if err := os.Remove(filepath.Join(dir, fileName("key"))); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, err := ds.Get(ctx, "key"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
	if size, _ := ds.Size(ctx); size != 0 {
		t.Errorf("stale entry still counted: %d", size)
	}
}

func TestStores_Eviction(t *testing.T) {
	ctx := context.Background()

	disk, err := NewDiskStore(t.TempDir(), 100, 0)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "audio.db"), 100)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	tests := []struct {
		name  string
		store Store
		tick  func(time.Time)
	}{
		{"disk", disk, func(now time.Time) { disk.now = func() time.Time { return now } }},
		{"sqlite", sqlite, func(now time.Time) { sqlite.now = func() time.Time { return now } }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.store.Close() //nolint:errcheck
			now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

			for i := 0; i < 4; i++ {
				tt.tick(now.Add(time.Duration(i) * time.Second))
				if err := tt.store.Put(ctx, fmt.Sprintf("key-%d", i), make([]byte, 30)); err != nil {
					t.Fatalf("Put %d failed: %v", i, err)
				}
			}

			size, _ := tt.store.Size(ctx)
			if size > 100 {
				t.Errorf("size %d exceeds capacity", size)
			}
			if _, err := tt.store.Get(ctx, "key-0"); !errors.Is(err, ErrCacheMiss) {
				t.Errorf("oldest key should be evicted, got %v", err)
			}
			if _, err := tt.store.Get(ctx, "key-3"); err != nil {
				t.Errorf("newest key should remain: %v", err)
			}
			if err := tt.store.Put(ctx, "huge", make([]byte, 101)); !errors.Is(err, ErrItemTooLarge) {
				t.Errorf("expected ErrItemTooLarge, got %v", err)
			}
		})
	}
}

func TestStores_Prune(t *testing.T) {
	ctx := context.Background()

	disk, err := NewDiskStore(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "audio.db"), 1<<20)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	tests := []struct {
		name   string
		store  Store
		setNow func(time.Time)
	}{
		{"disk", disk, func(now time.Time) { disk.now = func() time.Time { return now } }},
		{"sqlite", sqlite, func(now time.Time) { sqlite.now = func() time.Time { return now } }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.store.Close() //nolint:errcheck
			start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

			tt.setNow(start)
			_ = tt.store.Put(ctx, "old", []byte("old"))
			tt.setNow(start.Add(48 * time.Hour))
			_ = tt.store.Put(ctx, "new", []byte("new"))

			n, err := tt.store.Prune(ctx, 24*time.Hour)
			if err != nil {
				t.Fatalf("Prune failed: %v", err)
			}
			if n != 1 {
				t.Errorf("expected 1 pruned, got %d", n)
			}
			if _, err := tt.store.Get(ctx, "old"); !errors.Is(err, ErrCacheMiss) {
				t.Errorf("old entry should be gone, got %v", err)
			}
			if _, err := tt.store.Get(ctx, "new"); err != nil {
				t.Errorf("new entry should remain: %v", err)
			}
		})
	}
}

func TestTieredStore_Promotion(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryStore(1 << 20)
	disk, err := NewDiskStore(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	tiered := NewTieredStore(memory, disk)
	defer tiered.Close() //nolint:errcheck

	// Written only to the persistent tier
	if err := disk.Put(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if memory.Contains("key") {
		t.Fatal("memory tier should start empty")
	}

	if _, err := tiered.Get(ctx, "key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !memory.Contains("key") {
		t.Error("L2 hit should be promoted into memory")
	}

	_, _ = tiered.Get(ctx, "key")
	_, _ = tiered.Get(ctx, "missing")
	stats := tiered.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
}

func TestTieredStore_LargeItemStillPersisted(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryStore(4)
	disk, err := NewDiskStore(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	tiered := NewTieredStore(memory, disk)
	defer tiered.Close() //nolint:errcheck

	if err := tiered.Put(ctx, "key", []byte("longer than four")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := disk.Get(ctx, "key"); err != nil {
		t.Errorf("item should be persisted: %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		backend Backend
		wantErr bool
	}{
		{BackendMemory, false},
		{BackendDisk, false},
		{BackendSQLite, false},
		{BackendTiered, false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = tt.backend
			cfg.Dir = t.TempDir()
			cfg.CleanupInterval = 0

			store, err := Open(ctx, cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBackend) {
					t.Errorf("expected ErrUnknownBackend, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer store.Close() //nolint:errcheck

			if err := store.Put(ctx, "k", []byte("v")); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		})
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = ""
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error without cache dir")
	}
}

func TestJanitor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1024)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	_ = store.Put(ctx, "old", []byte("old"))
	now = now.Add(2 * time.Hour)

	j := StartJanitor(store, time.Hour, time.Hour)
	j.RunOnce(ctx)
	j.Stop()

	if store.Contains("old") {
		t.Error("janitor should have expired the old entry")
	}
	if j.Runs() != 1 {
		t.Errorf("expected 1 run, got %d", j.Runs())
	}
}

func TestFingerprint(t *testing.T) {
	opts := tts.Options{Provider: tts.ProviderOpenAI, Model: "tts-1", Voice: "shimmer", Speed: 1}

	base := Fingerprint(opts, tts.FormatMP3, "Hello world.")
	if base != Fingerprint(opts, tts.FormatMP3, "Hello world.") {
		t.Fatal("fingerprint is not deterministic")
	}
	if len(base) != 64 || strings.Trim(base, "0123456789abcdef") != "" {
		t.Errorf("unexpected fingerprint %q", base)
	}

	other := opts
	other.Voice = "alloy"

	tests := []struct {
		name string
		key  string
	}{
		{"text", Fingerprint(opts, tts.FormatMP3, "Hello world!")},
		{"voice", Fingerprint(other, tts.FormatMP3, "Hello world.")},
		{"format", Fingerprint(opts, tts.FormatWAV, "Hello world.")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Errorf("changing %s should change the fingerprint", tt.name)
			}
		})
	}

	// Canonically equivalent text shares a key
	if Fingerprint(opts, tts.FormatMP3, "caf\u00e9") != Fingerprint(opts, tts.FormatMP3, "cafe\u0301") {
		t.Error("NFC-equivalent text should share a fingerprint")
	}
}

func TestStoreCache(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(1 << 20))
	opts := tts.Options{Provider: tts.ProviderMock, Voice: "a"}

	if _, err := c.GetAudio(ctx, "hi", opts, tts.FormatMP3); !IsMiss(err) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.SaveAudio(ctx, "hi", opts, tts.FormatMP3, []byte("mp3")); err != nil {
		t.Fatalf("SaveAudio failed: %v", err)
	}
	got, err := c.GetAudio(ctx, "hi", opts, tts.FormatMP3)
	if err != nil || string(got) != "mp3" {
		t.Errorf("GetAudio = %q, %v", got, err)
	}
	if _, err := c.GetAudio(ctx, "hi", opts, tts.FormatWAV); !IsMiss(err) {
		t.Errorf("different format should miss, got %v", err)
	}
	if size, _ := c.StorageSize(ctx); size != 3 {
		t.Errorf("StorageSize = %d, want 3", size)
	}
	if err := c.Expire(ctx, 0); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.GetAudio(cancelled, "hi", opts, tts.FormatMP3); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
