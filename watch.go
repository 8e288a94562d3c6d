package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// watchFile calls apply with the edits between successive saves of path
// until ctx is done. initial is the content apply has already seen.
//
// The directory is watched rather than the file, since many editors save
// by renaming a new file over the old one.
func watchFile(ctx context.Context, path, initial string, apply func([]aloud.Edit) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	prev := initial
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			fire = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		case <-fire:
			fire = nil
			b, err := os.ReadFile(path)
			if err != nil {
				log.Warn("unable to read changed file", "file", path, "error", err)
				continue
			}
			next := string(b)
			edits := aloud.DiffEdits(prev, next)
			if len(edits) == 0 {
				continue
			}
			if err := apply(edits); err != nil {
				return err
			}
			log.Debug("applied edits", "file", path, "edits", len(edits))
			prev = next
		}
	}
}
