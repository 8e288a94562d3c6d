package tts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/loader"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/playback"
	"github.com/charmbracelet/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitializeLogging points the default logger at the configured file and
// sets its level. fallbackPath is used when cfg.File is empty; if both are
// empty logs stay on stderr. The returned closer releases the file.
func InitializeLogging(cfg LogConfig, fallbackPath string) (io.Closer, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}
	log.SetLevel(level)

	path := cfg.File
	if path == "" {
		path = fallbackPath
	}
	if path == "" {
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log.SetDefault(log.NewWithOptions(file, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	}))
	log.Debug("logging initialized", "path", path, "level", level)
	return file, nil
}

// LogProviderSelection logs which provider a session is using
func LogProviderSelection(name string, reason string) {
	log.Info("provider selected",
		"provider", name,
		"reason", reason)
}

// logPlaybackState logs controller transitions.
func logPlaybackState(logger *log.Logger, s playback.State) {
	if s.Current == playback.StateError && s.LastError != nil {
		logger.Warn("playback stalled",
			"chunk", s.Cursor,
			"kind", s.LastError.Kind(),
			"err", s.LastError)
		return
	}
	logger.Debug("playback state",
		"state", s.Current,
		"chunk", s.Cursor,
		"total", s.Total,
		"offset", s.Offset)
}

// FormatStats renders loader counters for humans.
func FormatStats(s loader.Stats) string {
	return fmt.Sprintf(
		"Synthesis Stats:\n"+
			"  Requests: %d\n"+
			"  Cache hits: %d\n"+
			"  Provider calls: %d\n"+
			"  Failures: %d\n"+
			"  Discarded: %d",
		s.Requests,
		s.CacheHits,
		s.ProviderCalls,
		s.Failures,
		s.Discarded,
	)
}
