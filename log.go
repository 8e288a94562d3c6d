package main

import (
	"os"
	"path/filepath"

	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// setupLog sends logs to a file in the cache directory, leaving the
// terminal to the commands.
func setupLog(cfg aloud.LogConfig) (func() error, error) {
	path := cfg.File
	if path == "" && os.Getenv("ALOUD_LOG_STDERR") == "" {
		dir, err := gap.NewScope(gap.User, "aloud").CacheDir()
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		path = filepath.Join(dir, "aloud.log")
	}

	closer, err := aloud.InitializeLogging(cfg, path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	log.Debug("starting aloud", "version", Version)
	return closer.Close, nil
}
