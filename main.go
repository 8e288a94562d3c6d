// Package main provides the entry point for the aloud CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts/engines"
	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	providerName string
	voiceName    string
	logLevel     string

	// cfg is loaded before any command runs.
	cfg      = aloud.DefaultConfig()
	closeLog = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "aloud",
		Short: "Read text aloud, one sentence at a time",
		Long: paragraph(
			fmt.Sprintf("\nRead markdown and plain text %s. Sentences are synthesized just ahead of playback, cached, and re-synthesized when the text is edited.", keyword("aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}
)

// source is the text a command works on.
type source struct {
	text string
	// path is the absolute file path, empty for stdin and the clipboard.
	path string
}

// readSource reads the text named by args: a file, "-" for stdin, or the
// clipboard. With no argument a piped stdin is used.
func readSource(args []string, fromClipboard bool) (*source, error) {
	if fromClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("unable to read clipboard: %w", err)
		}
		return &source{text: text}, nil
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	if arg == "" {
		pipe, err := stdinIsPipe()
		if err != nil {
			return nil, err
		}
		if !pipe {
			return nil, errors.New("missing text source: pass a file, - for stdin, or --clipboard")
		}
		arg = "-"
	}

	if arg == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return &source{text: string(b)}, nil
	}

	b, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	p, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{text: string(b), path: p}, nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// loadConfig reads the config file, then the environment, then flags.
func loadConfig(cmd *cobra.Command) error {
	c, err := aloud.LoadConfig(configFile)
	if err != nil {
		return err //nolint:wrapcheck
	}
	if err := c.ApplyEnv(); err != nil {
		return err //nolint:wrapcheck
	}

	if cmd.Flags().Changed("provider") {
		c.Provider.Provider = itts.ProviderName(viper.GetString("provider.name"))
	}
	if cmd.Flags().Changed("voice") {
		c.Provider.Voice = viper.GetString("provider.voice")
	}
	if cmd.Flags().Changed("log-level") {
		c.Log.Level = viper.GetString("log.level")
	}

	if c.Provider.Provider != itts.ProviderNone {
		name, err := itts.ValidateProviderSelection("", c.Provider)
		if err != nil {
			return err //nolint:wrapcheck
		}
		c.Provider.Provider = name
	}

	if c.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, "aloud").CacheDir()
		if err != nil {
			return fmt.Errorf("unable to find cache directory: %w", err)
		}
		c.Cache.Dir = dir
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := setupLog(c.Log)
	if err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	closeLog = closer
	cfg = c
	return nil
}

// newProvider creates the configured provider.
func newProvider() (itts.Provider, error) {
	name, err := itts.ValidateProviderSelection("", cfg.Provider)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	settings := cfg.Provider
	settings.Provider = name

	p, err := engines.New(settings)
	if err != nil {
		return nil, fmt.Errorf("unable to create provider: %w", err)
	}
	aloud.LogProviderSelection(string(name), "config")
	return p, nil
}

// openCache opens the configured audio cache.
func openCache(cmd *cobra.Command) (*cache.StoreCache, error) {
	store, err := cache.Open(cmd.Context(), cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	return cache.New(store), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "synthesis provider (openai, google, mock)")
	rootCmd.PersistentFlags().StringVar(&voiceName, "voice", "", "voice name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Config bindings
	_ = viper.BindPFlag("provider.name", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("provider.voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		speakCmd,
		chunksCmd,
		exportCmd,
		cacheCmd,
		voicesCmd,
		validateCmd,
		configCmd,
		manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "aloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "aloud")}, dirs...)
	}

	if c := os.Getenv("ALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("aloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("aloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "aloud.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
