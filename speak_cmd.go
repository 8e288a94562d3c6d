package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/playback"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	speakOutput    string
	speakWatch     bool
	speakClipboard bool
	speakFrom      int
	speakRetries   int
	speakQuiet     bool

	speakCmd = &cobra.Command{
		Use:   "speak [FILE|-]",
		Short: "Read a text aloud",
		Long: paragraph(fmt.Sprintf("\n%s a file, stdin or the clipboard. The next few sentences are synthesized while the current one plays. With --watch, edits to the file are picked up while it is being read.", keyword("Speak"))),
		Example: paragraph("aloud speak notes.md\n" +
			"cat notes.md | aloud speak\n" +
			"aloud speak --clipboard --voice nova\n" +
			"aloud speak --watch draft.md\n" +
			"aloud speak notes.md --output - | aplay -f S16_LE -r 44100"),
		Args: cobra.MaximumNArgs(1),
		RunE: runSpeak,
	}
)

func init() {
	speakCmd.Flags().StringVarP(&speakOutput, "output", "o", "", "write raw 16-bit PCM to a file (- for stdout) instead of the speakers")
	speakCmd.Flags().BoolVarP(&speakWatch, "watch", "w", false, "follow edits to the file while reading")
	speakCmd.Flags().BoolVarP(&speakClipboard, "clipboard", "c", false, "read the clipboard")
	speakCmd.Flags().IntVar(&speakFrom, "from", 0, "start at this chunk (see aloud chunks)")
	speakCmd.Flags().IntVar(&speakRetries, "retries", 2, "retry a stalled chunk this many times on transient errors")
	speakCmd.Flags().BoolVarP(&speakQuiet, "quiet", "q", false, "do not print playback status")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	src, err := readSource(args, speakClipboard)
	if err != nil {
		return err
	}
	if speakWatch && src.path == "" {
		return errors.New("--watch needs a file")
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	store, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	sink, closeOutput, err := newSink()
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck

	session, err := aloud.NewSession(aloud.SessionConfig{
		Text:      src.text,
		Filename:  src.path,
		Provider:  provider,
		Options:   provider.ConvertToOptions(cfg.Provider),
		Format:    cfg.AudioFormat(),
		Cache:     store,
		Sink:      sink,
		Depth:     cfg.Playback.PrefetchDepth,
		MinLength: cfg.Playback.MinChunkLength,
		Timeout:   cfg.Playback.SynthesisTimeout,
	})
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer session.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !speakQuiet {
		printStatus(session.Controller(), string(provider.Name()))
	}

	if speakWatch {
		go func() {
			if err := watchFile(ctx, src.path, src.text, session.ApplyEdits); err != nil {
				log.Error("stopped watching", "file", src.path, "error", err)
			}
		}()
	}

	if speakFrom > 0 {
		if err := session.Controller().GoToPosition(speakFrom); err != nil {
			return fmt.Errorf("unable to start at chunk %d: %w", speakFrom, err)
		}
	}
	if err := session.Controller().Play(); err != nil {
		return fmt.Errorf("unable to start playback: %w", err)
	}

	err = waitWithRetries(ctx, session, speakRetries)
	if !speakQuiet {
		fmt.Fprintln(os.Stderr)
	}
	log.Info("speak finished", "stats", session.Stats())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitWithRetries waits for playback to finish, retrying a stalled chunk
// with a growing delay while its error is transient.
func waitWithRetries(ctx context.Context, session *aloud.Session, retries int) error {
	for attempt := 1; ; attempt++ {
		err := session.Wait(ctx)
		var perr *itts.ProviderError
		if !errors.As(err, &perr) || !perr.IsRetryable() || attempt > retries {
			return err //nolint:wrapcheck
		}

		delay := time.Duration(attempt) * time.Second
		log.Warn("retrying stalled chunk", "chunk", session.Controller().Position(), "attempt", attempt, "in", delay, "error", perr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := session.Retry(session.Controller().Position()); err != nil {
			return fmt.Errorf("unable to retry: %w", err)
		}
	}
}

// newSink returns the speakers, or a raw PCM writer when --output is set.
func newSink() (audio.Sink, func() error, error) {
	rate := cfg.Playback.SampleRate
	switch speakOutput {
	case "":
		config := audio.DefaultPlayerConfig()
		if rate > 0 {
			config.SampleRate = rate
		}
		sink, err := audio.NewOtoSink(config)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open audio output: %w", err)
		}
		return sink, func() error { return nil }, nil
	case "-":
		return audio.NewWriterSink(os.Stdout, rate, 1), func() error { return nil }, nil
	default:
		f, err := os.Create(speakOutput)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create output file: %w", err)
		}
		return audio.NewWriterSink(f, rate, 1), f.Close, nil
	}
}

// printStatus prints playback progress to stderr, redrawing one line on a
// terminal.
func printStatus(ctrl *playback.Controller, provider string) {
	var w io.Writer = os.Stderr
	tty := term.IsTerminal(int(os.Stderr.Fd()))
	ctrl.OnStateChange(func(s playback.State) {
		if tty {
			fmt.Fprintf(w, "\r%s\x1b[K", renderStatus(provider, s))
			return
		}
		fmt.Fprintf(w, "%s %d/%d\n", s.Current, min(s.Cursor+1, s.Total), s.Total)
	})
}
