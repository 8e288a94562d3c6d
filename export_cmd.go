package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	exportOutput      string
	exportConcurrency int
	exportClipboard   bool

	exportCmd = &cobra.Command{
		Use:     "export [FILE|-] -o OUT.wav",
		Short:   "Synthesize a whole text into one WAV file",
		Long:    paragraph(fmt.Sprintf("\n%s every sentence of a text and write the result as a single WAV file. Sentences already in the cache are not synthesized again.", keyword("Synthesize"))),
		Example: paragraph("aloud export chapter.md -o chapter.wav\naloud export --clipboard -o clip.wav --concurrency 8"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if exportOutput == "" {
				return errors.New("an output file is required: use -o OUT.wav")
			}
			src, err := readSource(args, exportClipboard)
			if err != nil {
				return err
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

			concurrency := exportConcurrency
			if concurrency == 0 {
				concurrency = cfg.Playback.ExportConcurrency
			}

			tmp, err := os.CreateTemp(filepath.Dir(exportOutput), ".aloud-*.wav")
			if err != nil {
				return fmt.Errorf("unable to create output file: %w", err)
			}
			defer os.Remove(tmp.Name()) //nolint:errcheck

			text := audiotext.New(src.text, audiotext.WithMinLength(cfg.Playback.MinChunkLength))
			res, err := aloud.Export(cmd.Context(), text, tmp, aloud.ExportConfig{
				Provider:    provider,
				Options:     provider.ConvertToOptions(cfg.Provider),
				Format:      cfg.AudioFormat(),
				Cache:       store,
				Concurrency: concurrency,
				Timeout:     cfg.Playback.SynthesisTimeout,
				Progress: func(done, total int) {
					fmt.Fprintf(os.Stderr, "\r%s", dimStyle.Render(fmt.Sprintf("%d/%d chunks", done, total)))
				},
			})
			fmt.Fprintln(os.Stderr)
			if cerr := tmp.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			if err := os.Rename(tmp.Name(), exportOutput); err != nil {
				return fmt.Errorf("unable to write output file: %w", err)
			}

			size := int64(0)
			if st, err := os.Stat(exportOutput); err == nil {
				size = st.Size()
			}
			fmt.Printf("Wrote %s (%s, %d chunks, %d from cache, %s)\n",
				exportOutput, res.Duration.Round(1e8), res.Chunks, res.CacheHits, humanize.Bytes(uint64(size))) //nolint:gosec
			return nil
		},
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "WAV file to write")
	exportCmd.Flags().IntVar(&exportConcurrency, "concurrency", 0, "provider calls in flight (default from config)")
	exportCmd.Flags().BoolVarP(&exportClipboard, "clipboard", "c", false, "read the clipboard")
}
