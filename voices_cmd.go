package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var (
	voicesLanguage string

	voicesCmd = &cobra.Command{
		Use:     "voices [PATTERN]",
		Short:   "List the voices of the configured provider",
		Long:    paragraph(fmt.Sprintf("\nList %s, optionally narrowed by language and a fuzzy pattern.", keyword("voices"))),
		Example: paragraph("aloud voices --provider google --language en-GB\naloud voices neural"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := newProvider()
			if err != nil {
				return err
			}
			lister, ok := provider.(itts.VoiceLister)
			if !ok {
				return fmt.Errorf("provider %s cannot list voices", provider.Name())
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			voices, err := lister.Voices(ctx, voicesLanguage)
			if err != nil {
				return fmt.Errorf("unable to list voices: %w", err)
			}

			if len(args) > 0 {
				voices = filterVoices(voices, args[0])
			}
			return printVoices(cmd.OutOrStdout(), voices, cfg.Provider.Voice)
		},
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesLanguage, "language", "l", "", "only voices speaking this language code prefix")
}

type voiceSource []itts.Voice

func (v voiceSource) String(i int) string { return v[i].Name }
func (v voiceSource) Len() int            { return len(v) }

// filterVoices keeps voices whose name fuzzily matches pattern, best first.
func filterVoices(voices []itts.Voice, pattern string) []itts.Voice {
	matches := fuzzy.FindFrom(pattern, voiceSource(voices))
	out := make([]itts.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func printVoices(w io.Writer, voices []itts.Voice, current string) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("No matching voices."))
		return err //nolint:wrapcheck
	}
	for _, v := range voices {
		marker := "  "
		if v.Name == current {
			marker = keyword("*") + " "
		}
		line := fmt.Sprintf("%s%s %s", marker, v.Name, dimStyle.Render(strings.Join(v.LanguageCodes, ",")))
		if v.Gender != "" {
			line += " " + dimStyle.Render(strings.ToLower(v.Gender))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err //nolint:wrapcheck
		}
	}
	return nil
}
