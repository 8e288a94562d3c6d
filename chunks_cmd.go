package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chunksClipboard bool
	chunksWidth     int

	chunksCmd = &cobra.Command{
		Use:     "chunks [FILE|-]",
		Short:   "Show how a text is split for synthesis",
		Long:    paragraph(fmt.Sprintf("\nPrint the %s a text is read in, with their byte offsets. Chunk numbers can be passed to aloud speak --from.", keyword("chunks"))),
		Example: paragraph("aloud chunks notes.md\npbpaste | aloud chunks"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args, chunksClipboard)
			if err != nil {
				return err
			}
			at := audiotext.New(src.text, audiotext.WithMinLength(cfg.Playback.MinChunkLength))

			width := chunksWidth
			tty := term.IsTerminal(int(os.Stdout.Fd()))
			if width == 0 && tty {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w
				}
			}
			if width == 0 {
				width = 80
			}

			return printChunks(cmd.OutOrStdout(), at.Chunks(), width, tty)
		},
	}
)

func init() {
	chunksCmd.Flags().BoolVarP(&chunksClipboard, "clipboard", "c", false, "read the clipboard")
	chunksCmd.Flags().IntVarP(&chunksWidth, "width", "w", 0, "output width (default: terminal width)")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// chunkRow returns the columns shown for chunk i. The text column is the
// spoken text on one line, or a marker for silent chunks.
func chunkRow(i int, c audiotext.Chunk, textWidth int) []string {
	text := strings.Join(strings.Fields(c.Text), " ")
	if c.IsSilent() {
		text = "(silent)"
	}
	return []string{
		strconv.Itoa(i),
		strconv.Itoa(c.Start),
		strconv.Itoa(c.End),
		runewidth.Truncate(text, max(textWidth, 8), "…"),
	}
}

// printChunks writes a table on a terminal, tab-separated lines otherwise.
func printChunks(w io.Writer, chunks []audiotext.Chunk, width int, styled bool) error {
	// Room taken by the index and offset columns, borders and padding.
	const fixed = 30
	textWidth := width - fixed

	if !styled {
		for i, c := range chunks {
			if _, err := fmt.Fprintln(w, strings.Join(chunkRow(i, c, textWidth), "\t")); err != nil {
				return fmt.Errorf("unable to write to writer: %w", err)
			}
		}
		return nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("#", "START", "END", "TEXT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for i, c := range chunks {
		t.Row(chunkRow(i, c, textWidth)...)
	}

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}
