package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"golang.org/x/term"
)

const (
	defaultWidth  = 100
	minTitleWidth = 12
	// fixed columns: id, category, length, sync and recognition labels
	fixedColumnsWidth = 70
)

// getSize is a test seam for term.GetSize.
var getSize = term.GetSize

// terminalWidth returns the width of the terminal behind fd, or a default
// when output is not a terminal.
func terminalWidth(fd int) int {
	w, _, err := getSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// renderNotes prints a table of notes, shortening titles to fit width.
func renderNotes(w io.Writer, list []*models.VoiceNote, width int) error {
	titleWidth := width - fixedColumnsWidth
	if titleWidth < minTitleWidth {
		titleWidth = minTitleWidth
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tLENGTH\tSYNC\tRECOGNITION")
	for _, n := range list {
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\t%s\n",
			n.LocalID,
			truncate(n.Title, titleWidth),
			truncate(n.CategoryLabel, 16),
			n.DurationDisplay(),
			n.SyncStatus,
			n.RecognitionStatus,
		)
	}
	return tw.Flush()
}

// renderNote prints every field of a note followed by its transcript.
func renderNote(w io.Writer, n *models.VoiceNote) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}

	row("Note", fmt.Sprintf("#%d", n.LocalID))
	row("Title", n.Title)
	row("Category", n.CategoryLabel)
	row("Server ID", n.ServerID)
	row("Sync", n.SyncStatus.String())
	row("Recognition", n.RecognitionStatus.String())
	row("Audio", n.AudioFilePath)
	if n.AudioFilePath != "" {
		row("Length", n.DurationDisplay())
	}
	for i, p := range n.Photos {
		row(fmt.Sprintf("Photo %d", i+1), p.FilePath)
	}
	row("Tags", joinTags(n.Tags))
	if !n.CreatedAt.IsZero() {
		row("Created", n.CreatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if n.OriginalText != "" {
		fmt.Fprintf(w, "\nText:\n%s\n", n.OriginalText)
	}
	if n.RecognizedText != "" {
		label := "Transcript"
		if n.RecognitionStatus == models.RecognitionError {
			label = "Error"
		}
		fmt.Fprintf(w, "\n%s:\n%s\n", label, n.RecognizedText)
	}
	return nil
}
