package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
)

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseID(args []string, format string) (int64, error) {
	if len(args) == 0 {
		return 0, usage(format)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id %q", args[0])
	}
	return id, nil
}

// Add saves a new note locally and hands it to the coordinator.
func (a *App) Add(ctx context.Context, args []string) error {
	const format = "add [-a audio.wav] [-c category] [-t text] [-p photo]... [-g tag]... <title>"

	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	audioPath := fs.String("a", "", "audio file")
	category := fs.String("c", "", "category label")
	text := fs.String("t", "", "typed text")
	var photos, tags stringList
	fs.Var(&photos, "p", "photo file")
	fs.Var(&tags, "g", "tag")

	if err := fs.Parse(args); err != nil {
		return usage(format)
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" {
		return usage(format)
	}

	note := &models.VoiceNote{
		Title:             title,
		AudioFilePath:     *audioPath,
		OriginalText:      *text,
		CategoryLabel:     *category,
		RecognitionStatus: models.RecognitionInQueue,
		SyncStatus:        models.SyncLocalOnly,
	}

	if note.AudioFilePath != "" {
		d, err := a.duration(note.AudioFilePath)
		if err != nil {
			fmt.Fprintf(a.out, "Warning: %v\n", err)
		}
		note.Duration = d
	}

	for _, p := range photos {
		a.warnMissing(p)
		note.Photos = append(note.Photos, models.Photo{FilePath: p})
	}
	note.Tags = appendTags(nil, tags)

	id, err := a.notes.Save(ctx, note)
	if err != nil {
		return err
	}
	note.LocalID = id
	a.sync.Track(note)

	fmt.Fprintf(a.out, "Saved note #%d %q in %s\n", id, note.Title, note.CategoryLabel)
	return nil
}

// Photo attaches photos to a note that has not been uploaded yet.
func (a *App) Photo(ctx context.Context, args []string) error {
	const format = "photo <id> <path>..."

	id, err := parseID(args, format)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage(format)
	}

	note, err := a.notes.Get(ctx, id)
	if err != nil {
		return a.describe(id, err)
	}
	if note.ServerID != "" {
		return fmt.Errorf("note #%d is already uploaded, photos can no longer be added", id)
	}
	if note.SyncStatus == models.SyncUploading {
		return fmt.Errorf("note #%d is being uploaded, photos can no longer be added", id)
	}

	for _, p := range args[1:] {
		a.warnMissing(p)
		note.Photos = append(note.Photos, models.Photo{FilePath: p})
	}
	if err := a.notes.UpdateAttachments(ctx, note); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Note #%d has %d photo(s)\n", id, len(note.Photos))
	return nil
}

func (a *App) Tag(ctx context.Context, args []string) error {
	const format = "tag <id> <tag>..."

	id, err := parseID(args, format)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return usage(format)
	}

	note, err := a.notes.Get(ctx, id)
	if err != nil {
		return a.describe(id, err)
	}
	note.Tags = appendTags(note.Tags, args[1:])
	if err := a.notes.UpdateAttachments(ctx, note); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Note #%d tags: %s\n", id, joinTags(note.Tags))
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	list, err := a.notes.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No notes yet")
		return nil
	}
	return renderNotes(a.out, list, terminalWidth(a.termFd))
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := parseID(args, "show <id>")
	if err != nil {
		return err
	}
	note, err := a.notes.Get(ctx, id)
	if err != nil {
		return a.describe(id, err)
	}
	return renderNote(a.out, note)
}

// Retry resubmits a note whose upload or recognition failed.
func (a *App) Retry(ctx context.Context, args []string) error {
	id, err := parseID(args, "retry <id>")
	if err != nil {
		return err
	}

	note, err := a.notes.Get(ctx, id)
	if err != nil {
		return a.describe(id, err)
	}
	if note.SyncStatus != models.SyncFailed && note.RecognitionStatus != models.RecognitionError {
		fmt.Fprintf(a.out, "Note #%d has not failed (%s, %s)\n", id, note.SyncStatus, note.RecognitionStatus)
		return nil
	}

	note, err = a.sync.Retry(ctx, id)
	if errors.Is(err, common.ErrUnavailable) {
		return errors.New("server is unreachable, try again when online")
	}
	if err != nil {
		return a.describe(id, err)
	}

	fmt.Fprintf(a.out, "Note #%d: %s, %s\n", id, note.SyncStatus, note.RecognitionStatus)
	return nil
}

// Delete removes the note from this device only.
func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := parseID(args, "delete <id>")
	if err != nil {
		return err
	}
	if err := a.notes.Delete(ctx, id); err != nil {
		return a.describe(id, err)
	}
	fmt.Fprintf(a.out, "Deleted note #%d\n", id)
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	fmt.Fprintf(a.out, "Mode: %s\n", a.monitor.Mode())
	fmt.Fprintf(a.out, "Pending uploads: %d\n", a.sync.Pending())
	fmt.Fprintf(a.out, "Awaiting recognition: %d\n", len(a.sync.Tracked()))
	return nil
}

func (a *App) describe(id int64, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("note #%d not found", id)
	}
	return err
}

func (a *App) warnMissing(path string) {
	ok, err := filex.Exists(path)
	if err != nil || !ok {
		fmt.Fprintf(a.out, "Warning: %s does not exist and will not be uploaded\n", path)
	}
}

// appendTags adds values not already present, ignoring case and blanks.
func appendTags(tags []models.Tag, values []string) []models.Tag {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		seen[strings.ToLower(t.Value)] = true
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, models.Tag{Value: v})
	}
	return tags
}

func joinTags(tags []models.Tag) string {
	values := make([]string, 0, len(tags))
	for _, t := range tags {
		values = append(values, t.Value)
	}
	return strings.Join(values, ", ")
}
