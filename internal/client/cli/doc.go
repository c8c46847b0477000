// Package cli provides the interactive voice-notes command-line client.
//
// It wires configuration, the local database, the notes API client, the
// connectivity monitor and the sync coordinator, then runs a REPL on top of
// them. Notes are always saved locally first; the coordinator uploads them
// when the server is reachable and mirrors recognition results back.
//
// Commands:
//   - add      record a note (title, optional audio, text, category, photos, tags)
//   - photo    attach photos to a note that is not uploaded yet
//   - tag      add tags to a note
//   - list     list notes with their sync and recognition state
//   - show     print a single note with its transcript
//   - retry    resend a failed note or request recognition again
//   - delete   remove a note from this device
//   - status   show connectivity and queue state
//
// The REPL is started via App.Run(ctx), which blocks until the user exits or
// ctx is cancelled.
package cli
