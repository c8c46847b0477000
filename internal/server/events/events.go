// Package events carries note status changes from the recognition worker and
// the API to interested parties: WebSocket subscribers through the Hub and,
// when configured, a NATS subject.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/server/models"
)

// StatusChange is emitted every time a note's recognition status is written.
type StatusChange struct {
	NoteID       string                   `json:"noteId"`
	Status       models.RecognitionStatus `json:"recognitionStatus"`
	ErrorMessage string                   `json:"errorMessage,omitempty"`
	At           time.Time                `json:"at"`
}

// Notifier delivers status changes. Implementations must not block the
// caller for long and never fail the caller; delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, ev StatusChange)
}

// Multi fans a change out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev StatusChange) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}
