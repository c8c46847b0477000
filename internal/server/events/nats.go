package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the prefix used when none is configured; the note id is
// appended as the last token.
const DefaultSubject = "voicenotes.status"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes status changes as JSON on "<subject>.<noteID>".
type NATSPublisher struct {
	pub     publisher
	conn    *nats.Conn
	subject string
	log     logging.Logger
}

func newNATSPublisher(pub publisher, subject string, log logging.Logger) *NATSPublisher {
	subject = strings.TrimSuffix(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &NATSPublisher{pub: pub, subject: subject, log: log.With("module", "events.nats")}
}

// ConnectNATS dials the comma-separated server list in url.
func ConnectNATS(url, subject string, timeout time.Duration, log logging.Logger) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("no NATS servers configured")
	}

	opts := []nats.Option{nats.Name("voicenotes-server")}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	p := newNATSPublisher(conn, subject, log)
	p.conn = conn
	p.log.Info(context.Background(), "connected to NATS", "servers", url, "subject", p.subject)
	return p, nil
}

// Subject returns the full subject a change for noteID is published on.
func (p *NATSPublisher) Subject(noteID string) string {
	return p.subject + "." + noteID
}

func (p *NATSPublisher) Notify(ctx context.Context, ev StatusChange) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn(ctx, "failed to marshal status change", "note_id", ev.NoteID, "error", err)
		return
	}
	if err := p.pub.Publish(p.Subject(ev.NoteID), data); err != nil {
		p.log.Warn(ctx, "failed to publish status change", "note_id", ev.NoteID, "error", err)
	}
}

// Healthy reports whether the underlying connection is up.
func (p *NATSPublisher) Healthy() bool {
	return p.conn == nil || p.conn.Status() == nats.CONNECTED
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.log.Info(context.Background(), "closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}
