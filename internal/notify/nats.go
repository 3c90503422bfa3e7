package notify

import (
	"context"
	"encoding/json"

	nats "github.com/nats-io/nats.go"

	"github.com/0xSifu/ioh-stories/internal/model"
)

// DefaultSubject is the subject notification events are published on.
const DefaultSubject = "notification.event"

// NATS implements Publisher over a NATS connection. Publication is
// at most once; no acknowledgment is requested.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS returns a NATS publisher. An empty subject selects DefaultSubject.
func NewNATS(conn *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// Publish marshals the event and hands it to the NATS client. The client
// buffers internally, so this does not wait for broker delivery.
func (n *NATS) Publish(_ context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}
