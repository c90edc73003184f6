package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

type event struct {
	Message     string    `json:"message"`
	PublishedAt time.Time `json:"published_at"`
}

// NATS publishes audit events as JSON on a subject.
type NATS struct {
	conn    publisher
	subject string
	log     *zap.Logger
	now     func() time.Time
}

var _ Sink = (*NATS)(nil)

// DialNATS connects to url. The caller closes the returned connection.
func DialNATS(url, subject string, log *zap.Logger) (*NATS, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("number-bot"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATS(nc, subject, log), nc, nil
}

func NewNATS(conn publisher, subject string, log *zap.Logger) *NATS {
	return &NATS{conn: conn, subject: subject, log: log.Named("notify.nats"), now: time.Now}
}

func (n *NATS) Publish(ctx context.Context, msg string) bool {
	if err := ctx.Err(); err != nil {
		n.log.Warn("publish skipped", zap.Error(err))
		return false
	}
	data, err := json.Marshal(event{Message: msg, PublishedAt: n.now().UTC()})
	if err != nil {
		n.log.Warn("encode event", zap.Error(err))
		return false
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.log.Warn("publish failed", zap.String("subject", n.subject), zap.Error(err))
		return false
	}
	return true
}
