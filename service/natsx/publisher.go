package natsx

import (
	"encoding/json"
	"time"

	"QChat/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Event subjects consumed by sibling backend services (notification
// workers, analytics). This is a one-way firehose, not a cross-gateway
// fan-out layer: the connection registry stays single-process.
const (
	SubjectMessages = "chat.events.message"
	SubjectPresence = "chat.events.presence"
)

// Publisher is nil-safe: a nil *Publisher drops every publish, so the
// gateway runs unchanged when NATS is not configured.
type Publisher struct {
	nc *nats.Conn
}

func Connect(url, name string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Publisher{nc: nc}, nil
}

// Publish marshals v and sends it on subject. Publish failures are
// logged, never propagated: the firehose must not affect delivery.
func (p *Publisher) Publish(subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[natsx] marshal %s: %v", subject, err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		logger.Warnf("[natsx] publish %s: %v", subject, err)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}
