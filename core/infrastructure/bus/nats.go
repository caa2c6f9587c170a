package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hyperterse/hypercluster/core/logger"
)

// NATSAdapter carries envelopes over a core NATS subject shared by every
// worker.
type NATSAdapter struct {
	conn    *nats.Conn
	subject string
	origin  string
	log     *logger.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

// NewNATSAdapter connects to the NATS server at url. Reconnects are retried
// forever; publishes made while disconnected are buffered by the client.
func NewNATSAdapter(url, subject, origin string) (*NATSAdapter, error) {
	log := logger.New("bus:nats")
	log.Debugf("Opening NATS connection")

	conn, err := nats.Connect(url,
		nats.Name("hypercluster-"+origin),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, log.Errorf("failed to connect to nats: %w", err)
	}

	log.Debugf("NATS bus ready on subject %s", subject)
	return &NATSAdapter{
		conn:    conn,
		subject: subject,
		origin:  origin,
		log:     log,
	}, nil
}

func (a *NATSAdapter) Publish(env Envelope) {
	if env.Origin == "" {
		env.Origin = a.origin
	}
	data, err := encode(env)
	if err != nil {
		a.log.Warnf("Dropping envelope %q: %v", env.Event, err)
		envelopesDropped.WithLabelValues("nats").Inc()
		return
	}
	if err := a.conn.Publish(a.subject, data); err != nil {
		a.log.Warnf("NATS publish failed: %v", err)
		envelopesDropped.WithLabelValues("nats").Inc()
		return
	}
	envelopesPublished.WithLabelValues("nats").Inc()
}

func (a *NATSAdapter) Subscribe(h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.sub != nil {
		return ErrAlreadySubscribed
	}

	sub, err := a.conn.Subscribe(a.subject, func(msg *nats.Msg) {
		env, err := decode(msg.Data)
		if err != nil {
			a.log.Warnf("Ignoring malformed nats message: %v", err)
			return
		}
		if env.Origin == a.origin {
			return
		}
		envelopesReceived.WithLabelValues("nats").Inc()
		h(env)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to nats subject %s: %w", a.subject, err)
	}
	// Make sure the server registered the interest before returning.
	if err := a.conn.Flush(); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("failed to flush nats subscription: %w", err)
	}
	a.sub = sub
	return nil
}

func (a *NATSAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.sub != nil {
		a.sub.Unsubscribe()
	}
	a.log.Debugf("Closing NATS connection")
	a.conn.Close()
	return nil
}
