package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
)

// NATSSource subscribes to event subjects on a NATS server.
type NATSSource struct {
	nc      *nats.Conn
	subject string
	log     *logrus.Entry
}

func ConnectNATS(url, subject string) (*NATSSource, error) {
	log := logging.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("oscan-intake"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSource{nc: nc, subject: subject, log: log}, nil
}

// Run delivers message payloads to handle until ctx is cancelled.
func (s *NATSSource) Run(ctx context.Context, handle func(ctx context.Context, payload []byte)) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		handle(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.log.WithField("subject", s.subject).Info("listening for events")
	<-ctx.Done()
	return sub.Unsubscribe()
}

// SubjectFor returns the subject an event of kind is published on so that a
// subscription to pattern receives it.  A trailing ">" is replaced by the
// kind; a pattern without wildcards is used as is.
func SubjectFor(pattern string, kind Kind) (string, error) {
	tokens := strings.Split(pattern, ".")
	last := len(tokens) - 1
	for i, tok := range tokens {
		if tok == "*" || (tok == ">" && i != last) {
			return "", fmt.Errorf("cannot publish to subject pattern %q", pattern)
		}
	}
	if tokens[last] == ">" {
		if last == 0 {
			return string(kind), nil
		}
		return strings.Join(tokens[:last], ".") + "." + string(kind), nil
	}
	return pattern, nil
}

// Publish sends ev on subject.
func (s *NATSSource) Publish(subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return s.nc.Flush()
}

func (s *NATSSource) Close() {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}
}
