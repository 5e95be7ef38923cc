package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  The web front
// end raises NOTIFY on the configured channel whenever a user logs in or
// signs up, a case is submitted or an appointment is booked.  The payload
// is a JSON event.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
	log     *logrus.Entry
}

// NewNotifier constructs a new Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, dsn, channel string) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel, log: logging.NewLogger("pg-notify")}
}

// Notify sends payload on the channel.
func (n *Notifier) Notify(ctx context.Context, payload string) error {
	if _, err := n.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.Channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}

// Listen blocks until ctx is cancelled, calling handle for every payload
// received.  pq.Listener owns a dedicated connection and reconnects on its
// own; a periodic ping detects silently dropped connections.
func (n *Notifier) Listen(ctx context.Context, handle func(ctx context.Context, payload string)) error {
	l := pq.NewListener(n.DSN, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			n.log.WithError(err).WithField("event", ev).Warn("listener connection event")
		}
	})
	defer l.Close()

	if err := l.Listen(n.Channel); err != nil {
		return fmt.Errorf("listen %s: %w", n.Channel, err)
	}
	n.log.WithField("channel", n.Channel).Info("listening for events")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-l.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost
			if note == nil {
				n.log.Warn("listener reconnected")
				continue
			}
			handle(ctx, note.Extra)
		case <-ping.C:
			if err := l.Ping(); err != nil {
				n.log.WithError(err).Warn("listener ping failed")
			}
		}
	}
}
