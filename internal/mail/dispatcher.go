// Package mail renders the branded notification emails and delivers them in
// the background.
package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	// DefaultSendTimeout caps one delivery so a stalled server cannot hold
	// a worker.
	DefaultSendTimeout = 2 * time.Minute
)

// Message is one outbound email.  AttachmentPath is optional; when set the
// file is attached as a PDF at send time.
type Message struct {
	ID             string
	To             string
	Subject        string
	HTML           string
	AttachmentPath string
	AttachmentName string
}

// Attachment is a file loaded for sending.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Transport delivers a rendered message.  att is nil for HTML-only mail.
type Transport interface {
	Send(ctx context.Context, msg Message, att *Attachment) error
}

// Dispatcher sends messages on a fixed pool of background workers.  Delivery
// is best effort: a full queue drops the message and failures are only
// logged.
type Dispatcher struct {
	transport Transport
	queue     chan Message
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	log       *logrus.Entry

	sendTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSendTimeout bounds each Transport.Send call.  Non-positive values keep
// the default.
func WithSendTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.sendTimeout = d
		}
	}
}

// NewDispatcher starts workers goroutines reading from a queue of the given
// size.
func NewDispatcher(t Transport, workers, queueSize int, opts ...Option) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		transport:   t,
		queue:       make(chan Message, queueSize),
		log:         logging.NewLogger("mail"),
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch enqueues msg and returns immediately.
func (d *Dispatcher) Dispatch(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	log := d.log.WithFields(logrus.Fields{"message_id": msg.ID, "to": msg.To, "subject": msg.Subject})

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn("dispatcher closed, message dropped")
		return
	}
	select {
	case d.queue <- msg:
	default:
		log.Warn("mail queue full, message dropped")
	}
}

// Close stops accepting messages and waits for queued ones until ctx is
// done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail dispatcher drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.send(msg)
	}
}

func (d *Dispatcher) send(msg Message) {
	log := d.log.WithFields(logrus.Fields{"message_id": msg.ID, "to": msg.To, "subject": msg.Subject})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("mail send panicked")
		}
	}()

	att, err := loadAttachment(msg)
	if err != nil {
		log.WithError(err).Warn("attachment unavailable, sending without it")
	}
	// Sends run detached from any request.
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	if err := d.transport.Send(ctx, msg, att); err != nil {
		log.WithError(err).Error("mail send failed")
		return
	}
	log.WithField("attachment", att != nil).Info("mail sent")
}

func loadAttachment(msg Message) (*Attachment, error) {
	if msg.AttachmentPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(msg.AttachmentPath)
	if err != nil {
		return nil, err
	}
	name := msg.AttachmentName
	if name == "" {
		name = filepath.Base(msg.AttachmentPath)
	}
	return &Attachment{Name: name, ContentType: "application/pdf", Data: data}, nil
}
