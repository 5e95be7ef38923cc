package mail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	msg Message
	att *Attachment
}

// slowTransport blocks every send until release is closed.
type slowTransport struct {
	release chan struct{}
	mu      sync.Mutex
	sent    []sent
	done    chan struct{}
	err     error
	panics  bool
}

func newSlowTransport(buffer int) *slowTransport {
	return &slowTransport{release: make(chan struct{}), done: make(chan struct{}, buffer)}
}

func (t *slowTransport) Send(_ context.Context, msg Message, att *Attachment) error {
	<-t.release
	if t.panics {
		panic("smtp exploded")
	}
	t.mu.Lock()
	t.sent = append(t.sent, sent{msg, att})
	t.mu.Unlock()
	t.done <- struct{}{}
	return t.err
}

func (t *slowTransport) snapshot() []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sent(nil), t.sent...)
}

func waitSent(t *testing.T, tr *slowTransport, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-tr.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d messages sent", i, n)
		}
	}
}

func TestDispatchReturnsBeforeSendCompletes(t *testing.T) {
	tr := newSlowTransport(1)
	d := NewDispatcher(tr, 1, 4)

	returned := make(chan struct{})
	go func() {
		d.Dispatch(Message{To: "alice@example.com", Subject: "hi", HTML: "<p>hi</p>"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on the transport")
	}
	assert.Empty(t, tr.snapshot())

	close(tr.release)
	waitSent(t, tr, 1)
	require.NoError(t, d.Close(context.Background()))

	got := tr.snapshot()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].msg.ID)
}

func TestDispatchMissingAttachmentSendsHTMLOnly(t *testing.T) {
	tr := newSlowTransport(1)
	close(tr.release)
	d := NewDispatcher(tr, 1, 1)

	d.Dispatch(Message{
		To:             "alice@example.com",
		Subject:        "report",
		HTML:           "<p>report</p>",
		AttachmentPath: filepath.Join(t.TempDir(), "missing.pdf"),
	})
	waitSent(t, tr, 1)
	require.NoError(t, d.Close(context.Background()))

	got := tr.snapshot()
	require.Len(t, got, 1)
	assert.Nil(t, got[0].att)
	assert.Equal(t, "<p>report</p>", got[0].msg.HTML)
}

func TestDispatchLoadsAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20240301_report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	tr := newSlowTransport(2)
	close(tr.release)
	d := NewDispatcher(tr, 1, 2)
	d.Dispatch(Message{To: "a@example.com", AttachmentPath: path})
	d.Dispatch(Message{To: "b@example.com", AttachmentPath: path, AttachmentName: "OScan_Report.pdf"})
	waitSent(t, tr, 2)
	require.NoError(t, d.Close(context.Background()))

	got := tr.snapshot()
	require.Len(t, got, 2)
	require.NotNil(t, got[0].att)
	assert.Equal(t, "20240301_report.pdf", got[0].att.Name)
	assert.Equal(t, "application/pdf", got[0].att.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), got[0].att.Data)
	assert.Equal(t, "OScan_Report.pdf", got[1].att.Name)
}

func TestDispatchSurvivesTransportFailures(t *testing.T) {
	tr := newSlowTransport(1)
	tr.panics = true
	close(tr.release)
	d := NewDispatcher(tr, 1, 2)

	d.Dispatch(Message{To: "a@example.com"})
	require.NoError(t, d.Close(context.Background()))

	tr2 := newSlowTransport(1)
	tr2.err = errors.New("550 mailbox unavailable")
	close(tr2.release)
	d2 := NewDispatcher(tr2, 1, 1)
	d2.Dispatch(Message{To: "b@example.com"})
	waitSent(t, tr2, 1)
	require.NoError(t, d2.Close(context.Background()))
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	tr := newSlowTransport(4)
	d := NewDispatcher(tr, 1, 1)

	for i := 0; i < 4; i++ {
		d.Dispatch(Message{To: "a@example.com"})
	}
	close(tr.release)
	require.NoError(t, d.Close(context.Background()))

	// one in flight in the worker plus one queued
	assert.LessOrEqual(t, len(tr.snapshot()), 2)
}

func TestCloseHonoursContext(t *testing.T) {
	tr := newSlowTransport(1)
	d := NewDispatcher(tr, 1, 1)
	d.Dispatch(Message{To: "a@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// dispatch after close is dropped, not a panic
	d.Dispatch(Message{To: "b@example.com"})
	close(tr.release)
}

// stallingTransport blocks until the send context ends.
type stallingTransport struct {
	hadDeadline chan bool
}

func (t *stallingTransport) Send(ctx context.Context, _ Message, _ *Attachment) error {
	_, ok := ctx.Deadline()
	t.hadDeadline <- ok
	<-ctx.Done()
	return ctx.Err()
}

func TestSendTimeoutFreesWorker(t *testing.T) {
	tr := &stallingTransport{hadDeadline: make(chan bool, 2)}
	d := NewDispatcher(tr, 1, 2, WithSendTimeout(30*time.Millisecond))

	d.Dispatch(Message{To: "a@example.com"})
	d.Dispatch(Message{To: "b@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.True(t, <-tr.hadDeadline)
	assert.True(t, <-tr.hadDeadline)
}
