package frame

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source produces frames until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, publish func(*Frame)) error
}

// MailboxStats is a snapshot of mailbox counters.
type MailboxStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Mailbox hands frames from a producer to a single worker, holding at most
// one undelivered frame. Publishing over an unconsumed frame releases the
// older one.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	closed bool

	published uint64
	dropped   uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores f as the latest frame. It never blocks.
func (m *Mailbox) Publish(f *Frame) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		f.Release()
		return
	}

	stale := m.frame
	m.frame = f
	atomic.AddUint64(&m.published, 1)
	m.cond.Signal()
	m.mu.Unlock()

	if stale != nil {
		atomic.AddUint64(&m.dropped, 1)
		stale.Release()
	}
}

// Next blocks until a frame is available and takes it. It returns nil once
// the mailbox is closed.
func (m *Mailbox) Next() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil
	}

	f := m.frame
	m.frame = nil
	return f
}

// CloseOnDone closes the mailbox when ctx is cancelled.
func (m *Mailbox) CloseOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		m.Close()
	}()
}

// Close wakes the consumer and releases any pending frame.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.frame
	m.frame = nil
	m.cond.Broadcast()
	m.mu.Unlock()

	if pending != nil {
		pending.Release()
	}
}

// Stats returns the current counters.
func (m *Mailbox) Stats() MailboxStats {
	return MailboxStats{
		Published: atomic.LoadUint64(&m.published),
		Dropped:   atomic.LoadUint64(&m.dropped),
	}
}
