// Package coordinator serializes lifecycle operations per session. Metering
// arithmetic assumes one exchange at a time per session; the coordinator
// enforces that ordering while keeping independent sessions concurrent.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/inferpay/inferpay/internal/shared/goroutine"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type task struct {
	ctx context.Context
	op  func(context.Context) error
	err chan error
}

type mailbox struct {
	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator owns one mailbox goroutine per session. Operations submitted
// for the same session run strictly in order; Cancel aborts the in-flight
// operation without disturbing counters it has already committed.
type Coordinator struct {
	mu        sync.Mutex
	mailboxes map[uint]*mailbox
	closed    bool
	wg        sync.WaitGroup
	logger    logger.Interface
}

func New(log logger.Interface) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		mailboxes: make(map[uint]*mailbox),
		logger:    log,
	}
}

// Do runs op for the session, queued behind any operation already in flight.
// It blocks until op returns, the caller's context is done, or the session
// is cancelled.
func (c *Coordinator) Do(ctx context.Context, sessionID uint, op func(context.Context) error) error {
	mb, err := c.mailbox(sessionID)
	if err != nil {
		return err
	}

	t := task{ctx: ctx, op: op, err: make(chan error, 1)}
	select {
	case mb.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-mb.ctx.Done():
		return context.Canceled
	}

	select {
	case err := <-t.err:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the session's in-flight operation and rejects queued ones.
// Called when a session transitions toward Ending or the client walks away.
func (c *Coordinator) Cancel(sessionID uint) {
	c.mu.Lock()
	mb, ok := c.mailboxes[sessionID]
	if ok {
		delete(c.mailboxes, sessionID)
	}
	c.mu.Unlock()

	if ok {
		mb.cancel()
	}
}

// Close cancels every session and waits for the mailbox goroutines to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	boxes := make([]*mailbox, 0, len(c.mailboxes))
	for id, mb := range c.mailboxes {
		boxes = append(boxes, mb)
		delete(c.mailboxes, id)
	}
	c.mu.Unlock()

	for _, mb := range boxes {
		mb.cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) mailbox(sessionID uint) (*mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, context.Canceled
	}
	if mb, ok := c.mailboxes[sessionID]; ok {
		return mb, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	mb := &mailbox{
		tasks:  make(chan task, 16),
		ctx:    ctx,
		cancel: cancel,
	}
	c.mailboxes[sessionID] = mb

	c.wg.Add(1)
	goroutine.SafeGo(c.logger, fmt.Sprintf("session-mailbox-%d", sessionID), func() {
		defer c.wg.Done()
		c.run(mb)
	})
	return mb, nil
}

func (c *Coordinator) run(mb *mailbox) {
	for {
		select {
		case <-mb.ctx.Done():
			c.drain(mb)
			return
		case t := <-mb.tasks:
			t.err <- c.execute(mb, t)
		}
	}
}

// execute runs one operation under a context that ends with either the
// caller or the session.
func (c *Coordinator) execute(mb *mailbox, t task) error {
	opCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()

	stop := make(chan struct{})
	goroutine.SafeGo(c.logger, "session-op-watch", func() {
		select {
		case <-mb.ctx.Done():
			cancel()
		case <-stop:
		}
	})
	defer close(stop)

	return t.op(opCtx)
}

func (c *Coordinator) drain(mb *mailbox) {
	for {
		select {
		case t := <-mb.tasks:
			t.err <- context.Canceled
		default:
			return
		}
	}
}
