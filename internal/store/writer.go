// ABOUTME: Write serializer: a FIFO of flush requests drained by one writer goroutine
// ABOUTME: Guarantees at most one physical write in flight, in scheduling order

package store

import (
	"context"
	"log/slog"
	"sync"
)

// Pending is the future returned for a scheduled write.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the write (and every write scheduled before it) has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finishes and returns its error. Cancelling ctx
// stops the wait; the write itself still runs.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeQueue is an unbounded FIFO of write requests with a single consumer.
//
// Scheduling never blocks, so it is safe to call while holding the store
// mutex; that is what makes queue order equal mutation order.
type writeQueue struct {
	mu      sync.Mutex
	pending []*Pending
	closed  bool
	signal  chan struct{} // buffered, size 1
	stopped chan struct{}

	flush  func() error
	logger *slog.Logger
}

// newWriteQueue starts the writer goroutine.
func newWriteQueue(flush func() error, logger *slog.Logger) *writeQueue {
	q := &writeQueue{
		pending: make([]*Pending, 0, 16),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		flush:   flush,
		logger:  logger,
	}
	go q.run()
	return q
}

// schedule appends a write request and returns its future.
func (q *writeQueue) schedule() *Pending {
	p := newPending()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		p.resolve(ErrClosed)
		return p
	}

	q.pending = append(q.pending, p)

	// Non-blocking: the buffer of 1 coalesces wakeups
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return p
}

// next pops the oldest request.
func (q *writeQueue) next() (*Pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	p := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.pending = q.pending[:0:0]
	}
	return p, true
}

// run is the single writer. It exits once closed and drained.
func (q *writeQueue) run() {
	defer close(q.stopped)

	for {
		for {
			p, ok := q.next()
			if !ok {
				break
			}
			err := q.flush()
			if err != nil {
				// Reported to this caller only; later writes still run.
				q.logger.Error("write failed", "error", err)
			}
			p.resolve(err)
		}

		if q.drained() {
			return
		}
		// Returns at once when closed, or when a schedule raced the drain.
		<-q.signal
	}
}

// drained reports whether the queue is closed with nothing left to write.
func (q *writeQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.pending) == 0
}

// close stops accepting writes and waits for queued ones to finish.
func (q *writeQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
