package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned to callers that enqueue after Close.
	ErrClosed = errors.New("db worker is closed")

	// ErrUnknownOp is returned when no handler is registered for an op.
	ErrUnknownOp = errors.New("unknown operation")
)

// TxFn runs inside a transaction owned by the worker goroutine.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// Handler executes one operation kind inside a transaction owned by the
// worker goroutine. The returned value is handed back to the caller that
// enqueued the request; a non-nil error rolls the transaction back.
type Handler func(ctx context.Context, tx *sql.Tx, args any) (any, error)

// Applied describes an operation after the worker finished it. Seq is
// global across all callers and strictly increasing in apply order.
type Applied struct {
	Seq  uint64
	Op   string
	Args any
	Err  error
}

// Option configures a Worker at construction.
type Option func(*Worker)

// WithLogger sets the logger for per-op debug and failure lines. A nil
// logger keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver registers fn to be called on the worker goroutine after each
// operation, before its result is delivered. fn must not call back into the
// worker.
func WithObserver(fn func(Applied)) Option {
	return func(w *Worker) { w.observer = fn }
}

type result struct {
	val any
	err error
}

type job struct {
	ctx  context.Context
	op   string
	args any
	fn   Handler
	ch   chan result
	stop bool
}

// Worker is the single writer for a *sql.DB. Requests from any number of
// goroutines are appended to one unbounded FIFO queue and executed one at a
// time, each in its own transaction. The worker owns the connection: Close
// drains everything queued before it and then closes the database.
type Worker struct {
	db       *sql.DB
	handlers map[string]Handler
	logger   *slog.Logger
	observer func(Applied)

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}

	once     sync.Once
	done     chan struct{}
	closeErr error

	seq uint64 // worker goroutine only
}

// NewWorker starts the worker goroutine. handlers is copied; it maps an
// operation kind to the function that executes it.
func NewWorker(db *sql.DB, handlers map[string]Handler, opts ...Option) *Worker {
	w := &Worker{
		db:       db,
		handlers: make(map[string]Handler, len(handlers)),
		logger:   slog.New(slog.DiscardHandler),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for op, h := range handlers {
		w.handlers[op] = h
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

// Close enqueues the shutdown sentinel and blocks until the worker has
// finished every request queued ahead of it and closed the database.
// Calling Close more than once is safe; later calls just wait.
func (w *Worker) Close() error {
	w.once.Do(func() {
		_ = w.enqueue(job{stop: true})
	})
	<-w.done
	return w.closeErr
}

// Invoke runs the handler registered for op with args and waits for its
// result. If ctx ends first Invoke returns ctx.Err(); the request has
// already been queued and is still applied.
func (w *Worker) Invoke(ctx context.Context, op string, args any) (any, error) {
	ch := make(chan result, 1)
	j := job{ctx: ctx, op: op, args: args, fn: w.handlers[op], ch: ch}

	if err := w.enqueue(j); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn in a worker transaction. It shares the queue with Invoke.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan result, 1)
	j := job{
		ctx: ctx,
		op:  "tx",
		fn: func(ctx context.Context, tx *sql.Tx, _ any) (any, error) {
			return nil, fn(ctx, tx)
		},
		ch: ch,
	}

	if err := w.enqueue(j); err != nil {
		return err
	}

	select {
	case r := <-ch:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call is Invoke with the result asserted to T.
func Call[T any](ctx context.Context, w *Worker, op string, args any) (T, error) {
	var zero T
	v, err := w.Invoke(ctx, op, args)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, v)
	}
	return t, nil
}

func (w *Worker) enqueue(j job) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.queue = append(w.queue, j)
	if j.stop {
		w.closed = true
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (w *Worker) next() job {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			j := w.queue[0]
			w.queue[0] = job{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return j
		}
		w.mu.Unlock()
		<-w.wake
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		j := w.next()
		if j.stop {
			w.closeErr = w.db.Close()
			w.logger.Debug("db worker stopped", "applied", w.seq)
			return
		}

		val, err := w.run(j)
		w.seq++

		if err != nil {
			w.logger.Warn("db op failed", "seq", w.seq, "op", j.op, "error", err)
		} else {
			w.logger.Debug("db op applied", "seq", w.seq, "op", j.op)
		}
		if w.observer != nil {
			w.observer(Applied{Seq: w.seq, Op: j.op, Args: j.args, Err: err})
		}

		j.ch <- result{val: val, err: err}
	}
}

func (w *Worker) run(j job) (val any, err error) {
	if j.fn == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, j.op)
	}

	// Once queued a request is applied even if its caller stopped waiting.
	ctx := context.WithoutCancel(j.ctx)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", j.op, err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			val, err = nil, fmt.Errorf("%s: panic: %v", j.op, r)
		}
	}()

	val, err = j.fn(ctx, tx, j.args)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", j.op, err)
	}
	return val, nil
}
