package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/store"
)

// Sink consumes envelopes. *dispatch.Dispatcher satisfies it.
type Sink interface {
	Dispatch(ctx context.Context, env catalog.Envelope) error
}

// Options configures a Bus.
type Options struct {
	// BufferSize is the queue capacity. Publish blocks when the queue is full.
	BufferSize int
	// Workers is the number of concurrent delivery goroutines.
	Workers int
	// MaxAttempts bounds deliveries per envelope, first try included.
	MaxAttempts int
	// Backoff is the base delay before a redelivery; attempt n waits n*Backoff.
	Backoff time.Duration

	Logger logging.Logger
}

// WithLogger sets the bus logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

type delivery struct {
	env     catalog.Envelope
	attempt int
}

// Bus is the in-process transport.
type Bus struct {
	sink        Sink
	deadLetters store.DeadLetterStore
	opts        Options

	queue   chan delivery
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

var _ catalog.Publisher = (*Bus)(nil)

// New builds a bus over the given sink and dead-letter store.
func New(sink Sink, deadLetters store.DeadLetterStore, optFns ...func(o *Options)) *Bus {
	opts := Options{
		BufferSize:  256,
		Workers:     4,
		MaxAttempts: 5,
		Backoff:     100 * time.Millisecond,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Bus{
		sink:        sink,
		deadLetters: deadLetters,
		opts:        opts,
		queue:       make(chan delivery, opts.BufferSize),
	}
}

// Start launches the delivery workers. It is a no-op on a bus that is
// already running.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	for i := 0; i < b.opts.Workers; i++ {
		b.workers.Add(1)
		go b.worker(ctx)
	}
}

// Publish enqueues the envelope for delivery. It blocks while the queue is
// full and fails with a transient error if ctx expires first.
func (b *Bus) Publish(ctx context.Context, env catalog.Envelope) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return &core.TransientError{Op: "publish", Err: fmt.Errorf("bus stopped")}
	}
	b.pending.Add(1)
	b.mu.Unlock()

	select {
	case b.queue <- delivery{env: env, attempt: 1}:
		return nil
	case <-ctx.Done():
		b.pending.Done()
		return &core.TransientError{Op: "publish", Err: ctx.Err()}
	}
}

// Drain blocks until every published envelope has been delivered,
// dead-lettered or abandoned by shutdown. Intended for tests and clean
// shutdown.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains in-flight work and stops the workers.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	err := b.Drain(ctx)
	if b.cancel != nil {
		b.cancel()
	}
	close(b.queue)
	b.workers.Wait()
	return err
}

func (b *Bus) worker(ctx context.Context) {
	defer b.workers.Done()
	for {
		select {
		case d, ok := <-b.queue:
			if !ok {
				return
			}
			b.deliver(ctx, d)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, d delivery) {
	err := b.sink.Dispatch(ctx, d.env)
	if err == nil {
		b.pending.Done()
		return
	}

	if core.Fatal(err) {
		b.deadLetter(ctx, d, err)
		b.pending.Done()
		return
	}

	if d.attempt >= b.opts.MaxAttempts {
		b.deadLetter(ctx, d, fmt.Errorf("attempts exhausted: %w", err))
		b.pending.Done()
		return
	}

	b.opts.Logger.Warn("delivery failed, scheduling retry",
		"event_type", d.env.DetailType, "event_id", d.env.ID,
		"attempt", d.attempt, "error", err)
	b.requeue(ctx, delivery{env: d.env, attempt: d.attempt + 1})
}

// requeue pushes the delivery back after a linear backoff without tying up a
// worker. The pending count is carried through so Drain still waits for it.
func (b *Bus) requeue(ctx context.Context, d delivery) {
	delay := time.Duration(d.attempt-1) * b.opts.Backoff
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			b.pending.Done()
			return
		}
		select {
		case b.queue <- d:
		case <-ctx.Done():
			b.pending.Done()
		}
	}()
}

func (b *Bus) deadLetter(ctx context.Context, d delivery, cause error) {
	raw, err := json.Marshal(d.env)
	if err != nil {
		raw = []byte(fmt.Sprintf("{\"id\":%q}", d.env.ID))
	}
	dl := &core.DeadLetter{
		ID:        uuid.NewString(),
		EventType: d.env.DetailType,
		Envelope:  raw,
		Reason:    cause.Error(),
		Attempts:  d.attempt,
		FailedAt:  time.Now().UTC(),
	}
	if err := b.deadLetters.AddDeadLetter(ctx, dl); err != nil {
		b.opts.Logger.Error("dead letter write failed", "event_id", d.env.ID, "error", err)
		return
	}
	b.opts.Logger.Error("event dead-lettered",
		"event_type", d.env.DetailType, "event_id", d.env.ID,
		"attempts", d.attempt, "reason", cause)
}
