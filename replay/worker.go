package replay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/internal/metrics"
	"github.com/arloliu/strand/types"
)

// ExecuteFunc re-executes a payload, usually strand.Session.Replay.
type ExecuteFunc func(ctx context.Context, payload types.ReplayPayload) error

// WorkerConfig configures a replay worker.
type WorkerConfig struct {
	// Concurrency is the number of goroutines consuming the queue.
	// Default: 1
	Concurrency int

	// BatchSize is the number of payloads fetched per NATS pull.
	// Default: 100
	BatchSize int

	// RetryDelay is the delay before the second attempt of a payload. It
	// doubles with every further attempt.
	// Default: 100ms
	RetryDelay time.Duration

	// MaxRetryDelay caps the retry delay.
	// Default: 30 seconds
	MaxRetryDelay time.Duration

	// ExecuteTimeout bounds one execution.
	// Default: 30 seconds
	ExecuteTimeout time.Duration

	// MaxAttempts is the number of executions before a payload is dropped.
	// A NATS payload is also dropped on its last stream delivery.
	// Default: 5
	MaxAttempts int

	// Metrics records replay outcomes. Nil disables metrics.
	Metrics types.MetricsCollector

	// Logger receives worker events. Nil disables logging.
	Logger types.Logger

	OnSuccess func(payload types.ReplayPayload)
	OnError   func(payload types.ReplayPayload, err error, attempt int)
	OnDrop    func(payload types.ReplayPayload, err error)
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:    1,
		BatchSize:      100,
		RetryDelay:     100 * time.Millisecond,
		MaxRetryDelay:  30 * time.Second,
		ExecuteTimeout: 30 * time.Second,
		MaxAttempts:    5,
	}
}

// WorkerOption configures a Worker.
type WorkerOption func(*WorkerConfig)

// WithConcurrency sets the number of consuming goroutines.
func WithConcurrency(n int) WorkerOption {
	return func(c *WorkerConfig) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// WithBatchSize sets the number of payloads fetched per NATS pull.
func WithBatchSize(n int) WorkerOption {
	return func(c *WorkerConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.RetryDelay = d
	}
}

// WithMaxRetryDelay sets the maximum retry delay.
func WithMaxRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxRetryDelay = d
	}
}

// WithExecuteTimeout sets the timeout of one execution.
func WithExecuteTimeout(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.ExecuteTimeout = d
	}
}

// WithMaxAttempts sets the number of executions before a payload is dropped.
//
// Parameters:
//   - n: Attempts per payload, ignored unless positive
//
// Returns:
//   - WorkerOption: Configuration option
func WithMaxAttempts(n int) WorkerOption {
	return func(c *WorkerConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithWorkerMetrics sets the metrics collector of the worker.
func WithWorkerMetrics(m types.MetricsCollector) WorkerOption {
	return func(c *WorkerConfig) {
		c.Metrics = m
	}
}

// WithWorkerLogger sets the logger of the worker.
func WithWorkerLogger(l types.Logger) WorkerOption {
	return func(c *WorkerConfig) {
		c.Logger = l
	}
}

// WithOnSuccess sets a callback run after every successful replay.
func WithOnSuccess(fn func(types.ReplayPayload)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnSuccess = fn
	}
}

// WithOnError sets a callback run after every failed attempt.
func WithOnError(fn func(types.ReplayPayload, error, int)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnError = fn
	}
}

// WithOnDrop sets a callback run when a payload is given up.
func WithOnDrop(fn func(types.ReplayPayload, error)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnDrop = fn
	}
}

// Worker consumes a replay queue and re-executes every payload until it
// succeeds or runs out of attempts.
type Worker struct {
	config  WorkerConfig
	execute ExecuteFunc
	backend workerBackend
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// workerBackend is the queue specific consume loop. run returns when stopCh
// is closed or the queue is closed.
type workerBackend interface {
	run(w *Worker)
	backendType() string
}

func newWorker(backend workerBackend, execute ExecuteFunc, opts []WorkerOption) *Worker {
	cfg := DefaultWorkerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Metrics = metrics.OrNop(cfg.Metrics)
	cfg.Logger = logging.OrNop(cfg.Logger)

	return &Worker{
		config:  cfg,
		execute: execute,
		backend: backend,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the consuming goroutines.
//
// Returns:
//   - error: When the worker was already started
func (w *Worker) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("strand/replay: worker already running")
	}

	w.wg.Add(w.config.Concurrency)
	for range w.config.Concurrency {
		go func() {
			defer w.wg.Done()
			w.backend.run(w)
		}()
	}

	return nil
}

// Stop signals the goroutines and waits for the payloads in flight. A
// stopped worker cannot be restarted.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	close(w.stopCh)
	w.wg.Wait()
}

// IsRunning reports whether the worker is started and not stopped.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// BackendType returns "memory" or "nats".
func (w *Worker) BackendType() string {
	return w.backend.backendType()
}

// stopContext returns a context cancelled by Stop.
func (w *Worker) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// attempt runs one execution and records its outcome.
func (w *Worker) attempt(payload types.ReplayPayload, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.ExecuteTimeout)
	defer cancel()

	start := time.Now()
	err := w.execute(ctx, payload)
	w.config.Metrics.ObserveReplayDuration(time.Since(start).Seconds())

	if err == nil {
		w.config.Metrics.IncReplaySuccess()
		if w.config.OnSuccess != nil {
			w.config.OnSuccess(payload)
		}

		return nil
	}

	w.config.Metrics.IncReplayError()
	w.config.Logger.Warn("replay attempt failed",
		"id", payload.ID.String(),
		"attempt", n,
		"error", err.Error(),
	)
	if w.config.OnError != nil {
		w.config.OnError(payload, err, n)
	}

	return err
}

func (w *Worker) drop(payload types.ReplayPayload, err error) {
	w.config.Metrics.IncReplayDropped()
	w.config.Logger.Error("replay payload dropped",
		"id", payload.ID.String(),
		"error", err.Error(),
	)
	if w.config.OnDrop != nil {
		w.config.OnDrop(payload, err)
	}
}

// backoff returns the delay after the given failed attempt, starting at
// RetryDelay and doubling up to MaxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.config.RetryDelay
	for i := 1; i < attempt && delay < w.config.MaxRetryDelay; i++ {
		delay *= 2
	}

	return min(delay, w.config.MaxRetryDelay)
}

// memoryBackend consumes a MemoryReplayer. Failed payloads go back to the
// end of the queue after the backoff delay.
type memoryBackend struct {
	replayer *MemoryReplayer
	attempts *xsync.MapOf[uuid.UUID, int]
}

// NewMemoryWorker creates a worker consuming a MemoryReplayer.
//
// Parameters:
//   - replayer: The queue to consume
//   - execute: Re-executes one payload, usually session.Replay
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A worker ready to Start
func NewMemoryWorker(replayer *MemoryReplayer, execute ExecuteFunc, opts ...WorkerOption) *Worker {
	return newWorker(&memoryBackend{
		replayer: replayer,
		attempts: xsync.NewMapOf[uuid.UUID, int](),
	}, execute, opts)
}

func (b *memoryBackend) backendType() string {
	return "memory"
}

func (b *memoryBackend) run(w *Worker) {
	ctx, cancel := w.stopContext()
	defer cancel()

	for {
		// a payload re-enqueued by a stopping worker stays queued
		select {
		case <-w.stopCh:
			return
		default:
		}

		payload, err := b.replayer.Dequeue(ctx)
		if err != nil {
			// stopped, or closed and drained
			return
		}
		b.process(w, payload)
	}
}

func (b *memoryBackend) process(w *Worker, payload types.ReplayPayload) {
	n, _ := b.attempts.Compute(payload.ID, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})

	err := w.attempt(payload, n)
	if err == nil {
		b.attempts.Delete(payload.ID)
		return
	}
	if n >= w.config.MaxAttempts {
		b.attempts.Delete(payload.ID)
		w.drop(payload, err)

		return
	}

	// a stopping worker re-enqueues at once so the payload stays queued
	select {
	case <-w.stopCh:
	case <-time.After(w.backoff(n)):
	}

	if enqErr := b.replayer.Enqueue(context.Background(), payload); enqErr != nil {
		b.attempts.Delete(payload.ID)
		w.drop(payload, errors.Join(err, enqErr))
	}
}

// natsBackend consumes a NATSReplayer. Failed payloads are negatively
// acknowledged with the backoff delay and redelivered by the stream.
type natsBackend struct {
	replayer *NATSReplayer
}

// NewNATSWorker creates a worker consuming a NATSReplayer.
//
// Parameters:
//   - replayer: The stream to consume
//   - execute: Re-executes one payload, usually session.Replay
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A worker ready to Start
func NewNATSWorker(replayer *NATSReplayer, execute ExecuteFunc, opts ...WorkerOption) *Worker {
	return newWorker(&natsBackend{replayer: replayer}, execute, opts)
}

func (b *natsBackend) backendType() string {
	return "nats"
}

func (b *natsBackend) run(w *Worker) {
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		msgs, err := b.replayer.Fetch(w.config.BatchSize)
		if errors.Is(err, types.ErrReplayerClosed) {
			return
		}
		if err != nil {
			w.config.Logger.Warn("replay fetch failed", "error", err.Error())
		}

		for _, msg := range msgs {
			b.process(w, msg)
		}

		if err != nil {
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.config.RetryDelay):
			}
		}
	}
}

func (b *natsBackend) process(w *Worker, msg *Message) {
	n := int(msg.Delivered) //nolint:gosec // delivery counts stay small
	n = max(n, 1)

	err := w.attempt(msg.Payload, n)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			w.config.Logger.Warn("replay ack failed", "id", msg.Payload.ID.String(), "error", ackErr.Error())
		}

		return
	}

	if msg.LastDelivery() || n >= w.config.MaxAttempts {
		_ = msg.Term()
		w.drop(msg.Payload, err)

		return
	}

	if nakErr := msg.Nak(w.backoff(n)); nakErr != nil {
		w.config.Logger.Warn("replay nak failed", "id", msg.Payload.ID.String(), "error", nakErr.Error())
	}
}
