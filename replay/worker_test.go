package replay_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arloliu/strand/replay"
	"github.com/arloliu/strand/test/testutil"
	"github.com/arloliu/strand/types"
)

func TestMemoryWorkerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := replay.NewMemoryReplayer()
	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error { return nil })
	assert.Equal(t, "memory", w.BackendType())

	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())
	require.Error(t, w.Start())

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestMemoryWorkerReplaysQueuedPayloads(t *testing.T) {
	r := replay.NewMemoryReplayer()
	collector := testutil.NewTestMetricsCollector()

	var executed atomic.Int32
	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error {
		executed.Add(1)
		return nil
	}, replay.WithWorkerMetrics(collector), replay.WithConcurrency(2))

	ctx := context.Background()
	for range 5 {
		require.NoError(t, r.Enqueue(ctx, testPayload("INSERT")))
	}

	require.NoError(t, w.Start())
	defer w.Stop()

	require.Eventually(t, func() bool {
		return executed.Load() == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(5), collector.GetReplaySuccess())
	assert.Zero(t, r.Len())
}

func TestMemoryWorkerRetriesUntilSuccess(t *testing.T) {
	r := replay.NewMemoryReplayer()

	var calls atomic.Int32
	var mu sync.Mutex
	var attempts []int
	succeeded := make(chan types.ReplayPayload, 1)

	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error {
		if calls.Add(1) < 3 {
			return errors.New("no host available")
		}
		return nil
	},
		replay.WithRetryDelay(5*time.Millisecond),
		replay.WithOnError(func(_ types.ReplayPayload, _ error, attempt int) {
			mu.Lock()
			attempts = append(attempts, attempt)
			mu.Unlock()
		}),
		replay.WithOnSuccess(func(p types.ReplayPayload) { succeeded <- p }),
	)

	p := testPayload("UPDATE t SET v = 1")
	require.NoError(t, r.Enqueue(context.Background(), p))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case got := <-succeeded:
		assert.Equal(t, p.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("payload was not replayed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestMemoryWorkerDropsAfterMaxAttempts(t *testing.T) {
	r := replay.NewMemoryReplayer()
	collector := testutil.NewTestMetricsCollector()
	dropped := make(chan error, 1)

	var calls atomic.Int32
	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error {
		calls.Add(1)
		return errors.New("still down")
	},
		replay.WithMaxAttempts(3),
		replay.WithRetryDelay(time.Millisecond),
		replay.WithWorkerMetrics(collector),
		replay.WithOnDrop(func(_ types.ReplayPayload, err error) { dropped <- err }),
	)

	require.NoError(t, r.Enqueue(context.Background(), testPayload("UPDATE t SET v = 1")))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case err := <-dropped:
		require.EqualError(t, err, "still down")
	case <-time.After(2 * time.Second):
		t.Fatal("payload was not dropped")
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), collector.GetReplayDropped())
	assert.Zero(t, r.Len())
}

func TestMemoryWorkerStopKeepsPayloadQueued(t *testing.T) {
	r := replay.NewMemoryReplayer()
	failed := make(chan struct{}, 1)

	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error {
		select {
		case failed <- struct{}{}:
		default:
		}
		return errors.New("down")
	}, replay.WithRetryDelay(time.Hour), replay.WithMaxRetryDelay(time.Hour))

	require.NoError(t, r.Enqueue(context.Background(), testPayload("UPDATE t SET v = 1")))
	require.NoError(t, w.Start())

	<-failed
	w.Stop()

	assert.Equal(t, 1, r.Len())
}

func TestMemoryWorkerExitsWhenReplayerClosed(t *testing.T) {
	r := replay.NewMemoryReplayer()
	w := replay.NewMemoryWorker(r, func(context.Context, types.ReplayPayload) error { return nil })
	require.NoError(t, w.Start())

	r.Close()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNATSWorkerAcksReplayedPayload(t *testing.T) {
	r := newNATSReplayer(t, "worker-ack")
	collector := testutil.NewTestMetricsCollector()

	var executed atomic.Int32
	w := replay.NewNATSWorker(r, func(context.Context, types.ReplayPayload) error {
		executed.Add(1)
		return nil
	}, replay.WithWorkerMetrics(collector))
	assert.Equal(t, "nats", w.BackendType())

	ctx := context.Background()
	for range 3 {
		require.NoError(t, r.Enqueue(ctx, testPayload("INSERT")))
	}

	require.NoError(t, w.Start())
	defer w.Stop()

	require.Eventually(t, func() bool {
		n, err := r.Pending(ctx)
		return err == nil && n == 0 && executed.Load() == 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(3), collector.GetReplaySuccess())
}

func TestNATSWorkerTerminatesOnLastDelivery(t *testing.T) {
	r := newNATSReplayer(t, "worker-term", replay.WithMaxDeliver(2))
	dropped := make(chan types.ReplayPayload, 1)

	var calls atomic.Int32
	w := replay.NewNATSWorker(r, func(context.Context, types.ReplayPayload) error {
		calls.Add(1)
		return errors.New("still down")
	},
		replay.WithRetryDelay(10*time.Millisecond),
		replay.WithOnDrop(func(p types.ReplayPayload, _ error) { dropped <- p }),
	)

	p := testPayload("UPDATE t SET v = 1")
	require.NoError(t, r.Enqueue(context.Background(), p))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case got := <-dropped:
		assert.Equal(t, p.ID, got.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("payload was not dropped")
	}
	assert.Equal(t, int32(2), calls.Load())

	require.Eventually(t, func() bool {
		n, err := r.Pending(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)
}
