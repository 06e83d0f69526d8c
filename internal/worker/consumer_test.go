package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// fakeQueue simulates the broker side of the consumer binding: a
// successful cancel closes the delivery channel the way RabbitMQ does.
type fakeQueue struct {
	mu          sync.Mutex
	deliveries  chan amqp.Delivery
	cancelErr   error
	cancelCalls int
}

func (q *fakeQueue) Consume(string, int) (<-chan amqp.Delivery, error) {
	return q.deliveries, nil
}

func (q *fakeQueue) CancelConsumer(string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelCalls++
	if q.cancelErr != nil {
		return q.cancelErr
	}
	close(q.deliveries)
	return nil
}

func (q *fakeQueue) Ack(uint64) error        { return nil }
func (q *fakeQueue) Nack(uint64, bool) error { return nil }

func newPausedWorker(q *fakeQueue) *Worker {
	store := newFakeStore()
	store.chaos = domain.ChaosConfig{Paused: true}
	w := newTestWorker(store, &fakeAnalyzer{}, nil)
	w.queue = q
	w.configPollInterval = 10 * time.Millisecond
	return w
}

func TestDispatch_PauseCancelsAndDrains(t *testing.T) {
	q := &fakeQueue{deliveries: make(chan amqp.Delivery, 1)}
	q.deliveries <- amqp.Delivery{}
	w := newPausedWorker(q)

	type result struct {
		resumed bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		resumed, err := w.dispatch(context.Background(), "tag", q.deliveries)
		done <- result{resumed, err}
	}()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.resumed, "a clean pause must hand control back to the pause wait")
		assert.Equal(t, 1, q.cancelCalls)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after the consumer cancel")
	}
}

func TestDispatch_PauseCancelFailureShutsDown(t *testing.T) {
	q := &fakeQueue{
		deliveries: make(chan amqp.Delivery),
		cancelErr:  errors.New("channel gone"),
	}
	w := newPausedWorker(q)

	type result struct {
		resumed bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		resumed, err := w.dispatch(context.Background(), "tag", q.deliveries)
		done <- result{resumed, err}
	}()

	// The delivery channel stays open because the cancel never landed;
	// dispatch must bail out instead of blocking on a drain.
	select {
	case got := <-done:
		require.Error(t, got.err)
		assert.False(t, got.resumed)
	case <-time.After(time.Second):
		t.Fatal("dispatch must shut down when the consumer cancel fails, not wait on the drain")
	}
}

func TestDispatch_ContextCancelStops(t *testing.T) {
	q := &fakeQueue{deliveries: make(chan amqp.Delivery)}
	store := newFakeStore()
	w := newTestWorker(store, &fakeAnalyzer{}, nil)
	w.queue = q
	w.configPollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resumed, err := w.dispatch(ctx, "tag", q.deliveries)
	require.NoError(t, err)
	assert.False(t, resumed)
}
