package rabbit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/internal/model"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "payment.pending_review", RoutingKey(model.PaymentPendingReview))
	assert.Equal(t, "payment.approved", RoutingKey(model.PaymentApproved))
	assert.Equal(t, "payment.rejected", RoutingKey(model.PaymentRejected))
}

type acks struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *acks) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acks) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *acks) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(a *acks, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: tag, Body: []byte(body)}
}

func TestDeliverAcksAndRequeues(t *testing.T) {
	a := &acks{}
	msgs := make(chan amqp.Delivery, 2)
	msgs <- delivery(a, 1, "ok")
	msgs <- delivery(a, 2, "fail")
	close(msgs)

	deliver(context.Background(), msgs, func(body []byte) error {
		if string(body) == "fail" {
			return errors.New("db down")
		}
		return nil
	})

	assert.Equal(t, []uint64{1}, a.acked)
	assert.Equal(t, []uint64{2}, a.nacked)
	assert.Equal(t, []bool{true}, a.requeue)
}

func TestDeliverStopsAfterCancel(t *testing.T) {
	a := &acks{}
	msgs := make(chan amqp.Delivery, 8)
	for tag := uint64(1); tag <= 8; tag++ {
		msgs <- delivery(a, tag, "event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		deliver(ctx, msgs, func([]byte) error {
			calls++
			cancel()
			return ctx.Err()
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver kept running after cancel")
	}
	require.Equal(t, 1, calls)
	assert.Equal(t, []uint64{1}, a.nacked)
	assert.Empty(t, a.acked)
	assert.Len(t, msgs, 7)
}

func TestDeliverIdleCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		deliver(ctx, make(chan amqp.Delivery), func([]byte) error { return nil })
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver did not return after cancel")
	}
}
