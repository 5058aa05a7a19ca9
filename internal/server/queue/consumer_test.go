package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsumer(q Transport, handlers map[Kind]HandlerFunc, max int) *Consumer {
	c := NewConsumer(q, handlers, ConsumerOptions{
		MaxDeliveryAttempts: max,
		RetryBaseDelay:      time.Second,
		PollInterval:        5 * time.Millisecond,
	}, logging.Nop(), metrics.New(prometheus.NewRegistry()))
	// every retry is already due
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	return c
}

func drain(t *testing.T, c *Consumer, partition int) int {
	t.Helper()
	n := 0
	for {
		busy, err := c.ProcessOne(context.Background(), partition)
		require.NoError(t, err)
		if !busy {
			return n
		}
		n++
	}
}

func TestConsumer_AcksHandled(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, 1)
	var got []string
	c := newConsumer(q, map[Kind]HandlerFunc{
		KindObjectCreated: ObjectCreatedHandler(func(_ context.Context, ev models.ObjectCreated) error {
			got = append(got, ev.FileName)
			return nil
		}),
	}, 3)

	pub := NewPublisher(q)
	require.NoError(t, pub.PublishObjectCreated(ctx, models.ObjectCreated{ObjectKey: "k", VaultID: "V1", FileName: "a.txt"}))
	require.NoError(t, pub.PublishObjectCreated(ctx, models.ObjectCreated{ObjectKey: "k", VaultID: "V1", FileName: "b.txt"}))

	assert.Equal(t, 2, drain(t, c, 0))
	assert.Equal(t, []string{"a.txt", "b.txt"}, got)

	n, err := q.Recover(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, 1)
	var calls atomic.Int32
	c := newConsumer(q, map[Kind]HandlerFunc{
		KindPartCompleted: func(context.Context, *Message) error {
			calls.Add(1)
			return fmt.Errorf("part 3: %w", common.ErrOutOfOrder)
		},
	}, 3)

	require.NoError(t, NewPublisher(q).PublishPartCompleted(ctx, models.PartCompleted{ObjectKey: "k", PartIndex: 3}))
	assert.Equal(t, 3, drain(t, c, 0))
	assert.Equal(t, int32(3), calls.Load())

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempt)
	assert.Contains(t, dead[0].LastError, "part out of order")
}

func TestConsumer_PermanentErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, 1)
	var calls atomic.Int32
	c := newConsumer(q, map[Kind]HandlerFunc{
		KindPartCompleted: func(context.Context, *Message) error {
			calls.Add(1)
			return common.ErrIntegrity
		},
	}, 5)

	require.NoError(t, q.Enqueue(ctx, msg("k", 1)))
	assert.Equal(t, 1, drain(t, c, 0))
	assert.Equal(t, int32(1), calls.Load())

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, common.ErrIntegrity.Error(), dead[0].LastError)
}

func TestConsumer_UnknownKindAndBadPayload(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, 1)
	c := newConsumer(q, map[Kind]HandlerFunc{
		KindPartCompleted: PartCompletedHandler(func(context.Context, models.PartCompleted) error { return nil }),
	}, 5)

	require.NoError(t, q.Enqueue(ctx, &Message{Kind: KindObjectCreated, PartitionKey: "k", Payload: []byte(`{}`)}))
	require.NoError(t, q.Enqueue(ctx, &Message{Kind: KindPartCompleted, PartitionKey: "k", Payload: []byte(`[1,2]`)}))
	assert.Equal(t, 2, drain(t, c, 0))

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, dead, 2)
}

func TestConsumer_BackoffGrowsAndCaps(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerOptions{RetryBaseDelay: 100 * time.Millisecond, MaxRetryDelay: time.Second}, logging.Nop(), nil)
	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 400*time.Millisecond, c.backoff(3))
	assert.Equal(t, time.Second, c.backoff(6))
}

func TestConsumer_RunUntilCanceled(t *testing.T) {
	q, _ := newQueue(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan string, 8)
	c := newConsumer(q, map[Kind]HandlerFunc{
		KindPartCompleted: func(_ context.Context, m *Message) error {
			done <- m.PartitionKey
			return nil
		},
	}, 3)

	// left in flight by a previous process
	require.NoError(t, q.Enqueue(ctx, msg("stale", 1)))
	_, err := q.Dequeue(ctx, q.Partition("stale"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.NoError(t, NewPublisher(q).PublishPartCompleted(ctx, models.PartCompleted{ObjectKey: "fresh", PartIndex: 1}))

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case k := <-done:
			seen[k] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, seen %v", seen)
		}
	}
	assert.True(t, seen["stale"])
	assert.True(t, seen["fresh"])

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestMessage_DecodeIsPermanent(t *testing.T) {
	m := &Message{Kind: KindObjectCreated, Payload: []byte(`"x"`)}
	var ev models.ObjectCreated
	err := m.Decode(&ev)
	require.Error(t, err)
	assert.True(t, common.Permanent(err))
	assert.False(t, errors.Is(err, common.ErrorNotFound))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "part_completed", KindPartCompleted.String())
	assert.Equal(t, "object_created", KindObjectCreated.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
