package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const promoteBatch = 100

// promoteScript moves due messages from the delayed set to the tail of the
// ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue keeps, per partition, a ready list, a processing list of
// in-flight messages and a delayed sorted set scored by due time in unix
// milliseconds. Dead messages share one list.
//
// Messages are pushed on the left of ready and taken from the right, so
// each partition is FIFO.
type RedisQueue struct {
	client     redis.UniversalClient
	name       string
	partitions int
}

func NewRedisQueue(client redis.UniversalClient, name string, partitions int) *RedisQueue {
	if partitions < 1 {
		partitions = 1
	}
	return &RedisQueue{client: client, name: name, partitions: partitions}
}

// OpenRedisQueue connects to addr and verifies the connection.
func OpenRedisQueue(ctx context.Context, addr, password, name string, partitions int) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisQueue(client, name, partitions), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Partitions() int { return q.partitions }

// Partition maps a partition key to its partition.
func (q *RedisQueue) Partition(key string) int {
	return int(xxhash.Sum64String(key) % uint64(q.partitions))
}

func (q *RedisQueue) key(partition int, list string) string {
	return q.name + ":{" + strconv.Itoa(partition) + "}:" + list
}

func (q *RedisQueue) ready(p int) string      { return q.key(p, "ready") }
func (q *RedisQueue) processing(p int) string { return q.key(p, "processing") }
func (q *RedisQueue) delayed(p int) string    { return q.key(p, "delayed") }
func (q *RedisQueue) dead() string            { return q.name + ":dead" }

// Enqueue appends msg to its partition, assigning an ID and enqueue time
// when missing.
func (q *RedisQueue) Enqueue(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.ready(q.Partition(msg.PartitionKey)), raw).Err(); err != nil {
		return fmt.Errorf("enqueue error: %w", err)
	}
	return nil
}

// Dequeue moves the oldest ready message of partition to its processing
// list and returns it. It returns nil when the partition is empty.
func (q *RedisQueue) Dequeue(ctx context.Context, partition int) (*Message, error) {
	raw, err := q.client.LMove(ctx, q.ready(partition), q.processing(partition), "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue error: %w", err)
	}
	msg, err := decode(raw)
	if err != nil {
		// unreadable entries cannot be retried
		_, _ = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing(partition), 1, raw)
			pipe.RPush(ctx, q.dead(), raw)
			return nil
		})
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Ack drops a handled message.
func (q *RedisQueue) Ack(ctx context.Context, msg *Message) error {
	if err := q.client.LRem(ctx, q.processing(q.Partition(msg.PartitionKey)), 1, msg.raw).Err(); err != nil {
		return fmt.Errorf("ack error: %w", err)
	}
	return nil
}

// Retry schedules msg for redelivery after delay with its attempt count
// and last error updated by the caller.
func (q *RedisQueue) Retry(ctx context.Context, msg *Message, delay time.Duration) error {
	p := q.Partition(msg.PartitionKey)
	old := msg.raw
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing(p), 1, old)
		pipe.ZAdd(ctx, q.delayed(p), redis.Z{Score: due, Member: raw})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry error: %w", err)
	}
	msg.raw = raw
	return nil
}

// DeadLetter parks msg on the dead list with reason as its last error.
func (q *RedisQueue) DeadLetter(ctx context.Context, msg *Message, reason string) error {
	p := q.Partition(msg.PartitionKey)
	old := msg.raw
	msg.LastError = reason
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing(p), 1, old)
		pipe.RPush(ctx, q.dead(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead letter error: %w", err)
	}
	msg.raw = raw
	return nil
}

// PromoteDue moves delayed messages of partition that are due at now back
// to the ready list and returns how many were moved.
func (q *RedisQueue) PromoteDue(ctx context.Context, partition int, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.delayed(partition), q.ready(partition)},
		now.UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote error: %w", err)
	}
	return n, nil
}

// Recover returns the in-flight messages of partition to the consuming end
// of its ready list, oldest first. It must run before the partition's
// consumer starts.
func (q *RedisQueue) Recover(ctx context.Context, partition int) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing(partition), q.ready(partition), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover error: %w", err)
		}
		n++
	}
}

// DeadLetters returns up to limit dead messages, oldest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := q.client.LRange(ctx, q.dead(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(items))
	for _, raw := range items {
		m, err := decode(raw)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Len returns the number of ready messages of partition.
func (q *RedisQueue) Len(ctx context.Context, partition int) (int64, error) {
	return q.client.LLen(ctx, q.ready(partition)).Result()
}
