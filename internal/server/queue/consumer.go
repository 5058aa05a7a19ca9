package queue

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc processes one message. A nil error acknowledges it.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Transport is the queue a Consumer reads from.
type Transport interface {
	Partitions() int
	Dequeue(ctx context.Context, partition int) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Retry(ctx context.Context, msg *Message, delay time.Duration) error
	DeadLetter(ctx context.Context, msg *Message, reason string) error
	PromoteDue(ctx context.Context, partition int, now time.Time) (int, error)
	Recover(ctx context.Context, partition int) (int, error)
}

type ConsumerOptions struct {
	MaxDeliveryAttempts int
	RetryBaseDelay      time.Duration
	MaxRetryDelay       time.Duration
	HandlerTimeout      time.Duration
	PollInterval        time.Duration
}

func (o *ConsumerOptions) setDefaults() {
	if o.MaxDeliveryAttempts < 1 {
		o.MaxDeliveryAttempts = 8
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
}

// Consumer runs one goroutine per partition. Each goroutine handles the
// messages of its partition one at a time.
type Consumer struct {
	q        Transport
	handlers map[Kind]HandlerFunc
	opts     ConsumerOptions
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewConsumer(q Transport, handlers map[Kind]HandlerFunc, opts ConsumerOptions, logger logging.Logger, m *metrics.Metrics) *Consumer {
	opts.setDefaults()
	return &Consumer{
		q:        q,
		handlers: handlers,
		opts:     opts,
		logger:   logger.With("module", "consumer"),
		metrics:  m,
		now:      time.Now,
	}
}

// Run recovers in-flight messages left by a previous process and consumes
// until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	for p := 0; p < c.q.Partitions(); p++ {
		n, err := c.q.Recover(ctx, p)
		if err != nil {
			return err
		}
		if n > 0 {
			c.logger.Info(ctx, "recovered in-flight messages", "partition", p, "count", n)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < c.q.Partitions(); p++ {
		g.Go(func() error {
			c.consume(ctx, p)
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) consume(ctx context.Context, partition int) {
	for ctx.Err() == nil {
		busy, err := c.ProcessOne(ctx, partition)
		if err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "queue error", "partition", partition, "error", err)
		}
		if busy && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.opts.PollInterval):
		}
	}
}

// ProcessOne promotes due retries and handles at most one message of
// partition. It reports whether a message was taken.
func (c *Consumer) ProcessOne(ctx context.Context, partition int) (bool, error) {
	if _, err := c.q.PromoteDue(ctx, partition, c.now()); err != nil {
		return false, err
	}
	msg, err := c.q.Dequeue(ctx, partition)
	if err != nil || msg == nil {
		return false, err
	}
	// settle the message even when shutdown interrupts the handler
	return true, c.settle(context.WithoutCancel(ctx), msg, c.dispatch(ctx, msg))
}

func (c *Consumer) dispatch(ctx context.Context, msg *Message) error {
	h, ok := c.handlers[msg.Kind]
	if !ok {
		return errUnknownKind
	}
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}
	return h(ctx, msg)
}

var errUnknownKind = errors.New("no handler for message kind")

func (c *Consumer) settle(ctx context.Context, msg *Message, herr error) error {
	kind := msg.Kind.String()
	if herr == nil {
		c.metrics.Event(kind, metrics.OutcomeOK)
		return c.q.Ack(ctx, msg)
	}

	failures := msg.Attempt + 1
	if common.Permanent(herr) || errors.Is(herr, errUnknownKind) || failures >= c.opts.MaxDeliveryAttempts {
		c.metrics.Event(kind, metrics.OutcomeDeadLetter)
		c.logger.Error(ctx, "message dead-lettered",
			"id", msg.ID, "kind", kind, "key", msg.PartitionKey, "attempts", failures, "error", herr)
		msg.Attempt = failures
		return c.q.DeadLetter(ctx, msg, herr.Error())
	}

	delay := c.backoff(failures)
	c.metrics.Event(kind, metrics.OutcomeRetry)
	c.logger.Warn(ctx, "message retry scheduled",
		"id", msg.ID, "kind", kind, "key", msg.PartitionKey, "attempt", failures, "delay", delay, "error", herr)
	msg.Attempt = failures
	msg.LastError = herr.Error()
	return c.q.Retry(ctx, msg, delay)
}

// backoff returns the delay before redelivery number attempt.
func (c *Consumer) backoff(attempt int) time.Duration {
	b := retry.WithCappedDuration(c.opts.MaxRetryDelay, retry.NewExponential(c.opts.RetryBaseDelay))
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}
