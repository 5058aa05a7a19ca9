package queue

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/goccy/go-json"
)

// Enqueuer accepts messages for delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *Message) error
}

// Publisher enqueues ingestion events keyed by object key, so every event
// of one object lands in the same partition.
type Publisher struct {
	q Enqueuer
}

func NewPublisher(q Enqueuer) *Publisher {
	return &Publisher{q: q}
}

func (p *Publisher) PublishPartCompleted(ctx context.Context, ev models.PartCompleted) error {
	return p.publish(ctx, KindPartCompleted, ev.ObjectKey, ev)
}

func (p *Publisher) PublishObjectCreated(ctx context.Context, ev models.ObjectCreated) error {
	return p.publish(ctx, KindObjectCreated, ev.ObjectKey, ev)
}

func (p *Publisher) publish(ctx context.Context, kind Kind, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.q.Enqueue(ctx, &Message{Kind: kind, PartitionKey: key, Payload: payload})
}

// PartCompletedHandler adapts a part-completed handler to a HandlerFunc.
func PartCompletedHandler(fn func(context.Context, models.PartCompleted) error) HandlerFunc {
	return func(ctx context.Context, msg *Message) error {
		var ev models.PartCompleted
		if err := msg.Decode(&ev); err != nil {
			return err
		}
		return fn(ctx, ev)
	}
}

// ObjectCreatedHandler adapts an object-created handler to a HandlerFunc.
func ObjectCreatedHandler(fn func(context.Context, models.ObjectCreated) error) HandlerFunc {
	return func(ctx context.Context, msg *Message) error {
		var ev models.ObjectCreated
		if err := msg.Decode(&ev); err != nil {
			return err
		}
		return fn(ctx, ev)
	}
}
