// Package queue is the durable at-least-once work queue that carries
// ingestion events from the notification API to the asynchronous consumers.
//
// Messages are partitioned by key so all events of one object are handled
// in order by a single consumer goroutine.
package queue

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/goccy/go-json"
)

// Kind enumerates the message types the consumers know how to handle.
type Kind uint8

const (
	KindPartCompleted Kind = iota + 1
	KindObjectCreated
)

func (k Kind) String() string {
	switch k {
	case KindPartCompleted:
		return "part_completed"
	case KindObjectCreated:
		return "object_created"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is one unit of work. Attempt counts the failed deliveries so far.
type Message struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	PartitionKey string          `json:"partition_key"`
	Attempt      int             `json:"attempt"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	LastError    string          `json:"last_error,omitempty"`

	// raw is the encoding the message was dequeued with.
	raw string
}

// Decode unmarshals the payload into v. A malformed payload is a
// permanent failure.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", common.ErrInvalidArgument, m.Kind, err)
	}
	return nil
}

func encode(m *Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	m.raw = raw
	return &m, nil
}
