package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	TopicSequenceGenerated  = "sequence.generated"
	TopicSequenceReset      = "sequence.reset"
	TopicSequenceOverridden = "sequence.overridden"
	TopicBOMActivated       = "bom.activated"
	TopicBOMObsoleted       = "bom.obsoleted"
)

// Event is the envelope published on every topic.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   int64          `json:"tenant_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher publishes domain events. Implementations must not be called
// from inside a database transaction.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Decode reads the envelope from a received message.
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
