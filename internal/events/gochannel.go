package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/smallbiznis/erpcore/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// GoChannelBus is an in-process bus backed by watermill's gochannel.
type GoChannelBus struct {
	pubsub *gochannel.GoChannel
	log    *zap.Logger
}

func NewGoChannelBus(log *zap.Logger) *GoChannelBus {
	log = log.Named("events")
	return &GoChannelBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            100,
				BlockPublishUntilSubscriberAck: false,
			},
			NewZapLoggerAdapter(log),
		),
		log: log,
	}
}

func (b *GoChannelBus) Publish(ctx context.Context, topic string, event Event) error {
	if event.ID == "" {
		event.ID = watermill.NewULID()
	}
	if event.Type == "" {
		event.Type = topic
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("tenant_id", strconv.FormatInt(event.TenantID, 10))
	for key, value := range correlation.EventMetadata(ctx) {
		msg.Metadata.Set(key, value)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.log.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_id", event.ID),
			zap.Int64("tenant_id", event.TenantID),
			zap.Error(err),
		)
		return err
	}

	b.log.Debug("published event",
		zap.String("topic", topic),
		zap.String("event_id", event.ID),
		zap.Int64("tenant_id", event.TenantID),
	)
	return nil
}

func (b *GoChannelBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *GoChannelBus) Close() error {
	return b.pubsub.Close()
}
