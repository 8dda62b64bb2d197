package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/khidma/service-settlement/pkg/events"
	"github.com/khidma/service-settlement/pkg/kafka"
)

// Notifier delivers user-facing notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error
}

// EventPublisher is the part of kafka.Producer the notifier needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// KafkaNotifier publishes notifications as CloudEvents for the notification service.
type KafkaNotifier struct {
	publisher EventPublisher
	topic     string
}

// NewKafkaNotifier creates a notifier publishing to events.TopicNotifications.
func NewKafkaNotifier(publisher EventPublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, topic: events.TopicNotifications}
}

// Notify publishes one notification.
func (n *KafkaNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	ce, err := kafka.NewCloudEvent(events.Source, event, events.Notification{
		UserID:     userID,
		Event:      event,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to create cloud event: %w", err)
	}
	return n.publisher.PublishEvent(ctx, n.topic, ce)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, uuid.UUID, string, map[string]any) error { return nil }
