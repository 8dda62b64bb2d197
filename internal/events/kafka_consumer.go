package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/domain"
	"github.com/khidma/service-settlement/pkg/events"
	"github.com/khidma/service-settlement/pkg/kafka"
)

// BookingLifecycle is the part of the settlement service driven by upstream
// booking events.
type BookingLifecycle interface {
	AcceptBooking(ctx context.Context, actor application.Actor, id uuid.UUID) (*application.BookingDTO, error)
	RejectBooking(ctx context.Context, actor application.Actor, id uuid.UUID, note string) (*application.BookingDTO, error)
	CompleteBooking(ctx context.Context, actor application.Actor, id uuid.UUID) (*application.BookingDTO, error)
}

// LifecycleConsumer listens to provider and delivery events and moves bookings
// through the state machine.
type LifecycleConsumer struct {
	consumer *kafka.Consumer
	service  BookingLifecycle
	logger   *zap.Logger
}

// NewLifecycleConsumer creates a new consumer for booking lifecycle events.
func NewLifecycleConsumer(brokers []string, groupID string, service BookingLifecycle, logger *zap.Logger) *LifecycleConsumer {
	return &LifecycleConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, events.TopicBookingLifecycle, logger),
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming lifecycle events. It blocks until the context is cancelled.
func (c *LifecycleConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage routes incoming Kafka messages to the appropriate handler.
func (c *LifecycleConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from lifecycle topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return malformed(err)
	}

	c.logger.Info("received lifecycle event",
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)

	switch {
	case strings.EqualFold(ce.Type, events.ProviderBookingAccepted):
		return c.handleAccepted(ctx, ce)
	case strings.EqualFold(ce.Type, events.ProviderBookingRejected):
		return c.handleRejected(ctx, ce)
	case strings.EqualFold(ce.Type, events.BookingServiceDelivered):
		return c.handleDelivered(ctx, ce)
	default:
		c.logger.Debug("ignoring unhandled lifecycle event type", zap.String("type", ce.Type))
		return nil
	}
}

func (c *LifecycleConsumer) handleAccepted(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.BookingAcceptedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse BookingAcceptedEvent data", zap.Error(err))
		return malformed(err)
	}
	_, err := c.service.AcceptBooking(ctx, providerActor(event.ProviderID), event.BookingID)
	return c.settle(err, ce, event.BookingID)
}

func (c *LifecycleConsumer) handleRejected(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.BookingRejectedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse BookingRejectedEvent data", zap.Error(err))
		return malformed(err)
	}
	_, err := c.service.RejectBooking(ctx, providerActor(event.ProviderID), event.BookingID, event.Reason)
	return c.settle(err, ce, event.BookingID)
}

func (c *LifecycleConsumer) handleDelivered(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.ServiceDeliveredEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse ServiceDeliveredEvent data", zap.Error(err))
		return malformed(err)
	}
	_, err := c.service.CompleteBooking(ctx, application.SystemActor, event.BookingID)
	return c.settle(err, ce, event.BookingID)
}

// settle drops events that no longer apply. Redelivered or late events find the
// booking in a state they cannot move, which is not a failure. An event naming
// the wrong provider can never apply and is reported as malformed. Any other
// error is returned so the message is retried.
func (c *LifecycleConsumer) settle(err error, ce kafka.CloudEvent, bookingID uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidStateTransition) || errors.Is(err, domain.ErrNotFound):
		c.logger.Warn("lifecycle event does not apply to booking",
			zap.String("type", ce.Type),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return nil
	case errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrValidation):
		return malformed(err)
	default:
		return err
	}
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", kafka.ErrMalformedMessage, err)
}

func providerActor(id uuid.UUID) application.Actor {
	if id == uuid.Nil {
		return application.SystemActor
	}
	return application.Actor{UserID: id, Role: auth.RoleProvider}
}

// Close closes the underlying Kafka consumer.
func (c *LifecycleConsumer) Close() error {
	return c.consumer.Close()
}
