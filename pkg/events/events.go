// Package events defines the Kafka topics, CloudEvent types and payloads the
// settlement service produces and consumes.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicNotifications    = "settlement.notifications"
	TopicBookingLifecycle = "booking.lifecycle"
)

// Source is the CloudEvent source of everything this service publishes.
const Source = "service-settlement"

// Lifecycle event types consumed from TopicBookingLifecycle.
const (
	ProviderBookingAccepted = "provider.booking_accepted"
	ProviderBookingRejected = "provider.booking_rejected"
	BookingServiceDelivered = "booking.service_delivered"
)

// Notification event types published to TopicNotifications.
const (
	BookingCreated      = "settlement.booking.created"
	BookingConfirmed    = "settlement.booking.confirmed"
	BookingAccepted     = "settlement.booking.accepted"
	BookingCancelled    = "settlement.booking.cancelled"
	BookingExpired      = "settlement.booking.expired"
	BookingCompleted    = "settlement.booking.completed"
	WalletDeposited     = "settlement.wallet.deposited"
	WalletRefunded      = "settlement.wallet.refunded"
	WithdrawalRequested = "settlement.withdrawal.requested"
	WithdrawalReviewed  = "settlement.withdrawal.reviewed"
)

// BookingAcceptedEvent is emitted by the provider service when a provider takes a booking.
type BookingAcceptedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingRejectedEvent is emitted when a provider declines a booking.
type BookingRejectedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ServiceDeliveredEvent is emitted once the booked service has been delivered.
type ServiceDeliveredEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notification is the payload of every notification CloudEvent.
type Notification struct {
	UserID     uuid.UUID      `json:"user_id"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
