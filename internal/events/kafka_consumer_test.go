package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/domain"
	"github.com/khidma/service-settlement/pkg/events"
	"github.com/khidma/service-settlement/pkg/kafka"
)

type call struct {
	op    string
	actor application.Actor
	id    uuid.UUID
	note  string
}

type fakeLifecycle struct {
	calls []call
	err   error
}

func (f *fakeLifecycle) AcceptBooking(_ context.Context, actor application.Actor, id uuid.UUID) (*application.BookingDTO, error) {
	f.calls = append(f.calls, call{op: "accept", actor: actor, id: id})
	return nil, f.err
}

func (f *fakeLifecycle) RejectBooking(_ context.Context, actor application.Actor, id uuid.UUID, note string) (*application.BookingDTO, error) {
	f.calls = append(f.calls, call{op: "reject", actor: actor, id: id, note: note})
	return nil, f.err
}

func (f *fakeLifecycle) CompleteBooking(_ context.Context, actor application.Actor, id uuid.UUID) (*application.BookingDTO, error) {
	f.calls = append(f.calls, call{op: "complete", actor: actor, id: id})
	return nil, f.err
}

func message(t *testing.T, eventType string, data any) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-provider", eventType, data)
	require.NoError(t, err)
	raw, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: events.TopicBookingLifecycle, Value: raw}
}

func newTestConsumer(svc BookingLifecycle) *LifecycleConsumer {
	return &LifecycleConsumer{service: svc, logger: zap.NewNop()}
}

func TestHandleMessage_Routes(t *testing.T) {
	bookingID, providerID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	tests := []struct {
		name string
		msg  kafkago.Message
		want call
	}{
		{
			name: "accepted",
			msg:  message(t, events.ProviderBookingAccepted, events.BookingAcceptedEvent{BookingID: bookingID, ProviderID: providerID, OccurredAt: now}),
			want: call{op: "accept", actor: application.Actor{UserID: providerID, Role: auth.RoleProvider}, id: bookingID},
		},
		{
			name: "rejected",
			msg:  message(t, events.ProviderBookingRejected, events.BookingRejectedEvent{BookingID: bookingID, ProviderID: providerID, Reason: "sick"}),
			want: call{op: "reject", actor: application.Actor{UserID: providerID, Role: auth.RoleProvider}, id: bookingID, note: "sick"},
		},
		{
			name: "delivered",
			msg:  message(t, events.BookingServiceDelivered, events.ServiceDeliveredEvent{BookingID: bookingID, OccurredAt: now}),
			want: call{op: "complete", actor: application.SystemActor, id: bookingID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeLifecycle{}
			require.NoError(t, newTestConsumer(svc).handleMessage(context.Background(), tt.msg))
			require.Len(t, svc.calls, 1)
			assert.Equal(t, tt.want, svc.calls[0])
		})
	}
}

func TestHandleMessage_IgnoresUnknownType(t *testing.T) {
	svc := &fakeLifecycle{}
	err := newTestConsumer(svc).handleMessage(context.Background(), message(t, "booking.rescheduled", map[string]string{}))
	assert.NoError(t, err)
	assert.Empty(t, svc.calls)
}

func TestHandleMessage_MalformedEvent(t *testing.T) {
	svc := &fakeLifecycle{}
	err := newTestConsumer(svc).handleMessage(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.ErrorIs(t, err, kafka.ErrMalformedMessage)
	assert.Empty(t, svc.calls)
}

func TestHandleMessage_WrongProviderIsMalformed(t *testing.T) {
	svc := &fakeLifecycle{err: domain.NewForbiddenError("only the booking provider can do this")}
	msg := message(t, events.ProviderBookingAccepted, events.BookingAcceptedEvent{BookingID: uuid.New(), ProviderID: uuid.New()})

	assert.ErrorIs(t, newTestConsumer(svc).handleMessage(context.Background(), msg), kafka.ErrMalformedMessage)
}

func TestHandleMessage_StaleEventIsDropped(t *testing.T) {
	svc := &fakeLifecycle{err: domain.NewInvalidStateError("cancelled", "completed")}
	msg := message(t, events.BookingServiceDelivered, events.ServiceDeliveredEvent{BookingID: uuid.New()})

	assert.NoError(t, newTestConsumer(svc).handleMessage(context.Background(), msg))
}

func TestHandleMessage_PropagatesOtherErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := &fakeLifecycle{err: boom}
	msg := message(t, events.ProviderBookingAccepted, events.BookingAcceptedEvent{BookingID: uuid.New(), ProviderID: uuid.New()})

	err := newTestConsumer(svc).handleMessage(context.Background(), msg)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, kafka.ErrMalformedMessage)
}
