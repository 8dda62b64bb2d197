package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khidma/service-settlement/pkg/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPending(t *testing.T) *Booking {
	t.Helper()
	promoID := uuid.New()
	b, err := NewBooking(NewBookingParams{
		ClientID:       uuid.New(),
		ProviderID:     uuid.New(),
		ServiceIDs:     []string{"svc-1"},
		Currency:       "sar",
		Subtotal:       dec("347.83"),
		TaxAmount:      dec("52.17"),
		DiscountAmount: dec("50"),
		PromoCodeID:    &promoID,
		PaymentTimeout: 30 * time.Minute,
		Now:            t0,
	})
	require.NoError(t, err)
	return b
}

func TestNewBooking_AmountIdentity(t *testing.T) {
	b := newPending(t)
	assert.Equal(t, StatusPending, b.Status())
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus())
	assert.Equal(t, "SAR", b.Currency())
	assert.True(t, dec("350").Equal(b.TotalAmount()))
	assert.True(t, b.TotalAmount().Equal(b.Subtotal().Add(b.TaxAmount()).Sub(b.DiscountAmount())))
	require.NotNil(t, b.PaymentDeadline())
	assert.Equal(t, t0.Add(30*time.Minute), *b.PaymentDeadline())
}

func TestNewBooking_Rejects(t *testing.T) {
	base := NewBookingParams{
		ClientID: uuid.New(), ProviderID: uuid.New(), ServiceIDs: []string{"a"},
		Subtotal: dec("10"), PaymentTimeout: time.Minute, Now: t0,
	}

	over := base
	promoID := uuid.New()
	over.PromoCodeID = &promoID
	over.DiscountAmount = dec("10.01")
	_, err := NewBooking(over)
	assert.ErrorIs(t, err, domain.ErrValidation)

	noServices := base
	noServices.ServiceIDs = nil
	_, err = NewBooking(noServices)
	assert.ErrorIs(t, err, domain.ErrValidation)

	orphanDiscount := base
	orphanDiscount.DiscountAmount = dec("1")
	_, err = NewBooking(orphanDiscount)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusConfirmed.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusConfirmed.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	_, err := ParseStatus("paid")
	assert.Error(t, err)
}

func TestMarkPaid(t *testing.T) {
	b := newPending(t)
	v := b.Version()

	require.NoError(t, b.MarkPaid(MethodWallet, "ledger", t0.Add(time.Minute)))
	assert.Equal(t, StatusConfirmed, b.Status())
	assert.Equal(t, PaymentPaid, b.PaymentStatus())
	assert.Nil(t, b.PaymentDeadline())
	assert.Equal(t, v+1, b.Version())

	err := b.MarkPaid(MethodWallet, "again", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestMarkPaid_AfterDeadline(t *testing.T) {
	b := newPending(t)
	err := b.MarkPaid(MethodGateway, "pi_1", t0.Add(31*time.Minute))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, StatusPending, b.Status())
}

func TestCancel_PaidBookingIsRefunded(t *testing.T) {
	b := newPending(t)
	require.NoError(t, b.MarkPaid(MethodWallet, "", t0))

	actor := b.ClientID()
	refund, err := b.Cancel(ReasonClientCancelled, &actor, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, dec("350").Equal(refund))
	assert.Equal(t, StatusCancelled, b.Status())
	assert.Equal(t, PaymentRefunded, b.PaymentStatus())

	_, err = b.Cancel(ReasonAdminCancelled, nil, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestCancel_UnpaidReturnsNoRefund(t *testing.T) {
	b := newPending(t)
	refund, err := b.Cancel(ReasonAdminCancelled, nil, t0)
	require.NoError(t, err)
	assert.True(t, refund.IsZero())
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus())
	assert.Nil(t, b.PaymentDeadline())
}

func TestAcceptAndReject(t *testing.T) {
	b := newPending(t)
	require.NoError(t, b.Accept(t0))
	require.NotNil(t, b.ProviderAcceptedAt())
	assert.Equal(t, StatusPending, b.Status())
	require.NoError(t, b.Accept(t0.Add(time.Minute)), "second accept is a no-op")

	require.NoError(t, b.Reject(b.ProviderID(), t0))
	assert.Equal(t, ReasonProviderRejected, b.CancelReason())

	paid := newPending(t)
	require.NoError(t, paid.MarkPaid(MethodWallet, "", t0))
	assert.ErrorIs(t, paid.Reject(paid.ProviderID(), t0), domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, paid.Accept(t0), domain.ErrInvalidStateTransition)
}

func TestExpire(t *testing.T) {
	b := newPending(t)
	assert.ErrorIs(t, b.Expire(t0.Add(29*time.Minute)), domain.ErrInvalidStateTransition)

	require.NoError(t, b.Expire(t0.Add(31*time.Minute)))
	assert.Equal(t, StatusCancelled, b.Status())
	assert.Equal(t, ReasonPaymentTimeout, b.CancelReason())
}

func TestComplete_Idempotent(t *testing.T) {
	b := newPending(t)
	_, err := b.Complete(dec("15"), dec("52.50"), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	require.NoError(t, b.MarkPaid(MethodWallet, "", t0))
	changed, err := b.Complete(dec("15"), dec("52.50"), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, dec("297.50").Equal(b.ProviderEarning()))

	changed, err = b.Complete(dec("20"), dec("70"), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, dec("15").Equal(b.CommissionRate()), "commission is computed once")
}
