package payout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khidma/service-settlement/pkg/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	now   = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	bank  = BankDetails{BankName: "Al Rajhi", AccountHolder: "Noura", IBAN: "SA0380000000608010167519"}
	admin = uuid.New()
)

func TestCalculateCommission(t *testing.T) {
	assert.True(t, dec("52.50").Equal(CalculateCommission(dec("350"), dec("15"))))
	assert.True(t, dec("0.02").Equal(CalculateCommission(dec("0.15"), dec("15"))), "0.0225 rounds to 0.02")
	assert.True(t, dec("0.03").Equal(CalculateCommission(dec("0.10"), dec("25"))), "0.025 rounds half up")
	assert.True(t, CalculateCommission(dec("100"), decimal.Zero).IsZero())
}

func TestProviderProfile_EffectiveRate(t *testing.T) {
	fallback := dec("15")
	var missing *ProviderProfile
	assert.True(t, fallback.Equal(missing.EffectiveRate(fallback)))

	rate := dec("10")
	assert.True(t, rate.Equal((&ProviderProfile{CommissionRate: &rate}).EffectiveRate(fallback)))
}

func TestNewWithdrawalRequest(t *testing.T) {
	w, err := NewWithdrawalRequest(uuid.New(), dec("800"), dec("2.5"), "sar", bank, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, w.Status())
	assert.True(t, dec("20").Equal(w.CommissionAmount()))
	assert.True(t, dec("780").Equal(w.NetAmount()))
	assert.Equal(t, "SAR", w.Currency())

	_, err = NewWithdrawalRequest(uuid.New(), dec("0"), decimal.Zero, "SAR", bank, now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewWithdrawalRequest(uuid.New(), dec("10"), decimal.Zero, "SAR", BankDetails{BankName: "x"}, now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWithdrawalLifecycle(t *testing.T) {
	w, err := NewWithdrawalRequest(uuid.New(), dec("100"), decimal.Zero, "SAR", bank, now)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Process(admin, "", now), domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, w.Complete(admin, "TX1", "", now), domain.ErrInvalidStateTransition)

	require.NoError(t, w.Approve(admin, "looks fine", now))
	assert.ErrorIs(t, w.Approve(admin, "", now), domain.ErrInvalidStateTransition)

	require.NoError(t, w.Process(admin, "", now))
	assert.ErrorIs(t, w.Complete(admin, " ", "", now), domain.ErrValidation)
	require.NoError(t, w.Complete(admin, "TX1", "", now))

	assert.Equal(t, StatusCompleted, w.Status())
	assert.Equal(t, "TX1", w.TransactionReference())
	assert.Equal(t, "looks fine", w.ReviewNote())
	assert.Equal(t, int64(4), w.Version())
	assert.ErrorIs(t, w.Reject(admin, "late", now), domain.ErrInvalidStateTransition)
}

func TestWithdrawalReject(t *testing.T) {
	w, err := NewWithdrawalRequest(uuid.New(), dec("100"), decimal.Zero, "SAR", bank, now)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Reject(admin, "", now), domain.ErrValidation)
	require.NoError(t, w.Approve(admin, "", now))
	require.NoError(t, w.Reject(admin, "bank details mismatch", now))
	assert.Equal(t, StatusRejected, w.Status())
	assert.Equal(t, "bank details mismatch", w.RejectionReason())
	require.NotNil(t, w.RejectedAt())
}
