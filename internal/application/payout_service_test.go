package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/domain"
)

var testBank = &BankDetailsDTO{BankName: "Riyad Bank", AccountHolder: "Home Spa LLC", IBAN: "SA0380000000608010167519"}

// earn leaves amount on the provider's payable account.
func (e *testEnv) earn(t *testing.T, amount string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.payouts.UpsertProviderProfile(ctx, e.admin, e.provider.UserID, ProviderProfileInput{CommissionRate: decPtr("0")})
	require.NoError(t, err)

	client := Actor{UserID: uuid.New(), Role: auth.RoleClient}
	e.deposit(t, client.UserID, amount)
	b := e.book(t, client, amount, "")
	_, err = e.settlement.PayBooking(ctx, client, b.ID, payWallet)
	require.NoError(t, err)
	_, err = e.settlement.CompleteBooking(ctx, e.provider, b.ID)
	require.NoError(t, err)
}

func (e *testEnv) review(t *testing.T, id uuid.UUID, action, ref string) *WithdrawalDTO {
	t.Helper()
	w, err := e.payouts.ReviewWithdrawal(context.Background(), e.admin, id, ReviewWithdrawalInput{Action: action, Note: action, TransactionReference: ref})
	require.NoError(t, err)
	return w
}

func TestRequestWithdrawal_ReservesBalance(t *testing.T) {
	env := newTestEnv(t)
	env.earn(t, "1000")
	ctx := context.Background()

	_, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("1200"), Bank: testBank})
	assert.ErrorIs(t, err, domain.ErrInsufficientPayableBalance)

	w, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("800"), Bank: testBank})
	require.NoError(t, err)
	assert.Equal(t, "pending", w.Status)
	assert.Equal(t, "800.00", w.NetAmount.StringFixed(2))

	bal, err := env.payouts.GetPayableBalance(ctx, env.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", bal.Balance.StringFixed(2))
	assert.Equal(t, "800.00", bal.Reserved.StringFixed(2))
	assert.Equal(t, "200.00", bal.Available.StringFixed(2))

	_, err = env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("300"), Bank: testBank})
	assert.ErrorIs(t, err, domain.ErrInsufficientPayableBalance)
}

func TestReviewWithdrawal_CompleteDebitsPayable(t *testing.T) {
	env := newTestEnv(t)
	env.earn(t, "1000")
	ctx := context.Background()

	w, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("800"), Bank: testBank})
	require.NoError(t, err)

	env.review(t, w.ID, "approve", "")
	env.review(t, w.ID, "process", "")
	done := env.review(t, w.ID, "complete", "TRX-42")
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, "TRX-42", done.TransactionReference)
	require.NotNil(t, done.ReviewedBy)
	assert.Equal(t, env.admin.UserID, *done.ReviewedBy)

	bal, err := env.payouts.GetPayableBalance(ctx, env.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", bal.Balance.StringFixed(2))
	assert.True(t, bal.Reserved.IsZero())

	v, err := env.wallet.VerifyLedger(ctx, env.provider.UserID, "payable")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 2, v.Rows)

	_, err = env.payouts.ReviewWithdrawal(ctx, env.admin, w.ID, ReviewWithdrawalInput{Action: "reject", Note: "too late"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestReviewWithdrawal_RejectReleasesReservation(t *testing.T) {
	env := newTestEnv(t)
	env.earn(t, "500")
	ctx := context.Background()

	w, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("500"), Bank: testBank})
	require.NoError(t, err)

	_, err = env.payouts.ReviewWithdrawal(ctx, env.admin, w.ID, ReviewWithdrawalInput{Action: "reject"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	rejected := env.review(t, w.ID, "reject", "")
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "reject", rejected.RejectionReason)

	bal, err := env.payouts.GetPayableBalance(ctx, env.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", bal.Available.StringFixed(2))
}

func TestReviewWithdrawal_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.earn(t, "100")
	ctx := context.Background()

	w, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("100"), Bank: testBank})
	require.NoError(t, err)

	_, err = env.payouts.ReviewWithdrawal(ctx, env.provider, w.ID, ReviewWithdrawalInput{Action: "approve"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.payouts.ReviewWithdrawal(ctx, env.admin, w.ID, ReviewWithdrawalInput{Action: "complete"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRequestWithdrawal_FeeAndProfileBank(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.WithdrawalFeeRate = dec("2")
	env.build(zap.NewNop())
	env.earn(t, "1000")
	ctx := context.Background()

	_, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("100")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.payouts.UpsertProviderProfile(ctx, env.provider, env.provider.UserID, ProviderProfileInput{Bank: testBank})
	require.NoError(t, err)

	w, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec("800")})
	require.NoError(t, err)
	assert.Equal(t, "16.00", w.CommissionAmount.StringFixed(2))
	assert.Equal(t, "784.00", w.NetAmount.StringFixed(2))
	assert.Equal(t, testBank.IBAN, w.Bank.IBAN)
}

func TestListWithdrawals_Scoped(t *testing.T) {
	env := newTestEnv(t)
	env.earn(t, "300")
	ctx := context.Background()

	for _, amount := range []string{"100", "50"} {
		_, err := env.payouts.RequestWithdrawal(ctx, env.provider, WithdrawalInput{Amount: dec(amount), Bank: testBank})
		require.NoError(t, err)
	}

	mine, err := env.payouts.ListWithdrawals(ctx, env.provider, "pending", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, mine.Total)

	stranger := Actor{UserID: uuid.New(), Role: auth.RoleProvider}
	none, err := env.payouts.ListWithdrawals(ctx, stranger, "", 1, 20)
	require.NoError(t, err)
	assert.Zero(t, none.Total)

	_, err = env.payouts.GetWithdrawal(ctx, stranger, mine.Items[0].ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.payouts.ListWithdrawals(ctx, env.admin, "paid", 1, 20)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpsertProviderProfile_RateIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.payouts.UpsertProviderProfile(ctx, env.provider, env.provider.UserID, ProviderProfileInput{CommissionRate: decPtr("1")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.payouts.UpsertProviderProfile(ctx, env.admin, env.provider.UserID, ProviderProfileInput{CommissionRate: decPtr("101")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := env.payouts.GetProviderProfile(ctx, env.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, "15", p.CommissionRate.String())
	assert.Nil(t, p.CustomRate)

	p, err = env.payouts.UpsertProviderProfile(ctx, env.admin, env.provider.UserID, ProviderProfileInput{CommissionRate: decPtr("12.5")})
	require.NoError(t, err)
	assert.Equal(t, "12.5", p.CommissionRate.String())

	p, err = env.payouts.UpsertProviderProfile(ctx, env.admin, env.provider.UserID, ProviderProfileInput{ClearCommissionRate: true})
	require.NoError(t, err)
	assert.Equal(t, "15", p.CommissionRate.String())
}
