package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/config"
	"github.com/khidma/service-settlement/internal/repository/memory"
	"github.com/khidma/service-settlement/pkg/auth"
)

type sentNotification struct {
	UserID  uuid.UUID
	Event   string
	Payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) events(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Event)
		}
	}
	return out
}

type testEnv struct {
	store    *memory.Store
	gateway  *adapter.MockGateway
	notifier *recordingNotifier
	cfg      config.SettlementConfig

	promos     *PromoService
	settlement *SettlementService
	wallet     *WalletService
	payouts    *PayoutService

	clock    time.Time
	admin    Actor
	client   Actor
	provider Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	cfg := config.DefaultSettlementConfig()
	cfg.TaxRate = decimal.Zero

	env := &testEnv{
		store:    memory.NewStore(),
		gateway:  adapter.NewMockGateway(logger),
		notifier: &recordingNotifier{},
		cfg:      cfg,
		clock:    time.Now().UTC().Truncate(time.Second),
		admin:    Actor{UserID: uuid.New(), Role: auth.RoleAdmin},
		client:   Actor{UserID: uuid.New(), Role: auth.RoleClient},
		provider: Actor{UserID: uuid.New(), Role: auth.RoleProvider},
	}
	env.build(logger)
	return env
}

func (e *testEnv) build(logger *zap.Logger) {
	now := func() time.Time { return e.clock }

	e.promos = NewPromoService(e.store, logger)
	e.promos.now = now
	e.settlement = NewSettlementService(e.store, e.promos, e.gateway, e.notifier, e.cfg, logger)
	e.settlement.now = now
	e.wallet = NewWalletService(e.store, e.gateway, e.notifier, e.cfg.Currency, logger)
	e.payouts = NewPayoutService(e.store, e.notifier, e.cfg, logger)
	e.payouts.now = now
}

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *testEnv) deposit(t *testing.T, owner uuid.UUID, amount string) {
	t.Helper()
	_, err := e.wallet.Deposit(context.Background(), owner, DepositRequest{
		Amount:       decimal.RequireFromString(amount),
		PaymentToken: "pm_card_visa",
	})
	require.NoError(t, err)
}

func (e *testEnv) book(t *testing.T, client Actor, price, promoCode string) *BookingDTO {
	t.Helper()
	dto, err := e.settlement.CreateBooking(context.Background(), client, CreateBookingRequest{
		ProviderID: e.provider.UserID,
		Items:      []BookingItem{{ServiceID: "grooming", Price: decimal.RequireFromString(price), Quantity: 1}},
		PromoCode:  promoCode,
	})
	require.NoError(t, err)
	return dto
}

func (e *testEnv) createPromo(t *testing.T, req CreatePromoRequest) *PromoDTO {
	t.Helper()
	if req.ValidFrom.IsZero() {
		req.ValidFrom = e.clock.Add(-time.Hour)
	}
	if req.ValidUntil.IsZero() {
		req.ValidUntil = e.clock.Add(24 * time.Hour)
	}
	dto, err := e.promos.CreatePromo(context.Background(), e.admin, req)
	require.NoError(t, err)
	return dto
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int { return &v }
