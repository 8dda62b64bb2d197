package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/pkg/domain"
)

// ChargeRequest describes one gateway charge.
type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Method is the gateway's payment method token.
	Method         string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentGateway is the Anti-Corruption Layer over the external card processor.
type PaymentGateway interface {
	// Charge captures funds and returns the gateway reference. Any error means
	// no money moved.
	Charge(ctx context.Context, req ChargeRequest) (reference string, err error)

	// Refund returns amount of a previous charge.
	Refund(ctx context.Context, reference string, amount decimal.Decimal) error
}

// MockGateway is a development/testing PaymentGateway. It approves every
// charge unless told to decline.
type MockGateway struct {
	logger *zap.Logger

	mu      sync.Mutex
	decline bool
	charges map[string]decimal.Decimal
	refunds map[string]decimal.Decimal
}

// NewMockGateway creates a new mock gateway for development.
func NewMockGateway(logger *zap.Logger) *MockGateway {
	return &MockGateway{
		logger:  logger,
		charges: make(map[string]decimal.Decimal),
		refunds: make(map[string]decimal.Decimal),
	}
}

// SetDecline makes subsequent charges fail.
func (m *MockGateway) SetDecline(decline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decline = decline
}

// Charge simulates a successful capture.
func (m *MockGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.decline {
		m.logger.Info("[MOCK GATEWAY] charge declined", zap.String("amount", req.Amount.StringFixed(2)))
		return "", domain.NewBusinessError(domain.ErrPaymentFailed, "card_declined", "payment was declined")
	}

	reference := fmt.Sprintf("pi_mock_%s", uuid.New().String()[:8])
	m.charges[reference] = req.Amount

	m.logger.Info("[MOCK GATEWAY] charge captured",
		zap.String("reference", reference),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
	)
	return reference, nil
}

// Refund simulates refunding a charge.
func (m *MockGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.charges[reference]; !ok {
		return fmt.Errorf("unknown charge %s", reference)
	}
	m.refunds[reference] = m.refunds[reference].Add(amount)

	m.logger.Info("[MOCK GATEWAY] refund created",
		zap.String("reference", reference),
		zap.String("amount", amount.StringFixed(2)),
	)
	return nil
}

// Refunded returns the total refunded against reference.
func (m *MockGateway) Refunded(reference string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds[reference]
}

// Charges returns the number of captured charges.
func (m *MockGateway) Charges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

// Refunds returns the number of charges with at least one refund.
func (m *MockGateway) Refunds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refunds)
}
