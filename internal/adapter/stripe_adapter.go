package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/pkg/domain"
)

var hundred = decimal.NewFromInt(100)

// StripeGateway charges cards through Stripe PaymentIntents, confirmed
// immediately so a successful call means captured funds.
type StripeGateway struct {
	client *stripe.Client
	logger *zap.Logger
}

// NewStripeGateway creates a Stripe-backed PaymentGateway.
func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{client: stripe.NewClient(secretKey), logger: logger}
}

// Charge creates and confirms a PaymentIntent.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if strings.TrimSpace(req.Method) == "" {
		return "", domain.NewValidationError("payment method token is required for gateway payments")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Method),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		g.logger.Warn("stripe charge failed", zap.Error(err))
		return "", paymentFailed(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		g.logger.Warn("stripe payment intent not settled",
			zap.String("payment_intent_id", pi.ID),
			zap.String("status", string(pi.Status)),
		)
		return "", domain.NewBusinessError(domain.ErrPaymentFailed, string(pi.Status),
			fmt.Sprintf("payment was not completed (%s)", pi.Status))
	}

	g.logger.Info("stripe charge captured",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount_minor", pi.Amount),
	)
	return pi.ID, nil
}

// Refund refunds part or all of a PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	_, err := g.client.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(minorUnits(amount)),
	})
	if err != nil {
		return fmt.Errorf("stripe refund for %s failed: %w", reference, err)
	}
	g.logger.Info("stripe refund created", zap.String("payment_intent_id", reference))
	return nil
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func paymentFailed(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		reason := string(se.Code)
		if se.DeclineCode != "" {
			reason = string(se.DeclineCode)
		}
		return &domain.DomainError{Err: domain.ErrPaymentFailed, Message: se.Msg, Reason: reason}
	}
	return fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
}
