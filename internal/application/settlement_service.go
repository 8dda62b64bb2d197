package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/config"
	bookingDomain "github.com/khidma/service-settlement/internal/domain/booking"
	payoutDomain "github.com/khidma/service-settlement/internal/domain/payout"
	promoDomain "github.com/khidma/service-settlement/internal/domain/promo"
	"github.com/khidma/service-settlement/internal/domain/store"
	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/internal/saga"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/domain"
	"github.com/khidma/service-settlement/pkg/events"
)

// BookingItem is one priced line of an order.
type BookingItem struct {
	ServiceID string          `json:"service_id" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"money"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
}

// CreateBookingRequest holds the order a client wants to book.
type CreateBookingRequest struct {
	ProviderID uuid.UUID     `json:"provider_id" binding:"required"`
	Items      []BookingItem `json:"items" binding:"required,min=1,dive"`
	PromoCode  string        `json:"promo_code"`
}

// PayBookingRequest selects how a booking is paid.
type PayBookingRequest struct {
	Method string `json:"method" binding:"required,oneof=wallet gateway"`
	// PaymentToken is the gateway payment method; ignored for wallet payments.
	PaymentToken string `json:"payment_token"`
}

// CancelBookingRequest carries an optional free-text note.
type CancelBookingRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// SettlementService drives bookings through their lifecycle and moves the money
// each transition implies.
type SettlementService struct {
	uow     store.UnitOfWork
	promos  *PromoService
	gateway adapter.PaymentGateway
	notify  notifier
	cfg     config.SettlementConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(
	uow store.UnitOfWork,
	promos *PromoService,
	gateway adapter.PaymentGateway,
	n adapter.Notifier,
	cfg config.SettlementConfig,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		uow:     uow,
		promos:  promos,
		gateway: gateway,
		notify:  notifier{inner: n, logger: logger},
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Quote prices items: subtotal, tax and the total a promo code is validated against.
func (s *SettlementService) Quote(items []BookingItem) (subtotal, tax decimal.Decimal, serviceIDs []string, err error) {
	if len(items) == 0 {
		return decimal.Zero, decimal.Zero, nil, domain.NewValidationError("at least one item is required")
	}
	subtotal = decimal.Zero
	for _, it := range items {
		if it.Price.IsNegative() || it.Quantity <= 0 {
			return decimal.Zero, decimal.Zero, nil, domain.NewValidationError("item price and quantity must be positive")
		}
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		serviceIDs = append(serviceIDs, it.ServiceID)
	}
	subtotal = subtotal.Round(2)
	tax = payoutDomain.CalculateCommission(subtotal, s.cfg.TaxRate)
	return subtotal, tax, serviceIDs, nil
}

// CreateBooking prices the order, redeems the promo code if one is given and
// stores a pending booking, all in one unit of work.
func (s *SettlementService) CreateBooking(ctx context.Context, actor Actor, req CreateBookingRequest) (*BookingDTO, error) {
	if req.ProviderID == actor.UserID {
		return nil, domain.NewValidationError("cannot book your own services")
	}
	subtotal, tax, serviceIDs, err := s.Quote(req.Items)
	if err != nil {
		return nil, err
	}

	bookingID := uuid.New()
	var b *bookingDomain.Booking
	err = runUnit(ctx, s.uow, s.logger, "create_booking", func(r store.Repositories) error {
		discount := decimal.Zero
		var promoID *uuid.UUID

		if code := strings.TrimSpace(req.PromoCode); code != "" {
			order := promoDomain.Order{
				ClientID:   actor.UserID,
				ProviderID: req.ProviderID,
				Total:      subtotal.Add(tax),
				ServiceIDs: serviceIDs,
			}
			red, err := s.promos.Redeem(ctx, r, code, order, bookingID)
			if err != nil {
				return err
			}
			discount = red.DiscountAmount
			promoID = &red.PromoCodeID
		}

		created, err := bookingDomain.NewBooking(bookingDomain.NewBookingParams{
			ID:             bookingID,
			ClientID:       actor.UserID,
			ProviderID:     req.ProviderID,
			ServiceIDs:     serviceIDs,
			Currency:       s.cfg.Currency,
			Subtotal:       subtotal,
			TaxAmount:      tax,
			DiscountAmount: discount,
			PromoCodeID:    promoID,
			PaymentTimeout: s.cfg.PaymentTimeout,
			Now:            s.now(),
		})
		if err != nil {
			return err
		}
		if err := r.Bookings.Save(ctx, created); err != nil {
			return fmt.Errorf("failed to save booking: %w", err)
		}
		b = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	promoLabel := "no"
	if b.PromoCodeID() != nil {
		promoLabel = "yes"
	}
	metrics.BookingsCreated.WithLabelValues(promoLabel).Inc()

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID().String()),
		zap.String("client_id", b.ClientID().String()),
		zap.String("total", b.TotalAmount().StringFixed(2)),
	)
	payload := bookingPayload(b)
	s.notify.send(ctx, b.ClientID(), events.BookingCreated, payload)
	s.notify.send(ctx, b.ProviderID(), events.BookingCreated, payload)
	return toBookingDTO(b), nil
}

// PayBooking settles a pending booking from the client's wallet or through the
// payment gateway.
func (s *SettlementService) PayBooking(ctx context.Context, actor Actor, id uuid.UUID, req PayBookingRequest) (*BookingDTO, error) {
	method := bookingDomain.PaymentMethod(req.Method)
	if !method.IsValid() {
		return nil, domain.NewValidationError("payment method must be wallet or gateway")
	}

	var (
		b   *bookingDomain.Booking
		err error
	)
	if method == bookingDomain.MethodWallet {
		b, err = s.payFromWallet(ctx, actor, id)
	} else {
		b, err = s.payThroughGateway(ctx, actor, id, req.PaymentToken)
	}
	if err != nil {
		metrics.RecordPayment(string(method), "failed")
		return nil, err
	}

	metrics.RecordPayment(string(method), "succeeded")
	metrics.RecordTransition(string(bookingDomain.StatusConfirmed), "paid")
	s.logger.Info("booking paid",
		zap.String("booking_id", b.ID().String()),
		zap.String("method", string(method)),
		zap.String("reference", b.PaymentReference()),
	)
	payload := bookingPayload(b)
	s.notify.send(ctx, b.ClientID(), events.BookingConfirmed, payload)
	s.notify.send(ctx, b.ProviderID(), events.BookingConfirmed, payload)
	return toBookingDTO(b), nil
}

// payFromWallet debits the client and confirms the booking atomically.
func (s *SettlementService) payFromWallet(ctx context.Context, actor Actor, id uuid.UUID) (*bookingDomain.Booking, error) {
	var out *bookingDomain.Booking
	err := runUnit(ctx, s.uow, s.logger, "pay_wallet", func(r store.Repositories) error {
		b, err := s.lockPayable(ctx, r, actor, id)
		if err != nil {
			return err
		}

		ref := ""
		if b.TotalAmount().IsPositive() {
			tx, err := walletDomain.NewLedger(r.Ledger).Debit(ctx, walletDomain.Entry{
				OwnerID:       b.ClientID(),
				Account:       walletDomain.AccountWallet,
				Type:          walletDomain.TypePayment,
				Amount:        b.TotalAmount(),
				ReferenceType: walletDomain.RefBooking,
				ReferenceID:   b.ID().String(),
			})
			if err != nil {
				return err
			}
			metrics.RecordLedgerEntry(string(tx.Account), string(tx.Type))
			ref = tx.ID.String()
		}

		if err := b.MarkPaid(bookingDomain.MethodWallet, ref, s.now()); err != nil {
			return err
		}
		if err := r.Bookings.ConfirmPayment(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// payThroughGateway charges the card first and confirms afterwards. If the
// booking can no longer be confirmed the charge is refunded.
func (s *SettlementService) payThroughGateway(ctx context.Context, actor Actor, id uuid.UUID, token string) (*bookingDomain.Booking, error) {
	pre, err := s.uow.Repos().Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePayer(actor, pre); err != nil {
		return nil, err
	}
	if err := pre.CheckPayable(s.now()); err != nil {
		return nil, err
	}

	amount := pre.TotalAmount()
	attempt := uuid.NewString()
	var (
		ref string
		out *bookingDomain.Booking
	)

	sg := saga.New("pay_booking", s.logger)
	if amount.IsPositive() {
		if strings.TrimSpace(token) == "" {
			return nil, domain.NewValidationError("payment_token is required for gateway payments")
		}
		sg.AddStep(saga.Step{
			Name: "charge",
			Execute: func(ctx context.Context) error {
				r, err := s.gateway.Charge(ctx, adapter.ChargeRequest{
					Amount:         amount,
					Currency:       pre.Currency(),
					Method:         token,
					Metadata:       map[string]string{"booking_id": id.String(), "attempt": attempt},
					IdempotencyKey: "booking-pay-" + id.String() + "-" + attempt,
				})
				if err != nil {
					return err
				}
				ref = r
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.refundUnclaimedCharge(ctx, id, ref, amount)
			},
		})
	}
	sg.AddStep(saga.Step{
		Name: "confirm",
		Execute: func(ctx context.Context) error {
			return runUnit(ctx, s.uow, s.logger, "pay_gateway", func(r store.Repositories) error {
				b, err := s.lockPayable(ctx, r, actor, id)
				if err != nil {
					return err
				}
				if err := b.MarkPaid(bookingDomain.MethodGateway, ref, s.now()); err != nil {
					return err
				}
				if err := r.Bookings.ConfirmPayment(ctx, b); err != nil {
					return err
				}
				out = b
				return nil
			})
		},
	})

	if err := sg.Execute(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// refundUnclaimedCharge refunds a charge whose confirmation failed. A charge the
// booking already holds as its payment reference is never refunded here.
func (s *SettlementService) refundUnclaimedCharge(ctx context.Context, id uuid.UUID, ref string, amount decimal.Decimal) error {
	if b, err := s.uow.Repos().Bookings.FindByID(ctx, id); err == nil && b.PaymentReference() == ref {
		s.logger.Warn("charge is held by the booking, skipping refund",
			zap.String("booking_id", id.String()),
			zap.String("reference", ref),
		)
		return nil
	}
	return s.gateway.Refund(ctx, ref, amount)
}

func (s *SettlementService) lockPayable(ctx context.Context, r store.Repositories, actor Actor, id uuid.UUID) (*bookingDomain.Booking, error) {
	b, err := r.Bookings.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePayer(actor, b); err != nil {
		return nil, err
	}
	if err := b.CheckPayable(s.now()); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SettlementService) authorizePayer(actor Actor, b *bookingDomain.Booking) error {
	if b.ClientID() != actor.UserID {
		return domain.NewForbiddenError("only the booking client can pay")
	}
	return nil
}

// AcceptBooking records the provider's acceptance of a pending booking.
func (s *SettlementService) AcceptBooking(ctx context.Context, actor Actor, id uuid.UUID) (*BookingDTO, error) {
	b, err := s.mutate(ctx, "accept_booking", id, func(r store.Repositories, b *bookingDomain.Booking) error {
		if err := authorizeProvider(actor, b); err != nil {
			return err
		}
		already := b.ProviderAcceptedAt() != nil
		if err := b.Accept(s.now()); err != nil {
			return err
		}
		if already {
			return errNoChange
		}
		return r.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking accepted", zap.String("booking_id", id.String()))
	s.notify.send(ctx, b.ClientID(), events.BookingAccepted, bookingPayload(b))
	return toBookingDTO(b), nil
}

// RejectBooking cancels a pending booking on behalf of its provider.
func (s *SettlementService) RejectBooking(ctx context.Context, actor Actor, id uuid.UUID, note string) (*BookingDTO, error) {
	b, err := s.mutate(ctx, "reject_booking", id, func(r store.Repositories, b *bookingDomain.Booking) error {
		if err := authorizeProvider(actor, b); err != nil {
			return err
		}
		if err := b.Reject(b.ProviderID(), s.now()); err != nil {
			return err
		}
		if err := r.Bookings.Update(ctx, b); err != nil {
			return err
		}
		return releasePromo(ctx, r, b)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(bookingDomain.StatusCancelled), bookingDomain.ReasonProviderRejected)
	s.logger.Info("booking rejected", zap.String("booking_id", id.String()), zap.String("note", note))
	payload := bookingPayload(b)
	if note != "" {
		payload["note"] = note
	}
	s.notify.send(ctx, b.ClientID(), events.BookingCancelled, payload)
	return toBookingDTO(b), nil
}

// CancelBooking cancels a booking for its client or an admin. A wallet-paid
// booking is refunded to the wallet in the same unit of work. A card-paid
// booking is refunded through the gateway once the cancellation commits, and
// falls back to a wallet credit if the gateway refund fails.
func (s *SettlementService) CancelBooking(ctx context.Context, actor Actor, id uuid.UUID, req CancelBookingRequest) (*BookingDTO, error) {
	code := bookingDomain.ReasonClientCancelled
	if actor.IsAdmin() {
		code = bookingDomain.ReasonAdminCancelled
	}
	reason := code
	if note := strings.TrimSpace(req.Note); note != "" {
		reason = code + ": " + note
	}

	var (
		refunded  decimal.Decimal
		cardRef   string
		refundVia = "wallet"
	)
	b, err := s.mutate(ctx, "cancel_booking", id, func(r store.Repositories, b *bookingDomain.Booking) error {
		if !actor.IsAdmin() {
			if b.ProviderID() == actor.UserID {
				return domain.NewForbiddenError("providers reject bookings instead of cancelling them")
			}
			if b.ClientID() != actor.UserID {
				return domain.NewForbiddenError("you are not a participant of this booking")
			}
		}

		by := actor.UserID
		refund, err := b.Cancel(reason, &by, s.now())
		if err != nil {
			return err
		}
		if err := r.Bookings.Update(ctx, b); err != nil {
			return err
		}

		refunded = refund
		cardRef = ""
		if !refund.IsPositive() {
			return nil
		}
		if b.PaymentMethod() == bookingDomain.MethodGateway && b.PaymentReference() != "" {
			cardRef = b.PaymentReference()
			return nil
		}
		return s.creditRefund(ctx, r, b, refund)
	})
	if err != nil {
		return nil, err
	}

	if cardRef != "" {
		refundVia = s.refundCard(ctx, b, cardRef, refunded)
	}

	metrics.RecordTransition(string(bookingDomain.StatusCancelled), code)
	s.logger.Info("booking cancelled",
		zap.String("booking_id", id.String()),
		zap.String("reason", reason),
		zap.String("refund", refunded.StringFixed(2)),
		zap.String("refund_via", refundVia),
	)
	payload := bookingPayload(b)
	payload["refund_amount"] = refunded.StringFixed(2)
	payload["refund_via"] = refundVia
	s.notify.send(ctx, b.ClientID(), events.BookingCancelled, payload)
	s.notify.send(ctx, b.ProviderID(), events.BookingCancelled, payload)
	if refunded.IsPositive() && refundVia == "wallet" {
		s.notify.send(ctx, b.ClientID(), events.WalletRefunded, map[string]any{
			"booking_id": b.ID().String(),
			"amount":     refunded.StringFixed(2),
		})
	}
	return toBookingDTO(b), nil
}

// creditRefund returns amount to the client's wallet.
func (s *SettlementService) creditRefund(ctx context.Context, r store.Repositories, b *bookingDomain.Booking, amount decimal.Decimal) error {
	tx, err := walletDomain.NewLedger(r.Ledger).Credit(ctx, walletDomain.Entry{
		OwnerID:       b.ClientID(),
		Account:       walletDomain.AccountWallet,
		Type:          walletDomain.TypeRefund,
		Amount:        amount,
		ReferenceType: walletDomain.RefBooking,
		ReferenceID:   b.ID().String(),
	})
	if err != nil {
		return err
	}
	metrics.RecordLedgerEntry(string(tx.Account), string(tx.Type))
	return nil
}

// refundCard refunds a card payment of a cancelled booking and reports where
// the money went. A failed gateway refund is credited to the wallet instead.
func (s *SettlementService) refundCard(ctx context.Context, b *bookingDomain.Booking, ref string, amount decimal.Decimal) string {
	ctx = context.WithoutCancel(ctx)
	err := s.gateway.Refund(ctx, ref, amount)
	if err == nil {
		return "gateway"
	}

	s.logger.Error("gateway refund failed, crediting wallet",
		zap.String("booking_id", b.ID().String()),
		zap.String("reference", ref),
		zap.Error(err),
	)
	if err := runUnit(ctx, s.uow, s.logger, "refund_wallet_fallback", func(r store.Repositories) error {
		return s.creditRefund(ctx, r, b, amount)
	}); err != nil {
		s.logger.Error("refund could not be settled",
			zap.String("booking_id", b.ID().String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return "none"
	}
	return "wallet"
}

// CompleteBooking finishes a confirmed booking, fixes its commission and
// credits the provider's payable account. Completing twice is a no-op.
func (s *SettlementService) CompleteBooking(ctx context.Context, actor Actor, id uuid.UUID) (*BookingDTO, error) {
	changed := false
	b, err := s.mutate(ctx, "complete_booking", id, func(r store.Repositories, b *bookingDomain.Booking) error {
		if err := authorizeProvider(actor, b); err != nil {
			return err
		}

		profile, err := r.Payouts.FindProfile(ctx, b.ProviderID())
		if err != nil {
			return err
		}
		rate := profile.EffectiveRate(s.cfg.DefaultCommissionRate)
		commission := payoutDomain.CalculateCommission(b.TotalAmount(), rate)

		ok, err := b.Complete(rate, commission, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return errNoChange
		}
		if err := r.Bookings.Update(ctx, b); err != nil {
			return err
		}
		changed = true

		earning := b.ProviderEarning()
		if !earning.IsPositive() {
			return nil
		}
		tx, err := walletDomain.NewLedger(r.Ledger).Credit(ctx, walletDomain.Entry{
			OwnerID:       b.ProviderID(),
			Account:       walletDomain.AccountPayable,
			Type:          walletDomain.TypeEarning,
			Amount:        earning,
			ReferenceType: walletDomain.RefBooking,
			ReferenceID:   b.ID().String(),
		})
		if err != nil {
			return err
		}
		metrics.RecordLedgerEntry(string(tx.Account), string(tx.Type))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return toBookingDTO(b), nil
	}

	metrics.RecordTransition(string(bookingDomain.StatusCompleted), "delivered")
	s.logger.Info("booking completed",
		zap.String("booking_id", id.String()),
		zap.String("commission", b.CommissionAmount().StringFixed(2)),
		zap.String("earning", b.ProviderEarning().StringFixed(2)),
	)
	payload := bookingPayload(b)
	payload["commission_amount"] = b.CommissionAmount().StringFixed(2)
	payload["provider_earning"] = b.ProviderEarning().StringFixed(2)
	s.notify.send(ctx, b.ProviderID(), events.BookingCompleted, payload)
	s.notify.send(ctx, b.ClientID(), events.BookingCompleted, bookingPayload(b))
	return toBookingDTO(b), nil
}

// ExpireOverdueBookings cancels pending bookings whose payment deadline passed.
// Each booking is expired by a conditional update, so a payment that commits
// first always wins. The promo redemption of an expired booking is released in
// the same unit of work. It returns the number of bookings expired.
func (s *SettlementService) ExpireOverdueBookings(ctx context.Context) (int, error) {
	started := time.Now()
	defer metrics.RecordSweep(started)

	repos := s.uow.Repos()
	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}

	expired := 0
	for {
		now := s.now()
		ids, err := repos.Bookings.FindExpiredIDs(ctx, now, batch)
		if err != nil {
			return expired, fmt.Errorf("failed to find overdue bookings: %w", err)
		}

		progressed := 0
		for _, id := range ids {
			b, err := s.expireBooking(ctx, id, now)
			if err != nil {
				s.logger.Error("failed to expire booking", zap.String("booking_id", id.String()), zap.Error(err))
				continue
			}
			if b == nil {
				continue
			}
			progressed++
			metrics.RecordTransition(string(bookingDomain.StatusCancelled), bookingDomain.ReasonPaymentTimeout)
			s.notify.send(ctx, b.ClientID(), events.BookingExpired, bookingPayload(b))
		}
		expired += progressed

		if len(ids) < batch || progressed == 0 || ctx.Err() != nil {
			break
		}
	}

	if expired > 0 {
		s.logger.Info("expired overdue bookings", zap.Int("count", expired))
	}
	return expired, nil
}

// expireBooking expires one overdue booking. A nil booking means it was paid or
// cancelled before the deadline check ran.
func (s *SettlementService) expireBooking(ctx context.Context, id uuid.UUID, now time.Time) (*bookingDomain.Booking, error) {
	var out *bookingDomain.Booking
	err := runUnit(ctx, s.uow, s.logger, "expire_booking", func(r store.Repositories) error {
		out = nil
		ok, err := r.Bookings.ExpireIfDue(ctx, id, now)
		if err != nil || !ok {
			return err
		}
		b, err := r.Bookings.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := releasePromo(ctx, r, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// releasePromo gives back the promo redemption of a booking that never went
// ahead. Client and admin cancellations keep the redemption.
func releasePromo(ctx context.Context, r store.Repositories, b *bookingDomain.Booking) error {
	promoID := b.PromoCodeID()
	if promoID == nil {
		return nil
	}
	if err := r.Promos.ReleaseUsage(ctx, *promoID, b.ID()); err != nil {
		return fmt.Errorf("failed to release promo redemption: %w", err)
	}
	return nil
}

// GetBooking returns a booking visible to actor.
func (s *SettlementService) GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*BookingDTO, error) {
	b, err := s.uow.Repos().Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !b.IsParticipant(actor.UserID) {
		return nil, domain.NewForbiddenError("you are not a participant of this booking")
	}
	return toBookingDTO(b), nil
}

// ListBookings lists the actor's bookings, or every booking for admins.
func (s *SettlementService) ListBookings(ctx context.Context, actor Actor, status string, page, limit int) (*Page[*BookingDTO], error) {
	filter := bookingDomain.ListFilter{Page: page, Limit: limit}
	if status != "" {
		st, err := bookingDomain.ParseStatus(status)
		if err != nil {
			return nil, domain.NewValidationError(err.Error())
		}
		filter.Status = st
	}
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleProvider:
		filter.ProviderID = &actor.UserID
	default:
		filter.ClientID = &actor.UserID
	}

	bookings, total, err := s.uow.Repos().Bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]*BookingDTO, len(bookings))
	for i, b := range bookings {
		items[i] = toBookingDTO(b)
	}
	return &Page[*BookingDTO]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// errNoChange ends a unit of work early without writing. It never leaves mutate.
var errNoChange = errors.New("no change")

// mutate locks booking id inside a unit of work and applies fn to it.
func (s *SettlementService) mutate(ctx context.Context, op string, id uuid.UUID, fn func(r store.Repositories, b *bookingDomain.Booking) error) (*bookingDomain.Booking, error) {
	var out *bookingDomain.Booking
	err := runUnit(ctx, s.uow, s.logger, op, func(r store.Repositories) error {
		b, err := r.Bookings.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b
		return fn(r, b)
	})
	if errors.Is(err, errNoChange) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func authorizeProvider(actor Actor, b *bookingDomain.Booking) error {
	if actor.IsAdmin() || b.ProviderID() == actor.UserID {
		return nil
	}
	return domain.NewForbiddenError("only the booking provider can do this")
}

func bookingPayload(b *bookingDomain.Booking) map[string]any {
	return map[string]any{
		"booking_id":   b.ID().String(),
		"client_id":    b.ClientID().String(),
		"provider_id":  b.ProviderID().String(),
		"status":       string(b.Status()),
		"total_amount": b.TotalAmount().StringFixed(2),
		"currency":     b.Currency(),
	}
}
