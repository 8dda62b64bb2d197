package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/config"
	payoutDomain "github.com/khidma/service-settlement/internal/domain/payout"
	"github.com/khidma/service-settlement/internal/domain/store"
	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/pkg/domain"
	"github.com/khidma/service-settlement/pkg/events"
)

// WithdrawalInput is a provider's request to be paid out.
type WithdrawalInput struct {
	Amount decimal.Decimal `json:"amount" binding:"required,money"`
	// Bank overrides the details stored on the provider profile.
	Bank *BankDetailsDTO `json:"bank_details"`
}

// ReviewWithdrawalInput is an admin decision on a withdrawal request.
type ReviewWithdrawalInput struct {
	Action               string `json:"action" binding:"required,oneof=approve reject process complete"`
	Note                 string `json:"note" binding:"max=500"`
	TransactionReference string `json:"transaction_reference" binding:"max=255"`
}

// ProviderProfileInput updates a provider profile. Only admins may touch the
// commission rate.
type ProviderProfileInput struct {
	CommissionRate      *decimal.Decimal `json:"commission_rate"`
	ClearCommissionRate bool             `json:"clear_commission_rate"`
	Bank                *BankDetailsDTO  `json:"bank_details"`
}

// PayoutService handles provider balances, withdrawals and profiles.
type PayoutService struct {
	uow    store.UnitOfWork
	notify notifier
	cfg    config.SettlementConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPayoutService creates a new PayoutService.
func NewPayoutService(uow store.UnitOfWork, n adapter.Notifier, cfg config.SettlementConfig, logger *zap.Logger) *PayoutService {
	return &PayoutService{
		uow:    uow,
		notify: notifier{inner: n, logger: logger},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// GetPayableBalance reports the provider's payable balance and how much of it
// is free to withdraw.
func (s *PayoutService) GetPayableBalance(ctx context.Context, providerID uuid.UUID) (*PayableBalanceDTO, error) {
	balance, reserved, err := s.payable(ctx, s.uow.Repos(), providerID)
	if err != nil {
		return nil, err
	}
	return &PayableBalanceDTO{
		ProviderID: providerID,
		Balance:    balance,
		Reserved:   reserved,
		Available:  available(balance, reserved),
		Currency:   s.cfg.Currency,
	}, nil
}

// RequestWithdrawal reserves amount of the provider's payable balance. The
// payable account is locked so concurrent requests cannot over-reserve.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, actor Actor, req WithdrawalInput) (*WithdrawalDTO, error) {
	var out *payoutDomain.WithdrawalRequest
	err := runUnit(ctx, s.uow, s.logger, "request_withdrawal", func(r store.Repositories) error {
		if err := r.Ledger.LockAccount(ctx, actor.UserID, walletDomain.AccountPayable); err != nil {
			return err
		}
		balance, reserved, err := s.payable(ctx, r, actor.UserID)
		if err != nil {
			return err
		}
		if free := available(balance, reserved); req.Amount.GreaterThan(free) {
			return domain.NewBusinessError(domain.ErrInsufficientPayableBalance, "",
				"available balance "+free.StringFixed(2)+" does not cover "+req.Amount.StringFixed(2))
		}

		var bank payoutDomain.BankDetails
		if req.Bank != nil {
			bank = req.Bank.toDomain()
		} else {
			profile, err := r.Payouts.FindProfile(ctx, actor.UserID)
			if err != nil {
				return err
			}
			if profile != nil {
				bank = profile.Bank
			}
		}

		w, err := payoutDomain.NewWithdrawalRequest(actor.UserID, req.Amount, s.cfg.WithdrawalFeeRate, s.cfg.Currency, bank, s.now())
		if err != nil {
			return err
		}
		if err := r.Payouts.SaveRequest(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Withdrawals.WithLabelValues("requested").Inc()
	s.logger.Info("withdrawal requested",
		zap.String("withdrawal_id", out.ID().String()),
		zap.String("provider_id", actor.UserID.String()),
		zap.String("amount", out.Amount().StringFixed(2)),
	)
	s.notify.send(ctx, actor.UserID, events.WithdrawalRequested, withdrawalPayload(out))
	return toWithdrawalDTO(out), nil
}

// ReviewWithdrawal applies an admin action. Completing a request debits the
// provider's payable account by the full amount in the same unit of work.
func (s *PayoutService) ReviewWithdrawal(ctx context.Context, actor Actor, id uuid.UUID, req ReviewWithdrawalInput) (*WithdrawalDTO, error) {
	if !actor.IsAdmin() {
		return nil, domain.NewForbiddenError("only admins can review withdrawals")
	}

	action := payoutDomain.Action(req.Action)
	var out *payoutDomain.WithdrawalRequest
	err := runUnit(ctx, s.uow, s.logger, "review_withdrawal", func(r store.Repositories) error {
		w, err := r.Payouts.FindRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}

		now := s.now()
		switch action {
		case payoutDomain.ActionApprove:
			err = w.Approve(actor.UserID, req.Note, now)
		case payoutDomain.ActionReject:
			err = w.Reject(actor.UserID, req.Note, now)
		case payoutDomain.ActionProcess:
			err = w.Process(actor.UserID, req.Note, now)
		case payoutDomain.ActionComplete:
			err = w.Complete(actor.UserID, req.TransactionReference, req.Note, now)
		default:
			err = domain.NewValidationError("action must be approve, reject, process or complete")
		}
		if err != nil {
			return err
		}

		if action == payoutDomain.ActionComplete {
			tx, err := walletDomain.NewLedger(r.Ledger).Debit(ctx, walletDomain.Entry{
				OwnerID:       w.ProviderID(),
				Account:       walletDomain.AccountPayable,
				Type:          walletDomain.TypeWithdrawal,
				Amount:        w.Amount(),
				ReferenceType: walletDomain.RefWithdrawal,
				ReferenceID:   w.ID().String(),
			})
			if err != nil {
				return err
			}
			metrics.RecordLedgerEntry(string(tx.Account), string(tx.Type))
		}

		if err := r.Payouts.UpdateRequest(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Withdrawals.WithLabelValues(string(action)).Inc()
	s.logger.Info("withdrawal reviewed",
		zap.String("withdrawal_id", id.String()),
		zap.String("action", string(action)),
		zap.String("status", string(out.Status())),
		zap.String("admin_id", actor.UserID.String()),
	)
	s.notify.send(ctx, out.ProviderID(), events.WithdrawalReviewed, withdrawalPayload(out))
	return toWithdrawalDTO(out), nil
}

// GetWithdrawal returns a request visible to actor.
func (s *PayoutService) GetWithdrawal(ctx context.Context, actor Actor, id uuid.UUID) (*WithdrawalDTO, error) {
	w, err := s.uow.Repos().Payouts.FindRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && w.ProviderID() != actor.UserID {
		return nil, domain.NewForbiddenError("you can only view your own withdrawals")
	}
	return toWithdrawalDTO(w), nil
}

// ListWithdrawals lists the actor's requests, or every request for admins.
func (s *PayoutService) ListWithdrawals(ctx context.Context, actor Actor, status string, page, limit int) (*Page[*WithdrawalDTO], error) {
	filter := payoutDomain.ListFilter{Page: page, Limit: limit}
	if status != "" {
		st, err := parseWithdrawalStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	if !actor.IsAdmin() {
		filter.ProviderID = &actor.UserID
	}

	requests, total, err := s.uow.Repos().Payouts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]*WithdrawalDTO, len(requests))
	for i, w := range requests {
		items[i] = toWithdrawalDTO(w)
	}
	return &Page[*WithdrawalDTO]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// GetProviderProfile returns the provider's profile with its effective rate.
func (s *PayoutService) GetProviderProfile(ctx context.Context, providerID uuid.UUID) (*ProviderProfileDTO, error) {
	profile, err := s.uow.Repos().Payouts.FindProfile(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return s.toProfileDTO(providerID, profile), nil
}

// UpsertProviderProfile updates bank details (provider or admin) and the
// custom commission rate (admin only).
func (s *PayoutService) UpsertProviderProfile(ctx context.Context, actor Actor, providerID uuid.UUID, req ProviderProfileInput) (*ProviderProfileDTO, error) {
	if !actor.IsAdmin() {
		if actor.UserID != providerID {
			return nil, domain.NewForbiddenError("you can only edit your own profile")
		}
		if req.CommissionRate != nil || req.ClearCommissionRate {
			return nil, domain.NewForbiddenError("only admins can set commission rates")
		}
	}
	if req.CommissionRate != nil {
		if err := payoutDomain.ValidateRate(*req.CommissionRate); err != nil {
			return nil, err
		}
	}
	if req.Bank != nil {
		if err := req.Bank.toDomain().Validate(); err != nil {
			return nil, err
		}
	}

	var out *payoutDomain.ProviderProfile
	err := runUnit(ctx, s.uow, s.logger, "upsert_provider_profile", func(r store.Repositories) error {
		profile, err := r.Payouts.FindProfile(ctx, providerID)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &payoutDomain.ProviderProfile{ProviderID: providerID}
		}
		switch {
		case req.ClearCommissionRate:
			profile.CommissionRate = nil
		case req.CommissionRate != nil:
			rate := req.CommissionRate.Round(2)
			profile.CommissionRate = &rate
		}
		if req.Bank != nil {
			profile.Bank = req.Bank.toDomain()
		}
		profile.UpdatedAt = s.now().UTC()

		if err := r.Payouts.UpsertProfile(ctx, profile); err != nil {
			return err
		}
		out = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("provider profile updated",
		zap.String("provider_id", providerID.String()),
		zap.String("updated_by", actor.UserID.String()),
	)
	return s.toProfileDTO(providerID, out), nil
}

func (s *PayoutService) payable(ctx context.Context, r store.Repositories, providerID uuid.UUID) (balance, reserved decimal.Decimal, err error) {
	balance, err = walletDomain.NewLedger(r.Ledger).Balance(ctx, providerID, walletDomain.AccountPayable)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	reserved, err = r.Payouts.SumReserved(ctx, providerID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return balance, reserved, nil
}

func (s *PayoutService) toProfileDTO(providerID uuid.UUID, p *payoutDomain.ProviderProfile) *ProviderProfileDTO {
	dto := &ProviderProfileDTO{
		ProviderID:     providerID,
		CommissionRate: p.EffectiveRate(s.cfg.DefaultCommissionRate),
	}
	if p == nil {
		return dto
	}
	dto.CustomRate = p.CommissionRate
	if !p.Bank.IsZero() {
		bank := toBankDetailsDTO(p.Bank)
		dto.Bank = &bank
	}
	updated := p.UpdatedAt
	dto.UpdatedAt = &updated
	return dto
}

func available(balance, reserved decimal.Decimal) decimal.Decimal {
	return decimal.Max(balance.Sub(reserved), decimal.Zero)
}

func parseWithdrawalStatus(s string) (payoutDomain.Status, error) {
	st := payoutDomain.Status(s)
	switch st {
	case payoutDomain.StatusPending, payoutDomain.StatusApproved, payoutDomain.StatusProcessing,
		payoutDomain.StatusCompleted, payoutDomain.StatusRejected:
		return st, nil
	}
	return "", domain.NewValidationError("unknown withdrawal status " + s)
}

func withdrawalPayload(w *payoutDomain.WithdrawalRequest) map[string]any {
	return map[string]any{
		"withdrawal_id": w.ID().String(),
		"status":        string(w.Status()),
		"amount":        w.Amount().StringFixed(2),
		"net_amount":    w.NetAmount().StringFixed(2),
		"currency":      w.Currency(),
	}
}
