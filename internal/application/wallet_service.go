package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/domain/store"
	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/internal/saga"
	"github.com/khidma/service-settlement/pkg/domain"
	"github.com/khidma/service-settlement/pkg/events"
)

// DepositRequest tops up a client wallet through the payment gateway.
type DepositRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required,money"`
	PaymentToken string          `json:"payment_token" binding:"required"`
}

// WalletService exposes balances and history of the wallet ledger.
type WalletService struct {
	uow      store.UnitOfWork
	gateway  adapter.PaymentGateway
	notify   notifier
	currency string
	logger   *zap.Logger
}

// NewWalletService creates a new WalletService.
func NewWalletService(uow store.UnitOfWork, gateway adapter.PaymentGateway, n adapter.Notifier, currency string, logger *zap.Logger) *WalletService {
	return &WalletService{
		uow:      uow,
		gateway:  gateway,
		notify:   notifier{inner: n, logger: logger},
		currency: currency,
		logger:   logger,
	}
}

// GetBalance returns the owner's spendable wallet balance.
func (s *WalletService) GetBalance(ctx context.Context, ownerID uuid.UUID) (*WalletBalanceDTO, error) {
	balance, err := walletDomain.NewLedger(s.uow.Repos().Ledger).Balance(ctx, ownerID, walletDomain.AccountWallet)
	if err != nil {
		return nil, err
	}
	return &WalletBalanceDTO{OwnerID: ownerID, Balance: balance, Currency: s.currency}, nil
}

// GetHistory lists ledger rows of one of the owner's accounts, newest first.
func (s *WalletService) GetHistory(ctx context.Context, ownerID uuid.UUID, account string, page, limit int) (*Page[LedgerEntryDTO], error) {
	acc, err := parseAccount(account)
	if err != nil {
		return nil, err
	}

	rows, total, err := s.uow.Repos().Ledger.List(ctx, ownerID, acc, page, limit)
	if err != nil {
		return nil, err
	}
	items := make([]LedgerEntryDTO, len(rows))
	for i, tx := range rows {
		items[i] = toLedgerEntryDTO(tx)
	}
	return &Page[LedgerEntryDTO]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Deposit charges the gateway and credits the wallet. A failed credit refunds
// the charge.
func (s *WalletService) Deposit(ctx context.Context, ownerID uuid.UUID, req DepositRequest) (*LedgerEntryDTO, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, domain.NewValidationError("deposit amount must be positive with at most two decimals")
	}

	depositID := uuid.New()
	var (
		ref string
		tx  *walletDomain.Transaction
	)

	err := saga.New("wallet_deposit", s.logger).
		AddStep(saga.Step{
			Name: "charge",
			Execute: func(ctx context.Context) error {
				r, err := s.gateway.Charge(ctx, adapter.ChargeRequest{
					Amount:         req.Amount,
					Currency:       s.currency,
					Method:         req.PaymentToken,
					Metadata:       map[string]string{"deposit_id": depositID.String(), "owner_id": ownerID.String()},
					IdempotencyKey: "wallet-deposit-" + depositID.String(),
				})
				if err != nil {
					return err
				}
				ref = r
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.gateway.Refund(ctx, ref, req.Amount)
			},
		}).
		AddStep(saga.Step{
			Name: "credit",
			Execute: func(ctx context.Context) error {
				return runUnit(ctx, s.uow, s.logger, "wallet_deposit", func(r store.Repositories) error {
					created, err := walletDomain.NewLedger(r.Ledger).Credit(ctx, walletDomain.Entry{
						OwnerID:       ownerID,
						Account:       walletDomain.AccountWallet,
						Type:          walletDomain.TypeDeposit,
						Amount:        req.Amount,
						ReferenceType: walletDomain.RefDeposit,
						ReferenceID:   ref,
					})
					if err != nil {
						return err
					}
					tx = created
					return nil
				})
			},
		}).
		Execute(ctx)
	if err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(tx.Account), string(tx.Type))
	s.logger.Info("wallet deposit",
		zap.String("owner_id", ownerID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("reference", ref),
	)
	s.notify.send(ctx, ownerID, events.WalletDeposited, map[string]any{
		"amount":        req.Amount.StringFixed(2),
		"balance_after": tx.BalanceAfter.StringFixed(2),
		"reference":     ref,
		"occurred_at":   time.Now().UTC(),
	})
	dto := toLedgerEntryDTO(tx)
	return &dto, nil
}

// VerifyLedger replays an account from its first row and reports whether every
// balance link holds.
func (s *WalletService) VerifyLedger(ctx context.Context, ownerID uuid.UUID, account string) (walletDomain.Verification, error) {
	acc, err := parseAccount(account)
	if err != nil {
		return walletDomain.Verification{}, err
	}
	rows, err := s.uow.Repos().Ledger.ListAll(ctx, ownerID, acc)
	if err != nil {
		return walletDomain.Verification{}, err
	}

	v := walletDomain.Verify(ownerID, acc, rows)
	if !v.Valid {
		s.logger.Error("ledger verification failed",
			zap.String("owner_id", ownerID.String()),
			zap.String("account", string(acc)),
			zap.String("problem", v.Problem),
		)
	}
	return v, nil
}

func parseAccount(account string) (walletDomain.Account, error) {
	if account == "" {
		return walletDomain.AccountWallet, nil
	}
	acc := walletDomain.Account(account)
	if !acc.IsValid() {
		return "", domain.NewValidationError("account must be wallet or payable")
	}
	return acc, nil
}
