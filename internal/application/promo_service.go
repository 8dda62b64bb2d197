package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	promoDomain "github.com/khidma/service-settlement/internal/domain/promo"
	"github.com/khidma/service-settlement/internal/domain/store"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/pkg/domain"
)

// DiscountRequest is the tagged discount variant as sent by clients.
type DiscountRequest struct {
	Type              string           `json:"type" binding:"required,oneof=percentage fixed_amount free_service"`
	Value             decimal.Decimal  `json:"value" binding:"omitempty,money"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount" binding:"omitempty,money"`
	FreeServiceID     string           `json:"free_service_id"`
	FreeServicePrice  decimal.Decimal  `json:"free_service_price" binding:"omitempty,money"`
}

func (d DiscountRequest) toDomain() promoDomain.Discount {
	switch promoDomain.DiscountType(d.Type) {
	case promoDomain.DiscountPercentage:
		return promoDomain.PercentageDiscount(d.Value, d.MaxDiscountAmount)
	case promoDomain.DiscountFixedAmount:
		return promoDomain.FixedAmountDiscount(d.Value)
	case promoDomain.DiscountFreeService:
		return promoDomain.FreeServiceDiscount(d.FreeServiceID, d.FreeServicePrice)
	}
	return promoDomain.Discount{Type: promoDomain.DiscountType(d.Type)}
}

// CreatePromoRequest holds data to create a promo code.
type CreatePromoRequest struct {
	Code                 string          `json:"code" binding:"required,max=50"`
	Discount             DiscountRequest `json:"discount" binding:"required"`
	MinOrderValue        decimal.Decimal `json:"min_order_value" binding:"omitempty,money"`
	ValidFrom            time.Time       `json:"valid_from" binding:"required"`
	ValidUntil           time.Time       `json:"valid_until" binding:"required"`
	UsageLimit           *int            `json:"usage_limit" binding:"omitempty,min=1"`
	UsageLimitPerUser    int             `json:"usage_limit_per_user" binding:"omitempty,min=1"`
	ApplicableServiceIDs []string        `json:"applicable_service_ids"`
	// OwnerID lets admins create a code on behalf of a provider.
	OwnerID *uuid.UUID `json:"owner_id"`
}

// UpdatePromoRequest holds editable promo fields. Absent fields are unchanged.
type UpdatePromoRequest struct {
	Discount             *DiscountRequest `json:"discount"`
	MinOrderValue        *decimal.Decimal `json:"min_order_value" binding:"omitempty,money"`
	ValidFrom            *time.Time       `json:"valid_from"`
	ValidUntil           *time.Time       `json:"valid_until"`
	UsageLimit           *int             `json:"usage_limit" binding:"omitempty,min=1"`
	ClearUsageLimit      bool             `json:"clear_usage_limit"`
	UsageLimitPerUser    *int             `json:"usage_limit_per_user" binding:"omitempty,min=1"`
	ApplicableServiceIDs []string         `json:"applicable_service_ids"`
	IsActive             *bool            `json:"is_active"`
}

// ValidatePromoRequest holds the proposed order a code is checked against.
type ValidatePromoRequest struct {
	Code       string          `json:"code" binding:"required"`
	ProviderID uuid.UUID       `json:"provider_id"`
	OrderTotal decimal.Decimal `json:"order_total" binding:"required,money"`
	ServiceIDs []string        `json:"service_ids"`
}

// PromoService handles promo code use cases.
type PromoService struct {
	uow    store.UnitOfWork
	logger *zap.Logger
	now    func() time.Time
}

// NewPromoService creates a new PromoService.
func NewPromoService(uow store.UnitOfWork, logger *zap.Logger) *PromoService {
	return &PromoService{uow: uow, logger: logger, now: time.Now}
}

// CreatePromo creates a promo code. Providers own the codes they create;
// admins create platform codes unless they name an owner.
func (s *PromoService) CreatePromo(ctx context.Context, actor Actor, req CreatePromoRequest) (*PromoDTO, error) {
	owner := &actor.UserID
	if actor.IsAdmin() {
		owner = req.OwnerID
	}

	p, err := promoDomain.NewPromoCode(promoDomain.NewPromoCodeParams{
		Code:                 req.Code,
		Discount:             req.Discount.toDomain(),
		MinOrderValue:        req.MinOrderValue,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		UsageLimit:           req.UsageLimit,
		UsageLimitPerUser:    req.UsageLimitPerUser,
		ApplicableServiceIDs: req.ApplicableServiceIDs,
		OwnerID:              owner,
		CreatedBy:            actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.uow.Repos().Promos.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save promo: %w", err)
	}

	s.logger.Info("promo code created",
		zap.String("code", p.Code()),
		zap.String("created_by", actor.UserID.String()),
	)
	return toPromoDTO(p), nil
}

// UpdatePromo edits a code the actor manages.
func (s *PromoService) UpdatePromo(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePromoRequest) (*PromoDTO, error) {
	var out *promoDomain.PromoCode
	err := runUnit(ctx, s.uow, s.logger, "update_promo", func(r store.Repositories) error {
		p, err := r.Promos.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !p.OwnedBy(actor.UserID) {
			return domain.NewForbiddenError("you can only edit your own promo codes")
		}

		params := promoDomain.UpdateParams{
			MinOrderValue:        req.MinOrderValue,
			ValidFrom:            req.ValidFrom,
			ValidUntil:           req.ValidUntil,
			UsageLimit:           req.UsageLimit,
			ClearUsageLimit:      req.ClearUsageLimit,
			UsageLimitPerUser:    req.UsageLimitPerUser,
			ApplicableServiceIDs: req.ApplicableServiceIDs,
			IsActive:             req.IsActive,
		}
		if req.Discount != nil {
			d := req.Discount.toDomain()
			params.Discount = &d
		}
		if err := p.Apply(params); err != nil {
			return err
		}
		if err := r.Promos.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("promo code updated", zap.String("code", out.Code()), zap.Int64("version", out.Version()))
	return toPromoDTO(out), nil
}

// GetPromo returns a code by id.
func (s *PromoService) GetPromo(ctx context.Context, id uuid.UUID) (*PromoDTO, error) {
	p, err := s.uow.Repos().Promos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toPromoDTO(p), nil
}

// ListPromos lists the actor's codes, or every code for admins.
func (s *PromoService) ListPromos(ctx context.Context, actor Actor, activeOnly bool, page, limit int) (*Page[*PromoDTO], error) {
	filter := promoDomain.ListFilter{ActiveOnly: activeOnly, Page: page, Limit: limit}
	if !actor.IsAdmin() {
		filter.OwnerID = &actor.UserID
	}

	promos, total, err := s.uow.Repos().Promos.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*PromoDTO, len(promos))
	for i, p := range promos {
		items[i] = toPromoDTO(p)
	}
	return &Page[*PromoDTO]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// ValidatePromo checks a code against a proposed order without side effects.
// Rejections are reported in the result, not as errors.
func (s *PromoService) ValidatePromo(ctx context.Context, clientID uuid.UUID, req ValidatePromoRequest) (*PromoValidationDTO, error) {
	order := promoDomain.Order{
		ClientID:   clientID,
		ProviderID: req.ProviderID,
		Total:      req.OrderTotal,
		ServiceIDs: req.ServiceIDs,
	}

	_, result, err := s.check(ctx, s.uow.Repos(), req.Code, order, false)
	if err != nil {
		return nil, err
	}
	metrics.PromoValidations.WithLabelValues(resultLabel(result)).Inc()

	dto := &PromoValidationDTO{
		Valid:          result.Valid,
		Code:           promoDomain.NormalizeCode(req.Code),
		DiscountAmount: result.DiscountAmount,
	}
	if !result.Valid {
		dto.Reason = string(result.Reason)
		dto.Message = result.Reason.Message()
	}
	return dto, nil
}

// Redemption is a successful redeem.
type Redemption struct {
	PromoCodeID    uuid.UUID
	DiscountAmount decimal.Decimal
}

// Redeem consumes one use of code for bookingID. It must run inside the unit of
// work that creates the booking: the code row is locked, every limit is
// re-checked under the lock, the usage row is inserted and used_count is
// incremented conditionally.
func (s *PromoService) Redeem(ctx context.Context, r store.Repositories, code string, order promoDomain.Order, bookingID uuid.UUID) (*Redemption, error) {
	p, result, err := s.check(ctx, r, code, order, true)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		metrics.PromoValidations.WithLabelValues("redeem_" + string(result.Reason)).Inc()
		return nil, result.Reason.Err()
	}

	usage := promoDomain.NewUsage(p.ID(), order.ClientID, bookingID, result.DiscountAmount)
	if err := r.Promos.SaveUsage(ctx, usage); err != nil {
		return nil, fmt.Errorf("failed to record promo usage: %w", err)
	}
	if err := r.Promos.IncrementUsedCount(ctx, p.ID()); err != nil {
		return nil, err
	}

	s.logger.Info("promo code redeemed",
		zap.String("code", p.Code()),
		zap.String("booking_id", bookingID.String()),
		zap.String("discount", result.DiscountAmount.StringFixed(2)),
	)
	return &Redemption{PromoCodeID: p.ID(), DiscountAmount: result.DiscountAmount}, nil
}

func (s *PromoService) check(ctx context.Context, r store.Repositories, code string, order promoDomain.Order, lock bool) (*promoDomain.PromoCode, promoDomain.ValidationResult, error) {
	find := r.Promos.FindByCode
	if lock {
		find = r.Promos.FindByCodeForUpdate
	}

	p, err := find(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, promoDomain.ValidationResult{Reason: promoDomain.ReasonNotFound, DiscountAmount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, promoDomain.ValidationResult{}, err
	}

	used, err := r.Promos.CountUsage(ctx, p.ID(), order.ClientID)
	if err != nil {
		return nil, promoDomain.ValidationResult{}, err
	}
	return p, p.Validate(order, used, s.now()), nil
}

func resultLabel(r promoDomain.ValidationResult) string {
	if r.Valid {
		return "valid"
	}
	return string(r.Reason)
}
