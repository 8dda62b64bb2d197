package promo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/pkg/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountType tags the discount variant.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountFreeService DiscountType = "free_service"
)

// Discount is a tagged union. Only the fields relevant to Type are meaningful.
type Discount struct {
	Type DiscountType

	// percentage (0-100] or a fixed amount
	Value decimal.Decimal
	// optional cap for percentage discounts
	MaxDiscountAmount *decimal.Decimal

	FreeServiceID    string
	FreeServicePrice decimal.Decimal
}

// PercentageDiscount builds a percentage discount with an optional cap.
func PercentageDiscount(value decimal.Decimal, maxDiscount *decimal.Decimal) Discount {
	return Discount{Type: DiscountPercentage, Value: value, MaxDiscountAmount: maxDiscount}
}

// FixedAmountDiscount builds a fixed amount discount.
func FixedAmountDiscount(value decimal.Decimal) Discount {
	return Discount{Type: DiscountFixedAmount, Value: value}
}

// FreeServiceDiscount makes the designated service free.
func FreeServiceDiscount(serviceID string, price decimal.Decimal) Discount {
	return Discount{Type: DiscountFreeService, FreeServiceID: serviceID, FreeServicePrice: price}
}

// Validate checks the variant is well formed.
func (d Discount) Validate() error {
	switch d.Type {
	case DiscountPercentage:
		if !d.Value.IsPositive() || d.Value.GreaterThan(hundred) {
			return domain.NewValidationError("percentage discount must be within (0, 100]")
		}
		if d.MaxDiscountAmount != nil && !d.MaxDiscountAmount.IsPositive() {
			return domain.NewValidationError("max_discount_amount must be positive")
		}
	case DiscountFixedAmount:
		if !d.Value.IsPositive() {
			return domain.NewValidationError("fixed discount must be positive")
		}
	case DiscountFreeService:
		if strings.TrimSpace(d.FreeServiceID) == "" {
			return domain.NewValidationError("free_service discount requires a service id")
		}
		if d.FreeServicePrice.IsNegative() {
			return domain.NewValidationError("free service price cannot be negative")
		}
	default:
		return domain.NewValidationError(fmt.Sprintf("invalid discount type: %s", d.Type))
	}
	return nil
}

// Amount computes the discount for orderTotal. The result never exceeds orderTotal.
func (d Discount) Amount(orderTotal decimal.Decimal) decimal.Decimal {
	if !orderTotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = orderTotal.Mul(d.Value).Div(hundred).Round(2)
		if d.MaxDiscountAmount != nil && amount.GreaterThan(*d.MaxDiscountAmount) {
			amount = *d.MaxDiscountAmount
		}
	case DiscountFixedAmount:
		amount = d.Value
	case DiscountFreeService:
		amount = d.FreeServicePrice
	}
	return decimal.Min(amount, orderTotal).Round(2)
}

// PromoCode is the aggregate root for promotional codes.
type PromoCode struct {
	id                   uuid.UUID
	code                 string
	discount             Discount
	minOrderValue        decimal.Decimal
	validFrom            time.Time
	validUntil           time.Time
	usageLimit           *int
	usageLimitPerUser    int
	usedCount            int
	isActive             bool
	applicableServiceIDs []string
	ownerID              *uuid.UUID
	createdBy            uuid.UUID
	version              int64
	createdAt            time.Time
	updatedAt            time.Time
}

// NewPromoCodeParams holds the inputs for NewPromoCode.
type NewPromoCodeParams struct {
	Code                 string
	Discount             Discount
	MinOrderValue        decimal.Decimal
	ValidFrom            time.Time
	ValidUntil           time.Time
	UsageLimit           *int
	UsageLimitPerUser    int
	ApplicableServiceIDs []string
	OwnerID              *uuid.UUID
	CreatedBy            uuid.UUID
}

// NormalizeCode upper-cases and trims a code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewPromoCode creates an active promo code.
func NewPromoCode(p NewPromoCodeParams) (*PromoCode, error) {
	code := NormalizeCode(p.Code)
	if code == "" {
		return nil, domain.NewValidationError("promo code is required")
	}
	if err := p.Discount.Validate(); err != nil {
		return nil, err
	}
	if err := validateWindow(p.ValidFrom, p.ValidUntil); err != nil {
		return nil, err
	}
	if p.MinOrderValue.IsNegative() {
		return nil, domain.NewValidationError("min_order_value cannot be negative")
	}
	if p.UsageLimit != nil && *p.UsageLimit < 1 {
		return nil, domain.NewValidationError("usage_limit must be at least 1")
	}
	perUser := p.UsageLimitPerUser
	if perUser == 0 {
		perUser = 1
	}
	if perUser < 0 {
		return nil, domain.NewValidationError("usage_limit_per_user must be positive")
	}
	if p.Discount.Type == DiscountFreeService && len(p.ApplicableServiceIDs) > 0 &&
		!contains(p.ApplicableServiceIDs, p.Discount.FreeServiceID) {
		return nil, domain.NewValidationError("free service must be one of the applicable services")
	}

	now := time.Now().UTC()
	return &PromoCode{
		id:                   uuid.New(),
		code:                 code,
		discount:             p.Discount,
		minOrderValue:        p.MinOrderValue,
		validFrom:            p.ValidFrom.UTC(),
		validUntil:           p.ValidUntil.UTC(),
		usageLimit:           p.UsageLimit,
		usageLimitPerUser:    perUser,
		isActive:             true,
		applicableServiceIDs: dedupe(p.ApplicableServiceIDs),
		ownerID:              p.OwnerID,
		createdBy:            p.CreatedBy,
		version:              1,
		createdAt:            now,
		updatedAt:            now,
	}, nil
}

func validateWindow(from, until time.Time) error {
	if from.IsZero() || until.IsZero() {
		return domain.NewValidationError("valid_from and valid_until are required")
	}
	if until.Before(from) {
		return domain.NewValidationError("valid_until must not be before valid_from")
	}
	return nil
}

// Order is the proposed order a code is validated against.
type Order struct {
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	Total      decimal.Decimal
	ServiceIDs []string
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid          bool
	DiscountAmount decimal.Decimal
	Reason         Reason
}

// Validate runs the eligibility checks in order and stops at the first failure.
// userUsage is the number of redemptions clientID already made of this code.
// It never mutates the code.
func (p *PromoCode) Validate(order Order, userUsage int64, now time.Time) ValidationResult {
	reject := func(r Reason) ValidationResult {
		return ValidationResult{Valid: false, DiscountAmount: decimal.Zero, Reason: r}
	}

	if !p.isActive {
		return reject(ReasonInactive)
	}
	if now.Before(p.validFrom) {
		return reject(ReasonNotStarted)
	}
	if now.After(p.validUntil) {
		return reject(ReasonExpired)
	}
	if p.usageLimit != nil && p.usedCount >= *p.usageLimit {
		return reject(ReasonUsageLimitReached)
	}
	if userUsage >= int64(p.usageLimitPerUser) {
		return reject(ReasonUserLimitReached)
	}
	if order.Total.LessThan(p.minOrderValue) {
		return reject(ReasonMinOrderNotMet)
	}
	if !p.appliesTo(order) {
		return reject(ReasonServiceNotApplicable)
	}

	return ValidationResult{Valid: true, DiscountAmount: p.discount.Amount(order.Total)}
}

func (p *PromoCode) appliesTo(order Order) bool {
	if p.ownerID != nil && *p.ownerID != order.ProviderID {
		return false
	}
	if p.discount.Type == DiscountFreeService && !contains(order.ServiceIDs, p.discount.FreeServiceID) {
		return false
	}
	if len(p.applicableServiceIDs) == 0 {
		return true
	}
	for _, id := range order.ServiceIDs {
		if contains(p.applicableServiceIDs, id) {
			return true
		}
	}
	return false
}

// CalculateDiscount returns the discount for orderTotal without eligibility checks.
func (p *PromoCode) CalculateDiscount(orderTotal decimal.Decimal) decimal.Decimal {
	return p.discount.Amount(orderTotal)
}

// HasCapacity reports whether the global limit allows one more redemption.
func (p *PromoCode) HasCapacity() bool {
	return p.usageLimit == nil || p.usedCount < *p.usageLimit
}

// IncrementUses records one redemption.
func (p *PromoCode) IncrementUses() error {
	if !p.HasCapacity() {
		return domain.NewBusinessError(domain.ErrPromoExhausted, string(ReasonUsageLimitReached), "promo code usage limit reached")
	}
	p.usedCount++
	p.touch()
	return nil
}

// UpdateParams holds editable fields. Nil fields are left unchanged.
type UpdateParams struct {
	Discount             *Discount
	MinOrderValue        *decimal.Decimal
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	UsageLimit           *int
	ClearUsageLimit      bool
	UsageLimitPerUser    *int
	ApplicableServiceIDs []string
	IsActive             *bool
}

// Apply edits the code. usage_limit may not drop below used_count.
func (p *PromoCode) Apply(u UpdateParams) error {
	next := *p
	if u.Discount != nil {
		if err := u.Discount.Validate(); err != nil {
			return err
		}
		next.discount = *u.Discount
	}
	if u.MinOrderValue != nil {
		if u.MinOrderValue.IsNegative() {
			return domain.NewValidationError("min_order_value cannot be negative")
		}
		next.minOrderValue = *u.MinOrderValue
	}
	if u.ValidFrom != nil {
		next.validFrom = u.ValidFrom.UTC()
	}
	if u.ValidUntil != nil {
		next.validUntil = u.ValidUntil.UTC()
	}
	if err := validateWindow(next.validFrom, next.validUntil); err != nil {
		return err
	}
	switch {
	case u.ClearUsageLimit:
		next.usageLimit = nil
	case u.UsageLimit != nil:
		if *u.UsageLimit < p.usedCount || *u.UsageLimit < 1 {
			return domain.NewValidationError(fmt.Sprintf("usage_limit cannot be lower than used count %d", p.usedCount))
		}
		limit := *u.UsageLimit
		next.usageLimit = &limit
	}
	if u.UsageLimitPerUser != nil {
		if *u.UsageLimitPerUser < 1 {
			return domain.NewValidationError("usage_limit_per_user must be positive")
		}
		next.usageLimitPerUser = *u.UsageLimitPerUser
	}
	if u.ApplicableServiceIDs != nil {
		next.applicableServiceIDs = dedupe(u.ApplicableServiceIDs)
	}
	if u.IsActive != nil {
		next.isActive = *u.IsActive
	}

	*p = next
	p.touch()
	return nil
}

// OwnedBy reports whether userID may manage this code. Platform codes have no owner.
func (p *PromoCode) OwnedBy(userID uuid.UUID) bool {
	return p.ownerID != nil && *p.ownerID == userID
}

func (p *PromoCode) touch() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// Getters.
func (p *PromoCode) ID() uuid.UUID                  { return p.id }
func (p *PromoCode) Code() string                   { return p.code }
func (p *PromoCode) Discount() Discount             { return p.discount }
func (p *PromoCode) MinOrderValue() decimal.Decimal { return p.minOrderValue }
func (p *PromoCode) ValidFrom() time.Time           { return p.validFrom }
func (p *PromoCode) ValidUntil() time.Time          { return p.validUntil }
func (p *PromoCode) UsageLimit() *int               { return p.usageLimit }
func (p *PromoCode) UsageLimitPerUser() int         { return p.usageLimitPerUser }
func (p *PromoCode) UsedCount() int                 { return p.usedCount }
func (p *PromoCode) IsActive() bool                 { return p.isActive }
func (p *PromoCode) ApplicableServiceIDs() []string { return p.applicableServiceIDs }
func (p *PromoCode) OwnerID() *uuid.UUID            { return p.ownerID }
func (p *PromoCode) CreatedBy() uuid.UUID           { return p.createdBy }
func (p *PromoCode) Version() int64                 { return p.version }
func (p *PromoCode) CreatedAt() time.Time           { return p.createdAt }
func (p *PromoCode) UpdatedAt() time.Time           { return p.updatedAt }

// Snapshot is the persisted form of a PromoCode.
type Snapshot struct {
	ID                   uuid.UUID
	Code                 string
	Discount             Discount
	MinOrderValue        decimal.Decimal
	ValidFrom            time.Time
	ValidUntil           time.Time
	UsageLimit           *int
	UsageLimitPerUser    int
	UsedCount            int
	IsActive             bool
	ApplicableServiceIDs []string
	OwnerID              *uuid.UUID
	CreatedBy            uuid.UUID
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Reconstruct rebuilds a PromoCode from persistence.
func Reconstruct(s Snapshot) *PromoCode {
	return &PromoCode{
		id: s.ID, code: s.Code, discount: s.Discount, minOrderValue: s.MinOrderValue,
		validFrom: s.ValidFrom, validUntil: s.ValidUntil,
		usageLimit: s.UsageLimit, usageLimitPerUser: s.UsageLimitPerUser, usedCount: s.UsedCount,
		isActive: s.IsActive, applicableServiceIDs: s.ApplicableServiceIDs, ownerID: s.OwnerID,
		createdBy: s.CreatedBy, version: s.Version, createdAt: s.CreatedAt, updatedAt: s.UpdatedAt,
	}
}

// Snapshot returns the persisted form of p.
func (p *PromoCode) Snapshot() Snapshot {
	return Snapshot{
		ID: p.id, Code: p.code, Discount: p.discount, MinOrderValue: p.minOrderValue,
		ValidFrom: p.validFrom, ValidUntil: p.validUntil,
		UsageLimit: p.usageLimit, UsageLimitPerUser: p.usageLimitPerUser, UsedCount: p.usedCount,
		IsActive: p.isActive, ApplicableServiceIDs: p.applicableServiceIDs, OwnerID: p.ownerID,
		CreatedBy: p.createdBy, Version: p.version, CreatedAt: p.createdAt, UpdatedAt: p.updatedAt,
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
