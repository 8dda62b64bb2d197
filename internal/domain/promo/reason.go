package promo

import "github.com/khidma/service-settlement/pkg/domain"

// Reason explains why a code was rejected.
type Reason string

const (
	ReasonNotFound             Reason = "not_found"
	ReasonInactive             Reason = "inactive"
	ReasonNotStarted           Reason = "not_started"
	ReasonExpired              Reason = "expired"
	ReasonUsageLimitReached    Reason = "usage_limit_reached"
	ReasonUserLimitReached     Reason = "user_limit_reached"
	ReasonMinOrderNotMet       Reason = "min_order_not_met"
	ReasonServiceNotApplicable Reason = "service_not_applicable"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:             "promo code does not exist",
	ReasonInactive:             "promo code is not active",
	ReasonNotStarted:           "promo code is not valid yet",
	ReasonExpired:              "promo code has expired",
	ReasonUsageLimitReached:    "promo code usage limit reached",
	ReasonUserLimitReached:     "you have already used this promo code",
	ReasonMinOrderNotMet:       "order total is below the promo minimum",
	ReasonServiceNotApplicable: "promo code does not apply to the selected services",
}

// Message returns a human readable description of r.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// Err maps a rejection reason onto the error taxonomy.
func (r Reason) Err() error {
	var sentinel error
	switch r {
	case ReasonNotStarted, ReasonExpired:
		sentinel = domain.ErrPromoExpired
	case ReasonUsageLimitReached, ReasonUserLimitReached:
		sentinel = domain.ErrPromoExhausted
	default:
		sentinel = domain.ErrPromoNotApplicable
	}
	return domain.NewBusinessError(sentinel, string(r), r.Message())
}
