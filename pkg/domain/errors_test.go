package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_WrapsSentinel(t *testing.T) {
	err := fmt.Errorf("redeem: %w", NewBusinessError(ErrPromoExhausted, "usage_limit_reached", "no uses left"))

	assert.True(t, errors.Is(err, ErrPromoExhausted))
	assert.False(t, errors.Is(err, ErrPromoExpired))
	assert.Equal(t, "usage_limit_reached", ReasonOf(err))
	assert.Contains(t, err.Error(), "no uses left")
}

func TestNewInvalidStateError(t *testing.T) {
	err := NewInvalidStateError("cancelled", "confirmed")

	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, "invalid state transition: cannot transition from cancelled to confirmed", err.Error())
	assert.Empty(t, ReasonOf(err))
}
