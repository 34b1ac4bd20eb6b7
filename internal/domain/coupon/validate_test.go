package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	fixedNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	subtotal50 := decimal.NewFromInt(50)

	tests := []struct {
		name      string
		coupon    *Coupon
		subtotal  decimal.Decimal
		priorUses int
		wantErr   error
	}{
		{
			name:     "active coupon with no constraints passes",
			coupon:   &Coupon{Code: "PLAIN", Type: DiscountPercentage, Value: decimal.NewFromInt(10), Active: true},
			subtotal: subtotal50,
		},
		{
			name:     "inactive coupon",
			coupon:   &Coupon{Code: "OFF", Active: false},
			subtotal: subtotal50,
			wantErr:  ErrInactive,
		},
		{
			name: "not yet valid",
			coupon: &Coupon{
				Code:      "FUTURE",
				Active:    true,
				ValidFrom: &futureTime,
			},
			subtotal: subtotal50,
			wantErr:  ErrNotYetValid,
		},
		{
			name: "expired",
			coupon: &Coupon{
				Code:       "OLD",
				Active:     true,
				ValidUntil: &pastTime,
			},
			subtotal: subtotal50,
			wantErr:  ErrExpired,
		},
		{
			name: "inside validity window passes",
			coupon: &Coupon{
				Code:       "WINDOW",
				Active:     true,
				ValidFrom:  &pastTime,
				ValidUntil: &futureTime,
			},
			subtotal: subtotal50,
		},
		{
			name: "usage limit exactly reached",
			coupon: &Coupon{
				Code:       "LIMITED",
				Active:     true,
				UsageLimit: 5,
				UsedCount:  5,
			},
			subtotal: subtotal50,
			wantErr:  ErrExhausted,
		},
		{
			name: "usage under limit passes",
			coupon: &Coupon{
				Code:       "HASROOM",
				Active:     true,
				UsageLimit: 5,
				UsedCount:  4,
			},
			subtotal: subtotal50,
		},
		{
			name: "unlimited usage (limit zero) ignores used count",
			coupon: &Coupon{
				Code:      "UNLIMITED",
				Active:    true,
				UsedCount: 9999,
			},
			subtotal: subtotal50,
		},
		{
			name: "per-user limit reached",
			coupon: &Coupon{
				Code:           "ONCE",
				Active:         true,
				UserUsageLimit: 1,
			},
			subtotal:  subtotal50,
			priorUses: 1,
			wantErr:   ErrUserLimitReached,
		},
		{
			name: "per-user limit with room passes",
			coupon: &Coupon{
				Code:           "TWICE",
				Active:         true,
				UserUsageLimit: 2,
			},
			subtotal:  subtotal50,
			priorUses: 1,
		},
		{
			name: "subtotal below minimum order amount",
			coupon: &Coupon{
				Code:           "BIGSPEND",
				Active:         true,
				MinOrderAmount: decimal.NewFromInt(100),
			},
			subtotal: subtotal50,
			wantErr:  ErrBelowMinimum,
		},
		{
			name: "subtotal equal to minimum passes",
			coupon: &Coupon{
				Code:           "EXACT",
				Active:         true,
				MinOrderAmount: subtotal50,
			},
			subtotal: subtotal50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.coupon, tt.subtotal, fixedNow, tt.priorUses)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_ChecksShortCircuitInOrder(t *testing.T) {
	fixedNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)

	// Every check would fail here; the first one in evaluation order wins.
	c := &Coupon{
		Code:           "DOOMED",
		Active:         false,
		ValidUntil:     &pastTime,
		UsageLimit:     1,
		UsedCount:      1,
		UserUsageLimit: 1,
		MinOrderAmount: decimal.NewFromInt(1000),
	}

	err := Validate(c, decimal.NewFromInt(5), fixedNow, 1)
	assert.ErrorIs(t, err, ErrInactive)

	c.Active = true
	err = Validate(c, decimal.NewFromInt(5), fixedNow, 1)
	assert.ErrorIs(t, err, ErrExpired)

	c.ValidUntil = nil
	err = Validate(c, decimal.NewFromInt(5), fixedNow, 1)
	assert.ErrorIs(t, err, ErrExhausted)

	c.UsedCount = 0
	err = Validate(c, decimal.NewFromInt(5), fixedNow, 1)
	assert.ErrorIs(t, err, ErrUserLimitReached)

	err = Validate(c, decimal.NewFromInt(5), fixedNow, 0)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}
