package limits

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckBuy_Concentration(t *testing.T) {
	// 25% of a 100-share market.
	l := NewLimiter(d(0.25), decimal.Zero)

	cases := []struct {
		name    string
		owned   int64
		buy     int64
		wantErr error
	}{
		{"well under", 0, 10, nil},
		{"exactly at cap", 15, 10, nil},
		{"one over", 16, 10, ErrConcentrationExceeded},
		{"single oversized buy", 0, 26, ErrConcentrationExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.CheckBuy(100, tc.owned, tc.buy, d(10), decimal.Zero)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("CheckBuy(owned=%d, buy=%d) = %v, want %v", tc.owned, tc.buy, err, tc.wantErr)
			}
		})
	}
}

func TestCheckBuy_InvestmentCap(t *testing.T) {
	l := NewLimiter(decimal.Zero, d(1000))

	if err := l.CheckBuy(100, 0, 10, d(500), d(500)); err != nil {
		t.Errorf("exactly at cap should pass: %v", err)
	}
	if err := l.CheckBuy(100, 0, 10, d(500.01), d(500)); !errors.Is(err, ErrInvestmentLimitExceeded) {
		t.Errorf("over cap should fail, got %v", err)
	}
}

func TestCheckBuy_ZeroDisables(t *testing.T) {
	l := NewLimiter(decimal.Zero, decimal.Zero)

	// A whale buying the entire supply with enormous spend passes when
	// both limits are disabled.
	if err := l.CheckBuy(100, 0, 100, d(1e9), d(1e9)); err != nil {
		t.Errorf("disabled limiter should allow everything: %v", err)
	}
}
