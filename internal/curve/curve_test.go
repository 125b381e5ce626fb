package curve

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newEngine(t *testing.T, k, floor float64) *Engine {
	t.Helper()
	e, err := NewEngine(d(k), d(floor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

// --- Constructor tests ---

func TestNewEngine_Valid(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	if !e.K().Equal(d(0.1)) {
		t.Errorf("expected k=0.1, got %s", e.K())
	}
	if !e.Floor().Equal(d(0.01)) {
		t.Errorf("expected floor=0.01, got %s", e.Floor())
	}
}

func TestNewEngine_ZeroK(t *testing.T) {
	_, err := NewEngine(d(0), d(0.01))
	if err != ErrInvalidElasticity {
		t.Errorf("expected ErrInvalidElasticity for k=0, got %v", err)
	}
}

func TestNewEngine_NegativeK(t *testing.T) {
	_, err := NewEngine(d(-0.5), d(0.01))
	if err != ErrInvalidElasticity {
		t.Errorf("expected ErrInvalidElasticity for k=-0.5, got %v", err)
	}
}

func TestNewEngine_ZeroFloorDefaults(t *testing.T) {
	e, err := NewEngine(d(0.1), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Floor().Equal(DefaultFloor) {
		t.Errorf("expected default floor %s, got %s", DefaultFloor, e.Floor())
	}
}

func TestForMarket_OverridesK(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)

	q, err := e.ForMarket(d(1)).PriceBuy(d(1.00), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewPrice.Equal(d(1.10)) {
		t.Errorf("market k=1 should reprice to 1.10, got %s", q.NewPrice)
	}

	// Non-positive k keeps the engine's default.
	q, err = e.ForMarket(decimal.Zero).PriceBuy(d(1.00), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewPrice.Equal(d(1.01)) {
		t.Errorf("zero market k should fall back to k=0.1 → 1.01, got %s", q.NewPrice)
	}
}

// --- Buy tests ---

func TestPriceBuy_ExecutesAtPreTradePrice(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	q, err := e.PriceBuy(d(1.00), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.ExecutionPrice.Equal(d(1.00)) {
		t.Errorf("execution price should be pre-trade price 1.00, got %s", q.ExecutionPrice)
	}
	if !q.Cost.Equal(d(10.00)) {
		t.Errorf("cost should be 10.00, got %s", q.Cost)
	}
}

func TestPriceBuy_WorkedExample(t *testing.T) {
	// 10 of 100 shares at $1.00, k=1 → 1.00 × (1 + 1 × 10/100) = $1.10.
	e := newEngine(t, 1, 0.01)
	q, err := e.PriceBuy(d(1.00), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewPrice.Equal(d(1.10)) {
		t.Errorf("expected new price 1.10, got %s", q.NewPrice)
	}
}

func TestPriceBuy_StrictlyIncreases(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	tests := []struct {
		price  float64
		shares int64
		total  int64
	}{
		{1.00, 1, 100},
		{1.00, 100, 100},
		{0.02, 1, 1000000}, // tiny impact still moves the price
		{55.5, 3, 250},
	}
	for _, tt := range tests {
		q, err := e.PriceBuy(d(tt.price), tt.shares, tt.total)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !q.NewPrice.GreaterThan(d(tt.price)) {
			t.Errorf("buy of %d/%d at %v should raise price, got %s",
				tt.shares, tt.total, tt.price, q.NewPrice)
		}
	}
}

func TestPriceBuy_Deterministic(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	q1, _ := e.PriceBuy(d(2.50), 7, 200)
	q2, _ := e.PriceBuy(d(2.50), 7, 200)
	if !q1.NewPrice.Equal(q2.NewPrice) || !q1.Cost.Equal(q2.Cost) {
		t.Errorf("same pre-state must produce identical quotes: %+v vs %+v", q1, q2)
	}
}

func TestPriceBuy_InvalidQuantity(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	for _, shares := range []int64{0, -5} {
		if _, err := e.PriceBuy(d(1.00), shares, 100); err != ErrInvalidQuantity {
			t.Errorf("shares=%d: expected ErrInvalidQuantity, got %v", shares, err)
		}
	}
}

func TestPriceBuy_InvalidPrice(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	if _, err := e.PriceBuy(d(0), 10, 100); err != ErrInvalidPrice {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

// --- Sell tests ---

func TestPriceSell_StrictlyDecreases(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	tests := []struct {
		price  float64
		shares int64
		total  int64
	}{
		{1.00, 1, 100},
		{1.10, 5, 100},
		{0.50, 10, 1000000},
		{80.0, 40, 500},
	}
	for _, tt := range tests {
		q, err := e.PriceSell(d(tt.price), tt.shares, tt.total)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !q.NewPrice.LessThan(d(tt.price)) {
			t.Errorf("sell of %d/%d at %v should lower price, got %s",
				tt.shares, tt.total, tt.price, q.NewPrice)
		}
	}
}

func TestPriceSell_ClampsAtFloor(t *testing.T) {
	e := newEngine(t, 1, 0.01)
	q, err := e.PriceSell(d(0.011), 100, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewPrice.Equal(d(0.01)) {
		t.Errorf("price should clamp at floor 0.01, got %s", q.NewPrice)
	}

	// At the floor, a sell no longer moves the price.
	q, err = e.PriceSell(d(0.01), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewPrice.Equal(d(0.01)) {
		t.Errorf("price at floor should stay at floor, got %s", q.NewPrice)
	}
}

func TestPriceSell_ExecutesAtPreTradePrice(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)
	q, err := e.PriceSell(d(1.10), 5, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.ExecutionPrice.Equal(d(1.10)) {
		t.Errorf("execution price should be 1.10, got %s", q.ExecutionPrice)
	}
	if !q.Cost.Equal(d(5.50)) {
		t.Errorf("proceeds should be 5.50, got %s", q.Cost)
	}
}

// --- Round trip ---

func TestBuyThenSell_PriceBelowPeak(t *testing.T) {
	e := newEngine(t, 1, 0.01)

	buy, _ := e.PriceBuy(d(1.00), 10, 100)   // → 1.10
	sell, _ := e.PriceSell(buy.NewPrice, 5, 100) // → below 1.10

	if !sell.NewPrice.LessThan(buy.NewPrice) {
		t.Errorf("sell should move price below %s, got %s", buy.NewPrice, sell.NewPrice)
	}
	if !sell.ExecutionPrice.Equal(buy.NewPrice) {
		t.Errorf("sell should fill at pre-trade price %s, got %s", buy.NewPrice, sell.ExecutionPrice)
	}
}

func TestImpact_ProportionalToFraction(t *testing.T) {
	e := newEngine(t, 0.1, 0.01)

	small, _ := e.PriceBuy(d(1.00), 1, 100)
	large, _ := e.PriceBuy(d(1.00), 10, 100)

	smallMove := small.NewPrice.Sub(d(1.00))
	largeMove := large.NewPrice.Sub(d(1.00))

	// Ten times the shares → ten times the movement.
	if !largeMove.Equal(smallMove.Mul(decimal.NewFromInt(10))) {
		t.Errorf("impact should scale linearly: 1 share moved %s, 10 shares moved %s",
			smallMove, largeMove)
	}
}
