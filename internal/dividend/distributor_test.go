package dividend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/dividend"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/model"
	"github.com/droply/share-exchange/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type distEnv struct {
	store *ledger.MemoryStore
	w     *wallet.MemoryService
	dist  *dividend.Distributor
}

func newDistEnv(t *testing.T) *distEnv {
	t.Helper()
	ms := ledger.NewMemoryStore()
	w := wallet.NewMemoryService()
	return &distEnv{
		store: ms,
		w:     w,
		dist:  dividend.NewDistributor(ms, w, ledger.NewMarketLocks(), nil),
	}
}

// seedMarket creates a 100-share market with the given holders. Holder
// shares are deducted from available supply to keep conservation intact.
func seedMarket(t *testing.T, env *distEnv, contentID string, holders map[string]int64) {
	t.Helper()
	now := time.Now().UTC()

	var held int64
	for _, shares := range holders {
		held += shares
	}

	m := &model.Market{
		ContentID:          contentID,
		TotalShares:        100,
		AvailableShares:    100 - held,
		CurrentPrice:       d(1.00),
		Elasticity:         d(1),
		DividendPool:       decimal.Zero,
		TotalDividendsPaid: decimal.Zero,
		Status:             model.MarketOpen,
		OpensAt:            now.Add(-time.Hour),
		ClosesAt:           now.Add(24 * time.Hour),
		CreatedAt:          now,
	}
	if err := env.store.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("seed market: %v", err)
	}

	for user, shares := range holders {
		commit := &ledger.TradeCommit{
			Market: m,
			Holding: &model.Holding{
				UserID: user, ContentID: contentID,
				SharesOwned: shares, AvgBuyPrice: d(1.00),
				TotalInvested: d(float64(shares)), DividendsEarned: decimal.Zero,
				CreatedAt: now, UpdatedAt: now,
			},
			Trade: &model.Trade{
				ID: contentID + "-" + user, ContentID: contentID, UserID: user,
				Side: model.SideBuy, Shares: shares, Price: d(1.00),
				Cost: d(float64(shares)), Timestamp: now,
			},
		}
		if err := env.store.ApplyTrade(context.Background(), commit); err != nil {
			t.Fatalf("seed holding: %v", err)
		}
	}
}

func sumLines(event *model.DividendEvent) decimal.Decimal {
	total := decimal.Zero
	for _, line := range event.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// --- Distribution tests ---

func TestDistribute_SoleHolderGetsEverything(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 5})

	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EligibleShares != 5 {
		t.Errorf("eligible should be 5, got %d", event.EligibleShares)
	}
	if len(event.Lines) != 1 || !event.Lines[0].Amount.Equal(d(50)) {
		t.Errorf("alice should receive the full 50.00: %+v", event.Lines)
	}
	if !env.w.Balance("alice").Equal(d(50)) {
		t.Errorf("wallet should hold 50.00, got %s", env.w.Balance("alice"))
	}

	h, _ := env.store.GetHolding(context.Background(), "alice", "post1")
	if !h.DividendsEarned.Equal(d(50)) {
		t.Errorf("dividends_earned should be 50.00, got %s", h.DividendsEarned)
	}

	m, _ := env.store.GetMarket(context.Background(), "post1")
	if !m.TotalDividendsPaid.Equal(d(50)) {
		t.Errorf("lifetime total should be 50.00, got %s", m.TotalDividendsPaid)
	}
	if !m.DividendPool.IsZero() {
		t.Errorf("pool should be zeroed, got %s", m.DividendPool)
	}
}

func TestDistribute_ProportionalSplit(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 30, "bob": 10})

	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !env.w.Balance("alice").Equal(d(75)) {
		t.Errorf("alice (30/40) should get 75.00, got %s", env.w.Balance("alice"))
	}
	if !env.w.Balance("bob").Equal(d(25)) {
		t.Errorf("bob (10/40) should get 25.00, got %s", env.w.Balance("bob"))
	}
	if !sumLines(event).Equal(d(100)) {
		t.Errorf("lines must sum to pool exactly, got %s", sumLines(event))
	}
}

// TestDistribute_LargestRemainder uses a split that cannot divide evenly in
// cents: $100 over 3 equal holders → 33.33 each with the extra cent on the
// largest (first-sorted) holder.
func TestDistribute_LargestRemainder(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 1, "bob": 1, "carol": 1})

	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !sumLines(event).Equal(d(100)) {
		t.Fatalf("lines must sum to exactly 100.00, got %s", sumLines(event))
	}

	// Equal positions tie-break on user ID: alice carries the remainder.
	if !event.Lines[0].Amount.Equal(d(33.34)) {
		t.Errorf("largest holder should get 33.34, got %s", event.Lines[0].Amount)
	}
	for _, line := range event.Lines[1:] {
		if !line.Amount.Equal(d(33.33)) {
			t.Errorf("other holders should get 33.33, got %s", line.Amount)
		}
	}
}

func TestDistribute_ExactSum_Fuzz(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"a": 7, "b": 13, "c": 29, "d": 1})

	pools := []float64{0.01, 0.07, 1, 9.99, 123.45, 1000}
	for i, pool := range pools {
		event, err := env.dist.Distribute(context.Background(),
			"ev"+string(rune('a'+i)), "post1", d(pool))
		if err != nil {
			t.Fatalf("pool %v: %v", pool, err)
		}
		if !sumLines(event).Equal(d(pool)) {
			t.Errorf("pool %v: lines sum to %s", pool, sumLines(event))
		}
	}
}

func TestDistribute_NoHolders_CarriesForward(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", nil)

	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.EligibleShares != 0 || len(event.Lines) != 0 {
		t.Fatalf("carry-forward should record a zero-line event, got %+v", event)
	}

	m, _ := env.store.GetMarket(context.Background(), "post1")
	if !m.DividendPool.Equal(d(50)) {
		t.Errorf("pool should carry 50.00 forward, got %s", m.DividendPool)
	}
	if !m.TotalDividendsPaid.IsZero() {
		t.Errorf("nothing was paid, got %s", m.TotalDividendsPaid)
	}
}

// A payout trigger is delivered at-least-once: a client timeout and resubmit
// replays the same event ID. On a holder-less market the replay must not add
// the pool a second time.
func TestDistribute_CarryForwardReplay(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", nil)

	if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50)); err != nil {
		t.Fatalf("first: %v", err)
	}
	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if event == nil || event.EligibleShares != 0 {
		t.Fatalf("replay should return the recorded carry-forward event, got %+v", event)
	}

	m, _ := env.store.GetMarket(context.Background(), "post1")
	if !m.DividendPool.Equal(d(50)) {
		t.Errorf("replayed event must not double-count: pool = %s, want 50", m.DividendPool)
	}
}

func TestDistribute_CarriedPoolJoinsNextPayout(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", nil)

	// First payout lands with no holders.
	if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50)); err != nil {
		t.Fatalf("carry-forward: %v", err)
	}

	// Alice buys in; the next payout includes the carried pool.
	now := time.Now().UTC()
	m, _ := env.store.GetMarket(context.Background(), "post1")
	m.AvailableShares -= 10
	err := env.store.ApplyTrade(context.Background(), &ledger.TradeCommit{
		Market: m,
		Holding: &model.Holding{
			UserID: "alice", ContentID: "post1", SharesOwned: 10,
			AvgBuyPrice: d(1), TotalInvested: d(10), DividendsEarned: decimal.Zero,
			CreatedAt: now, UpdatedAt: now,
		},
		Trade: &model.Trade{
			ID: "t1", ContentID: "post1", UserID: "alice", Side: model.SideBuy,
			Shares: 10, Price: d(1), Cost: d(10), Timestamp: now,
		},
	})
	if err != nil {
		t.Fatalf("buy in: %v", err)
	}

	event, err := env.dist.Distribute(context.Background(), "ev2", "post1", d(25))
	if err != nil {
		t.Fatalf("second distribution: %v", err)
	}
	if !event.PoolAmount.Equal(d(75)) {
		t.Errorf("pool should include the carried 50.00, got %s", event.PoolAmount)
	}
	if !env.w.Balance("alice").Equal(d(75)) {
		t.Errorf("alice should receive 75.00, got %s", env.w.Balance("alice"))
	}
}

func TestDistribute_InvalidAmount(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 5})

	for _, amount := range []float64{0, -10} {
		if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(amount)); !errors.Is(err, dividend.ErrInvalidAmount) {
			t.Errorf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

// --- Idempotency and resume ---

func TestDistribute_IdempotentRetry(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 5})

	if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50)); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Same event ID again: a no-op, not a double payout.
	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(50))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !event.PoolAmount.Equal(d(50)) {
		t.Errorf("retry should return the recorded event, got %s", event.PoolAmount)
	}
	if !env.w.Balance("alice").Equal(d(50)) {
		t.Errorf("retry must not double-pay: balance %s", env.w.Balance("alice"))
	}

	h, _ := env.store.GetHolding(context.Background(), "alice", "post1")
	if !h.DividendsEarned.Equal(d(50)) {
		t.Errorf("dividends_earned must stay 50.00, got %s", h.DividendsEarned)
	}
}

func TestDistribute_PartialFailureThenResume(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 30, "bob": 10})

	// Bob's wallet credit fails on the first pass.
	env.w.FailCredits = map[string]bool{"bob": true}

	event, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(100))
	if !errors.Is(err, dividend.ErrPartialDistribution) {
		t.Fatalf("expected ErrPartialDistribution, got %v", err)
	}
	if !env.w.Balance("alice").Equal(d(75)) {
		t.Errorf("alice should be credited 75.00, got %s", env.w.Balance("alice"))
	}
	if !env.w.Balance("bob").IsZero() {
		t.Errorf("bob should not be credited yet, got %s", env.w.Balance("bob"))
	}

	// The event records which lines are pending.
	stored, err := env.store.GetDividendEvent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("event should be recorded: %v", err)
	}
	for _, line := range stored.Lines {
		wantCredited := line.UserID == "alice"
		if line.Credited != wantCredited {
			t.Errorf("line %s credited=%v, want %v", line.UserID, line.Credited, wantCredited)
		}
	}

	// Wallet recovers; retrying the same event pays only bob.
	env.w.FailCredits = nil
	if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(100)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !env.w.Balance("alice").Equal(d(75)) {
		t.Errorf("alice must not be paid twice, got %s", env.w.Balance("alice"))
	}
	if !env.w.Balance("bob").Equal(d(25)) {
		t.Errorf("bob should now have 25.00, got %s", env.w.Balance("bob"))
	}
}

func TestResume_ExplicitEndpointSemantics(t *testing.T) {
	env := newDistEnv(t)
	seedMarket(t, env, "post1", map[string]int64{"alice": 5})
	env.w.FailCredits = map[string]bool{"alice": true}

	if _, err := env.dist.Distribute(context.Background(), "ev1", "post1", d(10)); !errors.Is(err, dividend.ErrPartialDistribution) {
		t.Fatalf("expected partial, got %v", err)
	}

	env.w.FailCredits = nil
	event, err := env.dist.Resume(context.Background(), "ev1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !event.Lines[0].Credited {
		t.Errorf("line should be credited after resume")
	}
	if !env.w.Balance("alice").Equal(d(10)) {
		t.Errorf("alice should have 10.00, got %s", env.w.Balance("alice"))
	}
}

func TestResume_UnknownEvent(t *testing.T) {
	env := newDistEnv(t)
	if _, err := env.dist.Resume(context.Background(), "missing"); !errors.Is(err, ledger.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}
