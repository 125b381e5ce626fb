// Package dividend implements proportional payout of sponsorship pools to
// current shareholders. Distribution is triggered by an external signal
// (HTTP or the Redis payout channel); the business rules deciding when a
// payout fires live outside this service.
//
// All monetary values use shopspring/decimal — never float64 for money.
package dividend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/exchange"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/metrics"
	"github.com/droply/share-exchange/internal/model"
	"github.com/droply/share-exchange/internal/wallet"
)

var (
	// ErrInvalidAmount is returned when the pool amount is not positive.
	ErrInvalidAmount = errors.New("dividend: pool amount must be positive")

	// ErrPartialDistribution is returned when some holders could not be
	// credited. The event is recorded line by line, so retrying the same
	// event ID resumes and skips holders already paid.
	ErrPartialDistribution = errors.New("dividend: some holders not yet credited, retry is safe")
)

// moneyScale is the cents precision every payout line is floored to.
const moneyScale int32 = 2

// Distributor splits dividend pools across holders in proportion to
// ownership. It shares the per-market lock arena with the trade processor:
// a distribution snapshots eligible shares and must not race a trade.
type Distributor struct {
	store  ledger.Store
	wallet wallet.Service
	locks  *ledger.MarketLocks
	hub    *exchange.Hub // optional
	now    func() time.Time
}

// NewDistributor creates a distributor. hub may be nil.
func NewDistributor(st ledger.Store, w wallet.Service, locks *ledger.MarketLocks, hub *exchange.Hub) *Distributor {
	return &Distributor{
		store:  st,
		wallet: w,
		locks:  locks,
		hub:    hub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Distribute splits poolAmount (plus any carried-forward pool on the market)
// across current holders. The eventID makes the operation idempotent:
// re-invoking with an ID that was already recorded is a no-op that resumes
// any uncredited lines instead of paying twice.
//
// With no eligible holders the amount carries forward into the market's
// dividend pool, recorded as a zero-line event under the same eventID so a
// replayed trigger cannot add the pool twice.
func (d *Distributor) Distribute(ctx context.Context, eventID, contentID string, poolAmount decimal.Decimal) (*model.DividendEvent, error) {
	if poolAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	unlock := d.locks.Lock(contentID)
	defer unlock()

	// Idempotent retry: an already-recorded event is resumed, never re-split.
	if existing, err := d.store.GetDividendEvent(ctx, eventID); err == nil {
		return existing, d.creditLines(ctx, existing)
	} else if !errors.Is(err, ledger.ErrEventNotFound) {
		return nil, err
	}

	m, err := d.store.GetMarketForUpdate(ctx, contentID)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, fmt.Errorf("%w: %s", exchange.ErrMarketNotFound, contentID)
		}
		return nil, err
	}

	total := poolAmount.Add(m.DividendPool).Round(moneyScale)
	eligible := m.TotalShares - m.AvailableShares

	if eligible == 0 {
		// No holders: the pool carries forward rather than being lost. A
		// zero-line event is still recorded under this eventID, otherwise a
		// replayed trigger would add the pool again.
		m.DividendPool = total
		event := &model.DividendEvent{
			ID:             eventID,
			ContentID:      contentID,
			PoolAmount:     total,
			EligibleShares: 0,
			Timestamp:      d.now(),
		}
		if err := d.store.ApplyDividend(ctx, &ledger.DividendCommit{Market: m, Event: event}); err != nil {
			if errors.Is(err, ledger.ErrEventExists) {
				return d.store.GetDividendEvent(ctx, eventID)
			}
			return nil, err
		}
		slog.Info("dividend carried forward, no eligible holders",
			"content", contentID, "event", eventID, "pool", total.String())
		return event, nil
	}

	holders, err := d.store.ListHolders(ctx, contentID)
	if err != nil {
		return nil, err
	}

	event := &model.DividendEvent{
		ID:             eventID,
		ContentID:      contentID,
		PoolAmount:     total,
		EligibleShares: eligible,
		Lines:          split(eventID, total, eligible, holders),
		Timestamp:      d.now(),
	}

	m.DividendPool = decimal.Zero
	m.TotalDividendsPaid = m.TotalDividendsPaid.Add(total)

	if err := d.store.ApplyDividend(ctx, &ledger.DividendCommit{Market: m, Event: event}); err != nil {
		if errors.Is(err, ledger.ErrEventExists) {
			// Lost a race against a concurrent retry of the same event.
			existing, gerr := d.store.GetDividendEvent(ctx, eventID)
			if gerr != nil {
				return nil, gerr
			}
			return existing, d.creditLines(ctx, existing)
		}
		return nil, err
	}

	slog.Info("dividend distribution recorded",
		"event", eventID,
		"content", contentID,
		"pool", total.String(),
		"eligible_shares", eligible,
		"holders", len(event.Lines),
	)

	if d.hub != nil {
		d.hub.Broadcast(exchange.TickMessage{
			Type:      "dividend_distributed",
			ContentID: contentID,
			Amount:    total.String(),
		})
	}

	return event, d.creditLines(ctx, event)
}

// Resume retries the wallet credits for an event's uncredited lines.
func (d *Distributor) Resume(ctx context.Context, eventID string) (*model.DividendEvent, error) {
	event, err := d.store.GetDividendEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	unlock := d.locks.Lock(event.ContentID)
	defer unlock()

	return event, d.creditLines(ctx, event)
}

// creditLines pays every line that is not yet credited. Each successful
// wallet credit is durably marked before moving on, so a crash or wallet
// outage partway through never double-pays on retry.
func (d *Distributor) creditLines(ctx context.Context, event *model.DividendEvent) error {
	var failed int
	for i := range event.Lines {
		line := &event.Lines[i]
		if line.Credited {
			continue
		}
		if err := d.wallet.Credit(ctx, line.UserID, line.Amount); err != nil {
			slog.Error("dividend credit failed",
				"event", event.ID, "user", line.UserID, "amount", line.Amount.String(), "err", err)
			failed++
			continue
		}
		if err := d.store.CreditLine(ctx, event.ContentID, event.ID, line.UserID, line.Amount); err != nil {
			return err
		}
		line.Credited = true
		metrics.DividendsPaid.Add(lineFloat(line.Amount))
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d lines pending", ErrPartialDistribution, failed, len(event.Lines))
	}
	return nil
}

// split computes per-holder payout lines with largest-remainder rounding:
// every line is floored to cents and the leftover goes to the largest
// holder, so Σ lines == pool exactly. Money is never evaporated or invented
// through rounding.
func split(eventID string, total decimal.Decimal, eligible int64, holders []model.Holding) []model.DividendLine {
	// Deterministic order: largest position first, user ID as tie-break.
	sorted := make([]model.Holding, len(holders))
	copy(sorted, holders)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SharesOwned != sorted[j].SharesOwned {
			return sorted[i].SharesOwned > sorted[j].SharesOwned
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	lines := make([]model.DividendLine, 0, len(sorted))
	paid := decimal.Zero
	eligibleDec := decimal.NewFromInt(eligible)

	for _, h := range sorted {
		amount := total.Mul(decimal.NewFromInt(h.SharesOwned)).
			Div(eligibleDec).
			RoundDown(moneyScale)
		paid = paid.Add(amount)
		lines = append(lines, model.DividendLine{
			EventID: eventID,
			UserID:  h.UserID,
			Shares:  h.SharesOwned,
			Amount:  amount,
		})
	}

	// Largest-remainder rule: rounding leftover goes to the largest holder.
	if remainder := total.Sub(paid); remainder.IsPositive() && len(lines) > 0 {
		lines[0].Amount = lines[0].Amount.Add(remainder)
	}
	return lines
}

func lineFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
