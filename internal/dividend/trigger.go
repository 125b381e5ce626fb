package dividend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PayoutSignal is the inbound sponsorship/payout trigger message published
// on the Redis payout channel by the platform.
type PayoutSignal struct {
	EventID    string          `json:"event_id"`
	ContentID  string          `json:"content_id"`
	PoolAmount decimal.Decimal `json:"pool_amount"`
}

// Trigger subscribes to the Redis payout channel and invokes the
// distributor for each signal. Partial distributions are retried on the
// next delivery of the same event ID; the engine itself never re-fires.
type Trigger struct {
	rdb         *redis.Client
	distributor *Distributor
	channel     string
}

// NewTrigger creates a payout trigger listener.
func NewTrigger(rdb *redis.Client, d *Distributor, channel string) *Trigger {
	if channel == "" {
		channel = "payouts"
	}
	return &Trigger{rdb: rdb, distributor: d, channel: channel}
}

// Run subscribes and processes signals until the context is cancelled.
// Must be called in a goroutine.
func (t *Trigger) Run(ctx context.Context) error {
	pubsub := t.rdb.Subscribe(ctx, t.channel)
	defer pubsub.Close()

	// Verify the subscription is established.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	slog.Info("payout trigger listening", "channel", t.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			t.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (t *Trigger) handle(ctx context.Context, payload []byte) {
	var sig PayoutSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		slog.Error("malformed payout signal", "err", err)
		return
	}
	if sig.EventID == "" || sig.ContentID == "" {
		slog.Error("payout signal missing event_id or content_id")
		return
	}

	_, err := t.distributor.Distribute(ctx, sig.EventID, sig.ContentID, sig.PoolAmount)
	switch {
	case err == nil:
	case errors.Is(err, ErrPartialDistribution):
		slog.Warn("payout partially distributed", "event", sig.EventID, "err", err)
	default:
		slog.Error("payout distribution failed", "event", sig.EventID, "err", err)
	}
}
