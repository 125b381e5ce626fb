package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `content_id, ticker, total_shares, available_shares,
	current_price::TEXT, elasticity::TEXT, dividend_pool::TEXT,
	total_dividends_paid::TEXT, status, opens_at, closes_at, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var price, k, pool, paid string

	err := row.Scan(&m.ContentID, &m.Ticker, &m.TotalShares, &m.AvailableShares,
		&price, &k, &pool, &paid,
		&m.Status, &m.OpensAt, &m.ClosesAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.CurrentPrice, _ = decimal.NewFromString(price)
	m.Elasticity, _ = decimal.NewFromString(k)
	m.DividendPool, _ = decimal.NewFromString(pool)
	m.TotalDividendsPaid, _ = decimal.NewFromString(paid)
	return &m, nil
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (content_id, ticker, total_shares, available_shares,
		        current_price, elasticity, dividend_pool, total_dividends_paid,
		        status, opens_at, closes_at, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12)`,
		m.ContentID, m.Ticker, m.TotalShares, m.AvailableShares,
		m.CurrentPrice.String(), m.Elasticity.String(),
		m.DividendPool.String(), m.TotalDividendsPaid.String(),
		m.Status, m.OpensAt, m.ClosesAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create market %s: %w", m.ContentID, err)
	}
	return nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, contentID string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE content_id = $1`, contentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, contentID)
		}
		return nil, fmt.Errorf("get market %s: %w", contentID, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// GetMarketForUpdate is GetMarket; Postgres is the primary, nothing to
// bypass. Callers serialize on the market lock, not row locks.
func (s *PostgresStore) GetMarketForUpdate(ctx context.Context, contentID string) (*model.Market, error) {
	return s.GetMarket(ctx, contentID)
}

const holdingColumns = `user_id, content_id, shares_owned,
	avg_buy_price::TEXT, total_invested::TEXT, dividends_earned::TEXT,
	created_at, updated_at`

func scanHolding(row pgx.Row) (*model.Holding, error) {
	var h model.Holding
	var avg, invested, earned string

	err := row.Scan(&h.UserID, &h.ContentID, &h.SharesOwned,
		&avg, &invested, &earned, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}

	h.AvgBuyPrice, _ = decimal.NewFromString(avg)
	h.TotalInvested, _ = decimal.NewFromString(invested)
	h.DividendsEarned, _ = decimal.NewFromString(earned)
	return &h, nil
}

func (s *PostgresStore) GetHolding(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	h, err := scanHolding(s.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 AND content_id = $2`,
		userID, contentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s content %s", ErrHoldingNotFound, userID, contentID)
		}
		return nil, fmt.Errorf("get holding: %w", err)
	}
	return h, nil
}

func (s *PostgresStore) GetHoldingForUpdate(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	return s.GetHolding(ctx, userID, contentID)
}

func (s *PostgresStore) queryHoldings(ctx context.Context, query string, args ...any) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) ListHolders(ctx context.Context, contentID string) ([]model.Holding, error) {
	return s.queryHoldings(ctx,
		`SELECT `+holdingColumns+` FROM holdings
		 WHERE content_id = $1 AND shares_owned > 0 ORDER BY user_id`, contentID)
}

func (s *PostgresStore) ListUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return s.queryHoldings(ctx,
		`SELECT `+holdingColumns+` FROM holdings
		 WHERE user_id = $1 ORDER BY content_id`, userID)
}

func (s *PostgresStore) SumHeldShares(ctx context.Context, contentID string) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(shares_owned), 0) FROM holdings WHERE content_id = $1`,
		contentID).Scan(&sum)
	return sum, err
}

// ApplyTrade commits market update, holding upsert, and trade append in one
// transaction.
func (s *PostgresStore) ApplyTrade(ctx context.Context, commit *TradeCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m, h, t := commit.Market, commit.Holding, commit.Trade

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET available_shares = $2, current_price = $3::NUMERIC
		 WHERE content_id = $1`,
		m.ContentID, m.AvailableShares, m.CurrentPrice.String())
	if err != nil {
		return fmt.Errorf("apply trade: update market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, m.ContentID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO holdings (user_id, content_id, shares_owned, avg_buy_price,
		        total_invested, dividends_earned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)
		 ON CONFLICT (user_id, content_id) DO UPDATE SET
		        shares_owned = EXCLUDED.shares_owned,
		        avg_buy_price = EXCLUDED.avg_buy_price,
		        total_invested = EXCLUDED.total_invested,
		        updated_at = EXCLUDED.updated_at`,
		h.UserID, h.ContentID, h.SharesOwned,
		h.AvgBuyPrice.String(), h.TotalInvested.String(), h.DividendsEarned.String(),
		h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("apply trade: upsert holding: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, content_id, user_id, side, shares, price_per_share, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		t.ID, t.ContentID, t.UserID, t.Side, t.Shares,
		t.Price.String(), t.Cost.String(), t.Timestamp)
	if err != nil {
		return fmt.Errorf("apply trade: insert trade: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) queryTrades(ctx context.Context, query string, args ...any) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var price, cost string
		if err := rows.Scan(&t.ID, &t.ContentID, &t.UserID, &t.Side, &t.Shares,
			&price, &cost, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Price, _ = decimal.NewFromString(price)
		t.Cost, _ = decimal.NewFromString(cost)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) GetTradesByMarket(ctx context.Context, contentID string, since time.Time) ([]model.Trade, error) {
	if since.IsZero() {
		return s.queryTrades(ctx,
			`SELECT id, content_id, user_id, side, shares, price_per_share::TEXT, cost::TEXT, timestamp
			 FROM trades WHERE content_id = $1 ORDER BY timestamp`, contentID)
	}
	return s.queryTrades(ctx,
		`SELECT id, content_id, user_id, side, shares, price_per_share::TEXT, cost::TEXT, timestamp
		 FROM trades WHERE content_id = $1 AND timestamp >= $2 ORDER BY timestamp`, contentID, since)
}

func (s *PostgresStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.queryTrades(ctx,
		`SELECT id, content_id, user_id, side, shares, price_per_share::TEXT, cost::TEXT, timestamp
		 FROM trades WHERE user_id = $1 ORDER BY timestamp`, userID)
}

// ApplyDividend records event + lines and the post-snapshot market state in
// one transaction. A duplicate event ID aborts with ErrEventExists.
func (s *PostgresStore) ApplyDividend(ctx context.Context, commit *DividendCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m, ev := commit.Market, commit.Event

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dividend_events WHERE id = $1)`, ev.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrEventExists, ev.ID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO dividend_events (id, content_id, pool_amount, eligible_shares, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		ev.ID, ev.ContentID, ev.PoolAmount.String(), ev.EligibleShares, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("apply dividend: insert event: %w", err)
	}

	for _, line := range ev.Lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO dividend_lines (event_id, user_id, shares, amount, credited)
			 VALUES ($1, $2, $3, $4::NUMERIC, FALSE)`,
			ev.ID, line.UserID, line.Shares, line.Amount.String())
		if err != nil {
			return fmt.Errorf("apply dividend: insert line: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE markets SET dividend_pool = $2::NUMERIC, total_dividends_paid = $3::NUMERIC
		 WHERE content_id = $1`,
		m.ContentID, m.DividendPool.String(), m.TotalDividendsPaid.String())
	if err != nil {
		return fmt.Errorf("apply dividend: update market: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) CreditLine(ctx context.Context, contentID, eventID, userID string, amount decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE dividend_lines SET credited = TRUE WHERE event_id = $1 AND user_id = $2`,
		eventID, userID)
	if err != nil {
		return fmt.Errorf("credit line: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE holdings SET dividends_earned = dividends_earned + $3::NUMERIC, updated_at = NOW()
		 WHERE user_id = $1 AND content_id = $2`,
		userID, contentID, amount.String())
	if err != nil {
		return fmt.Errorf("credit line: update holding: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetDividendEvent(ctx context.Context, eventID string) (*model.DividendEvent, error) {
	var ev model.DividendEvent
	var pool string

	err := s.pool.QueryRow(ctx,
		`SELECT id, content_id, pool_amount::TEXT, eligible_shares, timestamp
		 FROM dividend_events WHERE id = $1`, eventID).
		Scan(&ev.ID, &ev.ContentID, &pool, &ev.EligibleShares, &ev.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return nil, fmt.Errorf("get dividend event %s: %w", eventID, err)
	}
	ev.PoolAmount, _ = decimal.NewFromString(pool)

	rows, err := s.pool.Query(ctx,
		`SELECT event_id, user_id, shares, amount::TEXT, credited
		 FROM dividend_lines WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line model.DividendLine
		var amount string
		if err := rows.Scan(&line.EventID, &line.UserID, &line.Shares, &amount, &line.Credited); err != nil {
			return nil, err
		}
		line.Amount, _ = decimal.NewFromString(amount)
		ev.Lines = append(ev.Lines, line)
	}
	return &ev, rows.Err()
}

func (s *PostgresStore) ListDividendEvents(ctx context.Context, contentID string) ([]model.DividendEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM dividend_events WHERE content_id = $1 ORDER BY timestamp`, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var events []model.DividendEvent
	for _, id := range ids {
		ev, err := s.GetDividendEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}
