package exchange

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/curve"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/limits"
	"github.com/droply/share-exchange/internal/listing"
	"github.com/droply/share-exchange/internal/model"
)

// --- Request types ---

// CreateMarketRequest is the JSON body for market creation. Either a listing
// ticker or explicit content_id + total_shares must be supplied.
type CreateMarketRequest struct {
	Ticker       string          `json:"ticker,omitempty"`
	ContentID    string          `json:"content_id,omitempty"`
	TotalShares  int64           `json:"total_shares,omitempty"`
	InitialPrice decimal.Decimal `json:"initial_price,omitempty"`
	Elasticity   decimal.Decimal `json:"elasticity,omitempty"`
	ClosesAt     time.Time       `json:"closes_at,omitempty"`
}

// BuyRequest is the JSON body for POST /markets/{contentID}/buy.
type BuyRequest struct {
	UserID   string           `json:"user_id"`
	Shares   int64            `json:"shares"`
	MaxPrice *decimal.Decimal `json:"max_price_per_share,omitempty"`
}

// SellRequest is the JSON body for POST /markets/{contentID}/sell.
type SellRequest struct {
	UserID string `json:"user_id"`
	Shares int64  `json:"shares"`
}

// --- HTTP handlers ---

// HandleCreateMarket handles POST /api/v1/markets.
func (s *Service) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	contentID, totalShares, closesAt := req.ContentID, req.TotalShares, req.ClosesAt
	if req.Ticker != "" {
		l, err := listing.ParseTicker(req.Ticker)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		contentID, totalShares, closesAt = l.ContentID, l.TotalShares, l.ClosesAt
	}
	if contentID == "" || totalShares <= 0 {
		writeError(w, "content_id and positive total_shares are required", http.StatusBadRequest)
		return
	}

	m, err := s.CreateMarket(r.Context(), contentID, totalShares, req.InitialPrice, req.Elasticity, closesAt)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketExists) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// HandleListMarkets handles GET /api/v1/markets.
func (s *Service) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// HandleGetMarket handles GET /api/v1/markets/{contentID}.
func (s *Service) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.GetMarket(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleBuy handles POST /api/v1/markets/{contentID}/buy.
func (s *Service) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	receipt, err := s.Buy(r.Context(), req.UserID, chi.URLParam(r, "contentID"), req.Shares, req.MaxPrice)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleSell handles POST /api/v1/markets/{contentID}/sell.
func (s *Service) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	receipt, err := s.Sell(r.Context(), req.UserID, chi.URLParam(r, "contentID"), req.Shares)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleHistory handles GET /api/v1/markets/{contentID}/history?since=RFC3339.
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	points, err := s.GetPriceHistory(r.Context(), chi.URLParam(r, "contentID"), since)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleGetHolding handles GET /api/v1/holdings/{userID}/{contentID}.
func (s *Service) HandleGetHolding(w http.ResponseWriter, r *http.Request) {
	h, err := s.GetHolding(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "contentID"))
	if err != nil {
		if errors.Is(err, ledger.ErrHoldingNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// HandleUserTrades handles GET /api/v1/users/{userID}/trades.
func (s *Service) HandleUserTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.GetUserTrades(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// HandlePortfolio handles GET /api/v1/holdings/{userID}.
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetPortfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// errStatus maps the trade error taxonomy onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, curve.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrMarketClosed),
		errors.Is(err, ErrInsufficientSupply),
		errors.Is(err, ErrInsufficientPosition),
		errors.Is(err, ErrPriceSlippageExceeded),
		errors.Is(err, limits.ErrConcentrationExceeded),
		errors.Is(err, limits.ErrInvestmentLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
