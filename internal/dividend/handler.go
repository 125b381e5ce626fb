package dividend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/exchange"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/model"
)

// DistributeRequest is the JSON body for the inbound HTTP payout trigger,
// POST /api/v1/markets/{contentID}/dividends. EventID is the trigger's
// idempotency key; one is generated when absent.
type DistributeRequest struct {
	EventID    string          `json:"event_id,omitempty"`
	PoolAmount decimal.Decimal `json:"pool_amount"`
}

// HandleDistribute handles POST /api/v1/markets/{contentID}/dividends.
func (d *Distributor) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.New().String()
	}

	event, err := d.Distribute(r.Context(), req.EventID, chi.URLParam(r, "contentID"), req.PoolAmount)
	switch {
	case err == nil && event.EligibleShares == 0:
		// No eligible holders: pool carried forward.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "carried_forward",
			"event":  event,
		})
	case err == nil:
		writeJSON(w, http.StatusOK, event)
	case errors.Is(err, ErrPartialDistribution):
		// The event is recorded; the client retries with the same event_id.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "partial",
			"error":  err.Error(),
			"event":  event,
		})
	case errors.Is(err, ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exchange.ErrMarketNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleListEvents handles GET /api/v1/markets/{contentID}/dividends.
func (d *Distributor) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := d.store.ListDividendEvents(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, "failed to list dividend events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.DividendEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
