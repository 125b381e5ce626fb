// Package listing handles share-listing ticker parsing and validation.
// The platform assigns every listed content item a ticker encoding the
// content ID, the fixed share supply, and the trading-window close date.
package listing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// tickerRegex matches: SHX-{contentID}-{totalShares}-{YYYYMMDD}
// Example: SHX-c81f3ab2-100-20260915
var tickerRegex = regexp.MustCompile(
	`^SHX-([0-9a-z]+)-([0-9]+)-(\d{8})$`,
)

var (
	ErrInvalidTicker = errors.New("listing: invalid ticker format")
	ErrInvalidSupply = errors.New("listing: total shares must be positive")
)

// Listing represents a parsed content share listing.
type Listing struct {
	Ticker      string    `json:"ticker"`
	ContentID   string    `json:"content_id"`
	TotalShares int64     `json:"total_shares"`
	ClosesAt    time.Time `json:"closes_at"`
}

// ParseTicker parses and validates a listing ticker string.
// Format: SHX-{contentID}-{totalShares}-{YYYYMMDD}
func ParseTicker(ticker string) (*Listing, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected SHX-{content}-{shares}-{YYYYMMDD})",
			ErrInvalidTicker, ticker)
	}

	totalShares, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil || totalShares <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSupply, matches[2])
	}

	closesAt, err := time.Parse("20060102", matches[3])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, matches[3])
	}

	return &Listing{
		Ticker:      ticker,
		ContentID:   matches[1],
		TotalShares: totalShares,
		// Trading stays open through the end of the close date.
		ClosesAt: closesAt.Add(24*time.Hour - time.Second),
	}, nil
}

// Format builds the canonical ticker for a content listing.
func Format(contentID string, totalShares int64, closesAt time.Time) string {
	return fmt.Sprintf("SHX-%s-%d-%s", contentID, totalShares, closesAt.Format("20060102"))
}
