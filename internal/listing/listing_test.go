package listing

import (
	"errors"
	"testing"
	"time"
)

func TestParseTicker_Valid(t *testing.T) {
	l, err := ParseTicker("SHX-c81f3ab2-100-20260915")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.ContentID != "c81f3ab2" {
		t.Errorf("content ID: got %s", l.ContentID)
	}
	if l.TotalShares != 100 {
		t.Errorf("total shares: got %d", l.TotalShares)
	}

	// Trading stays open through the whole close date.
	want := time.Date(2026, 9, 15, 23, 59, 59, 0, time.UTC)
	if !l.ClosesAt.Equal(want) {
		t.Errorf("closes at: got %s, want %s", l.ClosesAt, want)
	}
}

func TestParseTicker_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		ticker string
		want   error
	}{
		{"empty", "", ErrInvalidTicker},
		{"wrong prefix", "ABC-c81f3ab2-100-20260915", ErrInvalidTicker},
		{"missing date", "SHX-c81f3ab2-100", ErrInvalidTicker},
		{"uppercase content id", "SHX-C81F3AB2-100-20260915", ErrInvalidTicker},
		{"short date", "SHX-c81f3ab2-100-2026915", ErrInvalidTicker},
		{"impossible date", "SHX-c81f3ab2-100-20261340", ErrInvalidTicker},
		{"zero shares", "SHX-c81f3ab2-0-20260915", ErrInvalidSupply},
		{"trailing junk", "SHX-c81f3ab2-100-20260915x", ErrInvalidTicker},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTicker(tc.ticker); !errors.Is(err, tc.want) {
				t.Errorf("ParseTicker(%q) = %v, want %v", tc.ticker, err, tc.want)
			}
		})
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	closes := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	ticker := Format("post42", 500, closes)
	if ticker != "SHX-post42-500-20261201" {
		t.Fatalf("format: got %s", ticker)
	}

	l, err := ParseTicker(ticker)
	if err != nil {
		t.Fatalf("round trip parse: %v", err)
	}
	if l.ContentID != "post42" || l.TotalShares != 500 {
		t.Errorf("round trip fields: %+v", l)
	}
}
