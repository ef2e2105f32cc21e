package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DerivedPlatform marks rates produced by the calculation engine.
const DerivedPlatform = "CALC"

// Rate is a single bid/ask quote. Timestamp is the source's time, never the receiver's.
type Rate struct {
	Platform  string    `json:"platform"`
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the identifying fields are present.
func (r Rate) Valid() bool {
	return strings.TrimSpace(r.Platform) != "" &&
		strings.TrimSpace(r.Symbol) != "" &&
		!r.Timestamp.IsZero()
}

// Mid returns (bid+ask)/2, or 0 when either side is not a positive finite number.
func (r Rate) Mid() float64 {
	if !Positive(r.Bid) || !Positive(r.Ask) {
		return 0
	}
	return (r.Bid + r.Ask) / 2.0
}

// Finite reports whether bid and ask are both real numbers (not NaN or ±Inf).
func (r Rate) Finite() bool {
	return !math.IsNaN(r.Bid) && !math.IsInf(r.Bid, 0) && !math.IsNaN(r.Ask) && !math.IsInf(r.Ask, 0)
}

// Positive reports whether v is a finite number above zero. NaN fails.
func Positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func (r Rate) IsDerived() bool {
	return r.Platform == DerivedPlatform
}

// Key is the bus key: PLATFORM_SYMBOL for raw rates, SYMBOL for derived ones.
func (r Rate) Key() string {
	if r.IsDerived() {
		return r.Symbol
	}
	return RawKey(r.Platform, r.Symbol)
}

func (r Rate) String() string {
	return fmt.Sprintf("%s bid=%.5f ask=%.5f ts=%s", r.Key(), r.Bid, r.Ask, FormatTimestamp(r.Timestamp))
}

// RawKey joins platform and symbol the way platforms name their feeds, e.g. PF1_USDTRY.
func RawKey(platform, symbol string) string {
	return platform + "_" + symbol
}

// SplitRawKey is the inverse of RawKey. The platform part ends at the first underscore.
func SplitRawKey(key string) (platform, symbol string, ok bool) {
	i := strings.IndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// FormatTimestamp renders an ISO-8601 UTC instant.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatMessage renders the outbound bus payload: KEY|bid|ask|timestamp.
func FormatMessage(r Rate) string {
	return fmt.Sprintf("%s|%.5f|%.5f|%s", r.Key(), r.Bid, r.Ask, FormatTimestamp(r.Timestamp))
}
