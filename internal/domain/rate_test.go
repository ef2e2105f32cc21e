package domain

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestRateMid(t *testing.T) {
	r := Rate{Bid: 34.80, Ask: 35.10}
	if got := r.Mid(); math.Abs(got-34.95) > 1e-9 {
		t.Errorf("expected mid 34.95, got %v", got)
	}
	if got := (Rate{Bid: 0, Ask: 35}).Mid(); got != 0 {
		t.Errorf("expected 0 for non-positive bid, got %v", got)
	}
}

func TestRateNonFinite(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	for _, r := range []Rate{
		{Bid: nan, Ask: 35.1},
		{Bid: 34.8, Ask: nan},
		{Bid: inf, Ask: inf},
		{Bid: 34.8, Ask: math.Inf(-1)},
	} {
		if got := r.Mid(); got != 0 {
			t.Errorf("%+v: expected mid 0, got %v", r, got)
		}
		if r.Finite() {
			t.Errorf("%+v: expected non-finite", r)
		}
	}
	if !(Rate{Bid: 34.8, Ask: 35.1}).Finite() || !(Rate{}).Finite() {
		t.Error("expected finite")
	}
	if Positive(nan) || Positive(inf) || Positive(0) || !Positive(1e-9) {
		t.Error("unexpected Positive result")
	}
}

func TestRateValid(t *testing.T) {
	ts := time.Now()
	if !(Rate{Platform: "PF1", Symbol: "USDTRY", Timestamp: ts}).Valid() {
		t.Error("expected valid rate")
	}
	for _, r := range []Rate{
		{Symbol: "USDTRY", Timestamp: ts},
		{Platform: "PF1", Timestamp: ts},
		{Platform: "PF1", Symbol: "USDTRY"},
	} {
		if r.Valid() {
			t.Errorf("expected invalid: %+v", r)
		}
	}
}

func TestRateKeyAndMessage(t *testing.T) {
	ts := time.Date(2025, 4, 1, 22, 29, 23, 0, time.UTC)
	raw := Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 34.8, Ask: 35.1, Timestamp: ts}
	if raw.Key() != "PF1_USDTRY" {
		t.Errorf("unexpected raw key %q", raw.Key())
	}
	if got := FormatMessage(raw); got != "PF1_USDTRY|34.80000|35.10000|2025-04-01T22:29:23Z" {
		t.Errorf("unexpected message %q", got)
	}

	derived := Rate{Platform: DerivedPlatform, Symbol: "EURTRY", Bid: 36.2606, Ask: 36.3655, Timestamp: ts}
	if derived.Key() != "EURTRY" {
		t.Errorf("unexpected derived key %q", derived.Key())
	}
	if got := FormatMessage(derived); got != "EURTRY|36.26060|36.36550|2025-04-01T22:29:23Z" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestSplitRawKey(t *testing.T) {
	p, s, ok := SplitRawKey("PF2_EURUSD")
	if !ok || p != "PF2" || s != "EURUSD" {
		t.Errorf("unexpected split %q %q %v", p, s, ok)
	}
	for _, bad := range []string{"USDTRY", "_USDTRY", "PF1_"} {
		if _, _, ok := SplitRawKey(bad); ok {
			t.Errorf("%q: expected failure", bad)
		}
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" usdtry", "EURUSD", "", "USDTRY", "gbpusd "})
	want := []string{"USDTRY", "EURUSD", "GBPUSD"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
