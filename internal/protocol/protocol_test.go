package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestParseLineQuote(t *testing.T) {
	msg, err := ParseLine("PF1", "PF1_USDTRY|bid:33.98895|ask:35.00697|timestamp:2025-04-01T22:29:23.839844300Z")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if msg.Kind != KindQuote {
		t.Fatalf("expected quote, got kind %d", msg.Kind)
	}
	r := msg.Rate
	if r.Platform != "PF1" || r.Symbol != "USDTRY" {
		t.Errorf("unexpected identity %s/%s", r.Platform, r.Symbol)
	}
	if r.Bid != 33.98895 || r.Ask != 35.00697 {
		t.Errorf("unexpected bid/ask %v/%v", r.Bid, r.Ask)
	}
	want := time.Date(2025, 4, 1, 22, 29, 23, 839844300, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, r.Timestamp)
	}
}

func TestParseLineDecimalComma(t *testing.T) {
	msg, err := ParseLine("PF1", "PF1_EURUSD|bid:1,0370|ask:1,0410|timestamp:2025-04-01T10:00:00Z")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if msg.Rate.Bid != 1.037 || msg.Rate.Ask != 1.041 {
		t.Errorf("unexpected bid/ask %v/%v", msg.Rate.Bid, msg.Rate.Ask)
	}
}

func TestParseLineInformational(t *testing.T) {
	cases := map[string]Kind{
		"Subscribed to PF1_USDTRY":     KindConfirmation,
		"Unsubscribed from PF1_USDTRY": KindConfirmation,
		"ERROR|Rate data not found":    KindError,
	}
	for line, kind := range cases {
		msg, err := ParseLine("PF1", line)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", line, err)
		}
		if msg.Kind != kind {
			t.Errorf("%q: expected kind %d, got %d", line, kind, msg.Kind)
		}
	}

	msg, _ := ParseLine("PF1", "ERROR|Rate data not found")
	if msg.Text != "Rate data not found" {
		t.Errorf("unexpected error text %q", msg.Text)
	}
}

func TestParseLineMalformed(t *testing.T) {
	lines := []string{
		"",
		"hello world",
		"PF2_USDTRY|bid:1|ask:2|timestamp:2025-04-01T10:00:00Z",
		"PF1_|bid:1|ask:2|timestamp:2025-04-01T10:00:00Z",
		"PF1_USDTRY|bid:x|ask:2|timestamp:2025-04-01T10:00:00Z",
		"PF1_USDTRY|bid:1|ask:2|timestamp:yesterday",
		"PF1_USDTRY|price:1|ask:2|timestamp:2025-04-01T10:00:00Z",
	}
	for _, line := range lines {
		_, err := ParseLine("PF1", line)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%q: expected *ParseError, got %v", line, err)
		}
	}
}

func TestParseLineNonFinite(t *testing.T) {
	lines := []string{
		"PF1_USDTRY|bid:NaN|ask:NaN|timestamp:2025-04-01T10:00:00Z",
		"PF1_USDTRY|bid:34.8|ask:Inf|timestamp:2025-04-01T10:00:00Z",
		"PF1_USDTRY|bid:-inf|ask:35.1|timestamp:2025-04-01T10:00:00Z",
		"PF1_USDTRY|bid:infinity|ask:35.1|timestamp:2025-04-01T10:00:00Z",
	}
	for _, line := range lines {
		_, err := ParseLine("PF1", line)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%q: expected *ParseError, got %v", line, err)
		}
	}
}

func TestFormatQuoteRoundTrip(t *testing.T) {
	ts := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	line := FormatQuote("PF1_GBPUSD", 1.259, 1.2615, ts)
	if line != "PF1_GBPUSD|bid:1.25900|ask:1.26150|timestamp:2025-04-01T10:00:00Z" {
		t.Fatalf("unexpected line %q", line)
	}
	msg, err := ParseLine("PF1", line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if msg.Rate.Symbol != "GBPUSD" || !msg.Rate.Timestamp.Equal(ts) {
		t.Errorf("round trip mismatch: %+v", msg.Rate)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, arg, ok := ParseCommand("subscribe|PF1_USDTRY\r")
	if !ok || cmd != CmdSubscribe || arg != "PF1_USDTRY" {
		t.Errorf("unexpected parse %q %q %v", cmd, arg, ok)
	}
	cmd, arg, ok = ParseCommand(UnsubscribeCommand(UnsubscribeAll))
	if !ok || cmd != CmdUnsubscribe || arg != "all" {
		t.Errorf("unexpected parse %q %q %v", cmd, arg, ok)
	}
	for _, bad := range []string{"subscribe", "subscribe|", "publish|PF1_USDTRY", ""} {
		if _, _, ok := ParseCommand(bad); ok {
			t.Errorf("%q: expected rejection", bad)
		}
	}
}
