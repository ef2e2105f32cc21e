// Package protocol implements the line-oriented platform feed protocol shared by
// the TCP connector (client side) and the feed server (platform side).
//
//	client -> server   subscribe|PF1_USDTRY
//	                   unsubscribe|PF1_USDTRY
//	server -> client   Subscribed to PF1_USDTRY
//	                   Unsubscribed from PF1_USDTRY
//	                   ERROR|<message>
//	                   PF1_USDTRY|bid:34.80000|ask:35.10000|timestamp:2025-04-01T22:29:23.839Z
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fxhub/internal/domain"
)

const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"

	// UnsubscribeAll cancels every subscription of a client.
	UnsubscribeAll = "all"

	SubscribedPrefix   = "Subscribed to "
	UnsubscribedPrefix = "Unsubscribed from "
	ErrorPrefix        = "ERROR|"

	fieldSep = "|"
)

type Kind int

const (
	KindQuote Kind = iota
	KindConfirmation
	KindError
)

// Message is one parsed server line.
type Message struct {
	Kind Kind
	Text string
	Rate domain.Rate
}

// ParseError reports a server line that matches none of the known shapes.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine classifies a line received from the platform. Quote lines must carry
// the platform's own prefix; the returned rate's symbol is the text after it.
func ParseLine(platform, line string) (Message, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Message{}, &ParseError{Line: line, Reason: "empty line"}
	case strings.HasPrefix(line, SubscribedPrefix), strings.HasPrefix(line, UnsubscribedPrefix):
		return Message{Kind: KindConfirmation, Text: line}, nil
	case strings.HasPrefix(line, ErrorPrefix):
		return Message{Kind: KindError, Text: strings.TrimPrefix(line, ErrorPrefix)}, nil
	}

	parts := strings.Split(line, fieldSep)
	if len(parts) < 4 {
		return Message{}, &ParseError{Line: line, Reason: "unexpected field count"}
	}

	prefix := platform + "_"
	if !strings.HasPrefix(parts[0], prefix) || len(parts[0]) == len(prefix) {
		return Message{}, &ParseError{Line: line, Reason: "unexpected rate name"}
	}
	bidStr, ok1 := cutField(parts[1], "bid:")
	askStr, ok2 := cutField(parts[2], "ask:")
	tsStr, ok3 := cutField(parts[3], "timestamp:")
	if !ok1 || !ok2 || !ok3 {
		return Message{}, &ParseError{Line: line, Reason: "missing bid/ask/timestamp field"}
	}

	bid, err := parseDecimal(bidStr)
	if err != nil {
		return Message{}, &ParseError{Line: line, Reason: "bad bid", Err: err}
	}
	ask, err := parseDecimal(askStr)
	if err != nil {
		return Message{}, &ParseError{Line: line, Reason: "bad ask", Err: err}
	}
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return Message{}, &ParseError{Line: line, Reason: "bad timestamp", Err: err}
	}

	return Message{
		Kind: KindQuote,
		Rate: domain.Rate{
			Platform:  platform,
			Symbol:    parts[0][len(prefix):],
			Bid:       bid,
			Ask:       ask,
			Timestamp: ts.UTC(),
		},
	}, nil
}

// FormatQuote renders a push line for the given feed name.
func FormatQuote(name string, bid, ask float64, ts time.Time) string {
	return fmt.Sprintf("%s|bid:%.5f|ask:%.5f|timestamp:%s", name, bid, ask, domain.FormatTimestamp(ts))
}

func SubscribeCommand(name string) string   { return CmdSubscribe + fieldSep + name }
func UnsubscribeCommand(name string) string { return CmdUnsubscribe + fieldSep + name }

// ParseCommand splits a client command into verb and argument.
func ParseCommand(line string) (cmd, arg string, ok bool) {
	cmd, arg, found := strings.Cut(strings.TrimSpace(line), fieldSep)
	if !found || strings.TrimSpace(arg) == "" {
		return "", "", false
	}
	switch cmd {
	case CmdSubscribe, CmdUnsubscribe:
		return cmd, strings.TrimSpace(arg), true
	}
	return "", "", false
}

func cutField(s, name string) (string, bool) {
	v, ok := strings.CutPrefix(strings.TrimSpace(s), name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// parseDecimal tolerates a decimal comma, which some platform locales emit.
// NaN and infinities are rejected.
func parseDecimal(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
