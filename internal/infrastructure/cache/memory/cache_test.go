package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"fxhub/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var ts = time.Date(2025, 4, 1, 22, 29, 23, 0, time.UTC)

func TestRawRoundTrip(t *testing.T) {
	c := New(time.Hour)
	ctx := context.Background()
	r := domain.Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 34.8, Ask: 35.1, Timestamp: ts}

	if err := c.PutRaw(ctx, r); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}
	got, ok, err := c.GetRaw(ctx, "PF1", "USDTRY")
	if err != nil || !ok {
		t.Fatalf("GetRaw = %v, %v", ok, err)
	}
	if got != r {
		t.Errorf("got %+v, want %+v", got, r)
	}
	if _, ok, _ := c.GetRaw(ctx, "PF2", "USDTRY"); ok {
		t.Error("PF2 should be absent")
	}
}

func TestOverwriteKeepsOneSlot(t *testing.T) {
	c := New(time.Hour)
	ctx := context.Background()
	_ = c.PutRaw(ctx, domain.Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 1, Ask: 2, Timestamp: ts})
	_ = c.PutRaw(ctx, domain.Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 3, Ask: 4, Timestamp: ts})
	_ = c.PutRaw(ctx, domain.Rate{Platform: "PF2", Symbol: "USDTRY", Bid: 5, Ask: 6, Timestamp: ts})
	_ = c.PutRaw(ctx, domain.Rate{Platform: "PF1", Symbol: "EURUSD", Bid: 1, Ask: 1.1, Timestamp: ts})

	all, err := c.GetAllRawForSymbol(ctx, "USDTRY")
	if err != nil {
		t.Fatalf("GetAllRawForSymbol failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(all))
	}
	if all["PF1"].Bid != 3 {
		t.Errorf("PF1 bid = %v, want 3", all["PF1"].Bid)
	}
}

func TestExpiry(t *testing.T) {
	clock := &fakeClock{now: ts}
	c := New(time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	_ = c.PutRaw(ctx, domain.Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 1, Ask: 2, Timestamp: ts})
	_ = c.PutDerived(ctx, domain.Rate{Platform: domain.DerivedPlatform, Symbol: "EURTRY", Bid: 1, Ask: 2, Timestamp: ts})

	clock.Advance(59 * time.Minute)
	if _, ok, _ := c.GetRaw(ctx, "PF1", "USDTRY"); !ok {
		t.Error("raw should still be live")
	}

	clock.Advance(time.Minute)
	if _, ok, _ := c.GetRaw(ctx, "PF1", "USDTRY"); ok {
		t.Error("raw should have expired")
	}
	if _, ok, _ := c.GetDerived(ctx, "EURTRY"); ok {
		t.Error("derived should have expired")
	}
	all, _ := c.GetAllRawForSymbol(ctx, "USDTRY")
	if len(all) != 0 {
		t.Errorf("expired entries returned: %v", all)
	}
}

func TestDerivedNamespaceSeparate(t *testing.T) {
	c := New(time.Hour)
	ctx := context.Background()
	_ = c.PutDerived(ctx, domain.Rate{Platform: domain.DerivedPlatform, Symbol: "USDTRY", Bid: 1, Ask: 2, Timestamp: ts})

	if _, ok, _ := c.GetRaw(ctx, domain.DerivedPlatform, "USDTRY"); ok {
		t.Error("derived write leaked into raw namespace")
	}
	if _, ok, _ := c.GetDerived(ctx, "USDTRY"); !ok {
		t.Error("derived rate missing")
	}
}
