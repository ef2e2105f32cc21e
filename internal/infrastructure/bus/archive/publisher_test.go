package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type recordingRepo struct {
	channels []port.Channel
	keys     []string
	err      error
}

func (r *recordingRepo) InsertRate(_ context.Context, ch port.Channel, rate domain.Rate) error {
	if r.err != nil {
		return r.err
	}
	r.channels = append(r.channels, ch)
	r.keys = append(r.keys, rate.Key())
	return nil
}

func (r *recordingRepo) RecentRates(context.Context, string, int) ([]domain.Rate, error) {
	return nil, nil
}

func (r *recordingRepo) Close() error { return nil }

func TestPublisherInsertsEveryRate(t *testing.T) {
	repo := &recordingRepo{}
	p := New(repo)
	ctx := context.Background()
	ts := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	if err := p.Publish(ctx, port.ChannelRaw, domain.Rate{Platform: "PF1", Symbol: "USDTRY", Bid: 34.8, Ask: 35.1, Timestamp: ts}); err != nil {
		t.Fatalf("Publish raw failed: %v", err)
	}
	if err := p.Publish(ctx, port.ChannelDerived, domain.Rate{Platform: domain.DerivedPlatform, Symbol: "EURTRY", Bid: 36.2, Ask: 36.3, Timestamp: ts}); err != nil {
		t.Fatalf("Publish derived failed: %v", err)
	}

	if len(repo.keys) != 2 || repo.keys[0] != "PF1_USDTRY" || repo.keys[1] != "EURTRY" {
		t.Errorf("unexpected keys %v", repo.keys)
	}
	if repo.channels[0] != port.ChannelRaw || repo.channels[1] != port.ChannelDerived {
		t.Errorf("unexpected channels %v", repo.channels)
	}
}

func TestPublisherReturnsRepoError(t *testing.T) {
	want := errors.New("disk full")
	p := New(&recordingRepo{err: want})

	err := p.Publish(context.Background(), port.ChannelRaw, domain.Rate{Platform: "PF1", Symbol: "USDTRY", Timestamp: time.Now()})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
