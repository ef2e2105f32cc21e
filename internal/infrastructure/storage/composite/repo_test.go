package composite

import (
	"context"
	"errors"
	"testing"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type memRepo struct {
	rates []domain.Rate
	err   error
}

func (m *memRepo) InsertRate(ctx context.Context, ch port.Channel, r domain.Rate) error {
	if m.err != nil {
		return m.err
	}
	m.rates = append(m.rates, r)
	return nil
}

func (m *memRepo) RecentRates(ctx context.Context, key string, limit int) ([]domain.Rate, error) {
	return m.rates, nil
}

func (m *memRepo) Close() error { return nil }

func TestCompositeRepoFanOut(t *testing.T) {
	failing := &memRepo{err: errors.New("pg down")}
	primary := &memRepo{}
	repo := New(primary, nil, failing)

	err := repo.InsertRate(context.Background(), port.ChannelRaw, domain.Rate{Platform: "PF1", Symbol: "USDTRY"})
	if err == nil {
		t.Error("expected error from failing archive")
	}
	if len(primary.rates) != 1 {
		t.Errorf("primary got %d rates", len(primary.rates))
	}

	got, err := repo.RecentRates(context.Background(), "PF1_USDTRY", 10)
	if err != nil || len(got) != 1 {
		t.Errorf("RecentRates = %v, %v", got, err)
	}
	if repo.Len() != 2 {
		t.Errorf("len = %d", repo.Len())
	}
}
