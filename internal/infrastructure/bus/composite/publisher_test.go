package composite

import (
	"context"
	"errors"
	"testing"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type countingSink struct {
	n   int
	err error
}

func (s *countingSink) Publish(ctx context.Context, ch port.Channel, r domain.Rate) error {
	s.n++
	return s.err
}

func (s *countingSink) Close() error { return s.err }

func TestCompositeContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	a := &countingSink{err: boom}
	b := &countingSink{}
	p := New(a, nil, b)

	if p.Len() != 2 {
		t.Fatalf("nil sink kept, len=%d", p.Len())
	}
	err := p.Publish(context.Background(), port.ChannelRaw, domain.Rate{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Errorf("calls a=%d b=%d", a.n, b.n)
	}
	if err := p.Close(); !errors.Is(err, boom) {
		t.Errorf("close err = %v", err)
	}
}
