package composite

import (
	"context"
	"errors"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Publisher fans a message out to every sink. One failing sink does not stop
// the others; the first error is returned.
type Publisher struct {
	sinks []port.Publisher
}

func New(sinks ...port.Publisher) *Publisher {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.Publisher, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Publisher{sinks: out}
}

func (p *Publisher) Len() int { return len(p.sinks) }

func (p *Publisher) Publish(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	var firstErr error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, ch, rate); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Publisher) Close() error {
	var errs []error
	for i := len(p.sinks) - 1; i >= 0; i-- {
		if err := p.sinks[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Publisher = (*Publisher)(nil)
