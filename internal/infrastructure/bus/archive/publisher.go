package archive

import (
	"context"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Publisher archives every published rate in a relational store.
type Publisher struct {
	repo port.Repository
}

func New(repo port.Repository) *Publisher {
	return &Publisher{repo: repo}
}

func (p *Publisher) Publish(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	return p.repo.InsertRate(ctx, ch, rate)
}

// Close leaves the repository open; the container closes it.
func (p *Publisher) Close() error { return nil }

var _ port.Publisher = (*Publisher)(nil)
