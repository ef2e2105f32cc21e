package composite

import (
	"context"
	"errors"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Repo writes to every archive and reads from the first one.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) InsertRate(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertRate(ctx, ch, rate); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) RecentRates(ctx context.Context, key string, limit int) ([]domain.Rate, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].RecentRates(ctx, key, limit)
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Repository = (*Repo)(nil)
