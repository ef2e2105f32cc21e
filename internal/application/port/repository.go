package port

import (
	"context"

	"fxhub/internal/domain"
)

// Repository archives published rates.
type Repository interface {
	InsertRate(ctx context.Context, ch Channel, rate domain.Rate) error
	// RecentRates returns up to limit archived rates for key, newest first.
	// key is PLATFORM_SYMBOL for raw rates and SYMBOL for derived ones.
	RecentRates(ctx context.Context, key string, limit int) ([]domain.Rate, error)
	Close() error
}
