package port

import (
	"context"

	"fxhub/internal/domain"
)

// RateCache stores the latest raw rate per (platform, symbol) and the latest
// derived rate per symbol. Entries expire after the cache TTL and then behave
// as absent. Every operation is atomic per key only.
type RateCache interface {
	PutRaw(ctx context.Context, rate domain.Rate) error
	GetRaw(ctx context.Context, platform, symbol string) (domain.Rate, bool, error)
	// GetAllRawForSymbol returns platform -> rate for every live entry of symbol.
	GetAllRawForSymbol(ctx context.Context, symbol string) (map[string]domain.Rate, error)

	PutDerived(ctx context.Context, rate domain.Rate) error
	GetDerived(ctx context.Context, symbol string) (domain.Rate, bool, error)
}
