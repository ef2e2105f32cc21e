package port

import (
	"context"

	"fxhub/internal/domain"
)

// Channel names the two logical outbound streams.
type Channel string

const (
	ChannelRaw     Channel = "raw"
	ChannelDerived Channel = "derived"
)

// Publisher emits rate messages downstream. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ch Channel, rate domain.Rate) error
	Close() error
}
