package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Publisher sends each message with PUBLISH on the channel's pub/sub name
// and, when a stream is configured, appends it with XADD for late readers.
type Publisher struct {
	rdb      *redis.Client
	channels map[port.Channel]string
	stream   string
	maxLen   int64
}

func New(rdb *redis.Client, channelRaw, channelDerived, stream string) *Publisher {
	return &Publisher{
		rdb: rdb,
		channels: map[port.Channel]string{
			port.ChannelRaw:     channelRaw,
			port.ChannelDerived: channelDerived,
		},
		stream: stream,
		maxLen: 100000,
	}
}

func (p *Publisher) Publish(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	name, ok := p.channels[ch]
	if !ok || name == "" {
		return fmt.Errorf("no redis channel for %s", ch)
	}
	msg := domain.FormatMessage(rate)

	if p.stream != "" {
		err := p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]any{
				"channel":   string(ch),
				"key":       rate.Key(),
				"bid":       rate.Bid,
				"ask":       rate.Ask,
				"timestamp": domain.FormatTimestamp(rate.Timestamp),
				"message":   msg,
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", p.stream, err)
		}
	}

	if err := p.rdb.Publish(ctx, name, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (p *Publisher) Close() error { return nil }

var _ port.Publisher = (*Publisher)(nil)
