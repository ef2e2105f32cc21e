package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type BreakerSettings struct {
	// MaxFailures consecutive write failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial write.
	OpenTimeout time.Duration
}

// Publisher writes rate messages to one topic per channel. Writes go through
// a circuit breaker so an unreachable cluster fails fast instead of stalling
// the pipeline.
type Publisher struct {
	w       messageWriter
	topics  map[port.Channel]string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func New(brokers []string, topicRaw, topicDerived string, bs BreakerSettings) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topicRaw, topicDerived, bs)
}

func newPublisher(w messageWriter, topicRaw, topicDerived string, bs BreakerSettings) *Publisher {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kafka",
		Timeout: bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		},
	})
	return &Publisher{
		w: w,
		topics: map[port.Channel]string{
			port.ChannelRaw:     topicRaw,
			port.ChannelDerived: topicDerived,
		},
		cb:      cb,
		timeout: 5 * time.Second,
	}
}

func (p *Publisher) Publish(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	topic, ok := p.topics[ch]
	if !ok || topic == "" {
		return fmt.Errorf("no topic for channel %s", ch)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(rate.Key()),
		Value: []byte(domain.FormatMessage(rate)),
		Time:  time.Now(),
	}

	_, err := p.cb.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.w.WriteMessages(wctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kafka %s: %w", topic, err)
	}
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) State() gobreaker.State { return p.cb.State() }

func (p *Publisher) Close() error { return p.w.Close() }

var _ port.Publisher = (*Publisher)(nil)
