package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Publisher prints every rate as one "channel KEY|bid|ask|timestamp" line.
type Publisher struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPublisher(w io.Writer) *Publisher {
	if w == nil {
		w = os.Stdout
	}
	return &Publisher{w: w}
}

func (p *Publisher) Publish(_ context.Context, ch port.Channel, r domain.Rate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%-8s %s\n", ch, domain.FormatMessage(r))
	return err
}

func (p *Publisher) Close() error { return nil }
