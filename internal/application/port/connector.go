package port

import (
	"context"
	"errors"
	"time"

	"fxhub/internal/domain"
)

// ErrNotConnected is returned by connector operations that need a live link.
var ErrNotConnected = errors.New("connector not connected")

type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventError
	EventRate
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventError:
		return "error"
	case EventRate:
		return "rate"
	}
	return "unknown"
}

// Event is what a connector sends to the coordinator.
// For EventDisconnect, Err is nil when the disconnect was requested by the caller.
type Event struct {
	Kind     EventKind
	Platform string
	Rate     domain.Rate
	Err      error
	At       time.Time
}

// Connector is one platform feed. Each connector owns exactly one outbound
// event channel, returned by Events, which is never closed.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
	IsConnected() bool
	Events() <-chan Event
}
