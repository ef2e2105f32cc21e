package connector

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"fxhub/internal/application/port"
	"fxhub/internal/infrastructure/config"
	"fxhub/internal/infrastructure/connector/rest"
	"fxhub/internal/infrastructure/connector/tcp"
)

// Factory builds a connector from its platform config.
type Factory func(p config.Platform) port.Connector

// Registry maps a platform type to its connector factory.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the tcp and rest connectors.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(config.PlatformTCP, func(p config.Platform) port.Connector {
		return tcp.New(p.Name, p.Addr(), tcp.Options{})
	})
	r.Register(config.PlatformREST, func(p config.Platform) port.Connector {
		return rest.New(p.Name, p.BaseURL, rest.Options{
			PollInterval: time.Duration(p.PollIntervalMs) * time.Millisecond,
			Timeout:      time.Duration(p.TimeoutMs) * time.Millisecond,
			Concurrency:  p.Concurrency,
		})
	})
	return r
}

func (r *Registry) Register(kind string, factory Factory) {
	if factory == nil {
		log.Warn().Str("type", kind).Msg("invalid connector factory")
		return
	}
	if _, exists := r.factories[kind]; exists {
		log.Warn().Str("type", kind).Msg("connector factory already registered, overwriting")
	}
	r.factories[kind] = factory
	log.Debug().Str("type", kind).Msg("connector factory registered")
}

func (r *Registry) Get(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds lists the registered platform types.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates one connector per platform.
func (r *Registry) Build(platforms []config.Platform) ([]port.Connector, error) {
	out := make([]port.Connector, 0, len(platforms))
	for _, p := range platforms {
		f, ok := r.Get(p.Type)
		if !ok {
			return nil, fmt.Errorf("platform %s: no connector for type %q", p.Name, p.Type)
		}
		out = append(out, f(p))
		log.Info().Str("platform", p.Name).Str("type", p.Type).Msg("connector created")
	}
	return out, nil
}
