package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/messaging"
)

// Registry creates messaging adapters from configuration.
type Registry struct {
	adapters []messaging.MessageAdapter
	configs  map[string]messaging.AdapterConfig
}

// NewRegistry creates adapters from a MessagingConfig.
func NewRegistry(config *messaging.MessagingConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]messaging.AdapterConfig)}
	if config == nil {
		return r, nil
	}

	for _, cfg := range config.Adapters {
		if !cfg.Enabled {
			continue
		}

		adapter, err := createAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("create adapter %q: %w", cfg.Name, err)
		}
		r.adapters = append(r.adapters, adapter)
		r.configs[cfg.Name] = cfg
	}

	return r, nil
}

// Adapters returns all active adapters.
func (r *Registry) Adapters() []messaging.MessageAdapter {
	return r.adapters
}

// Handle sends event to every adapter whose filters accept it. All adapters
// are tried; their failures are joined.
func (r *Registry) Handle(ctx context.Context, event events.DomainEvent) error {
	base, ok := events.AsBaseEvent(event)
	if !ok {
		return nil
	}

	var errs []error
	for _, a := range r.adapters {
		if !r.configs[a.Name()].Accepts(base.Type) {
			continue
		}
		if err := a.Send(ctx, base); err != nil {
			errs = append(errs, fmt.Errorf("%s adapter %q: %w", a.Type(), a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Registration returns the HandlerRegistration for the registry.
func (r *Registry) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name:       "MessagingRegistry",
		Handler:    r.Handle,
		EventTypes: []string{events.Wildcard},
	}
}

func createAdapter(cfg messaging.AdapterConfig) (messaging.MessageAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("adapter url is required")
	}
	switch cfg.Type {
	case "webhook":
		return NewWebhookAdapter(cfg), nil
	case "slack":
		return NewSlackAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", cfg.Type)
	}
}
