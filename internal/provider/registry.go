// Package provider holds the startup-time Provider registry. The engine's
// wiring registers a factory for each concrete Provider (localdir,
// restphotos) under its key, then looks one up by the configured provider_key (spec §4.2 —
// "a deployment uses exactly one Provider at a time").
package provider

import "photoframe-sync/internal/domain"

// Factory builds a Provider from its configuration section.
type Factory func() (domain.Provider, error)

var registry = map[string]Factory{}

// Register adds a named Provider factory. Called from the engine's
// provider wiring (engine.RegisterProviders).
func Register(key string, f Factory) {
	registry[key] = f
}

// Build looks up and invokes the factory registered under key.
func Build(key string) (domain.Provider, error) {
	f, ok := registry[key]
	if !ok {
		return nil, domain.Permanentf("provider: no factory registered for %q", key)
	}
	return f()
}

// Keys lists the registered provider keys, in no particular order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
