package model

import "github.com/taehoon/flowkit/internal/config"

// BackendFactory creates a Backend for a given provider name and config.
type BackendFactory func(providerName string, cfg config.ProviderConfig) Backend

var factories = map[string]BackendFactory{}

// RegisterBackend registers a factory for the given provider type
// string. Called from init() in each backend implementation file.
func RegisterBackend(typeName string, factory BackendFactory) {
	factories[typeName] = factory
}

// BuildBackend looks up a registered factory for cfg.Type and calls it.
// Returns (nil, false) if the type is unknown.
func BuildBackend(providerName string, cfg config.ProviderConfig) (Backend, bool) {
	if factory, ok := factories[cfg.Type]; ok {
		return factory(providerName, cfg), true
	}
	return nil, false
}

// BuildAll constructs every backend declared in the provider config,
// keyed by provider name.
func BuildAll(providers map[string]config.ProviderConfig) map[string]Backend {
	backends := make(map[string]Backend, len(providers))
	for name, cfg := range providers {
		if b, ok := BuildBackend(name, cfg); ok {
			backends[name] = b
		}
	}
	return backends
}
