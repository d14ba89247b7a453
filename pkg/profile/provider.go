package profile

import "context"

// Provider loads server profiles from the configuration store.
// Implemented by the embedding application; this package only defines the
// boundary.
//
// Implementations return ErrProfileNotFound (possibly wrapped) when no
// profile exists for the key. Any other error is treated as a transient
// store failure by callers.
type Provider interface {
	ServerProfile(ctx context.Context, serverKey string) (*ServerProfile, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, serverKey string) (*ServerProfile, error)

func (f ProviderFunc) ServerProfile(ctx context.Context, serverKey string) (*ServerProfile, error) {
	return f(ctx, serverKey)
}

// StaticProvider serves profiles from a fixed in-memory map.
// Useful for tests and single-binary deployments with baked-in config.
type StaticProvider map[string]*ServerProfile

func (sp StaticProvider) ServerProfile(_ context.Context, serverKey string) (*ServerProfile, error) {
	p, ok := sp[serverKey]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}
