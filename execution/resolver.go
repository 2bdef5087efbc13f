package execution

import (
	"github.com/deep-rent/ormconf/resolve"
)

// keyed resolves a factory for requests whose Key matches the registered
// provider and server names. An empty name matches any value.
type keyed[T any] struct {
	svc      *resolve.Service[T]
	factory  T
	provider string
	server   string
}

// NewStrategyResolver returns a resolver that yields factory for the given
// provider and, if serverName is not empty, only for that server.
func NewStrategyResolver(
	providerInvariantName, serverName string,
	factory StrategyFactory,
) resolve.Resolver {
	return &keyed[StrategyFactory]{
		svc:      StrategyService,
		factory:  factory,
		provider: providerInvariantName,
		server:   serverName,
	}
}

// NewTransactionHandlerResolver returns a resolver that yields factory for
// matching provider and server names. Empty names match everything.
func NewTransactionHandlerResolver(
	providerInvariantName, serverName string,
	factory TransactionHandlerFactory,
) resolve.Resolver {
	return &keyed[TransactionHandlerFactory]{
		svc:      TransactionHandlerService,
		factory:  factory,
		provider: providerInvariantName,
		server:   serverName,
	}
}

// GetService implements resolve.Resolver. It fails with a
// *resolve.KeyError if the key is not a Key.
func (k *keyed[T]) GetService(tag resolve.Tag, key any) (any, error) {
	if tag != k.svc {
		return nil, nil
	}
	ek, err := keyOf(k.svc, key)
	if err != nil {
		return nil, err
	}
	if (k.provider == "" || k.provider == ek.ProviderInvariantName) &&
		(k.server == "" || k.server == ek.ServerName) {
		return k.factory, nil
	}
	return nil, nil
}

// GetServices implements resolve.Resolver.
func (k *keyed[T]) GetServices(tag resolve.Tag, key any) ([]any, error) {
	v, err := k.GetService(tag, key)
	if err != nil || v == nil {
		return nil, err
	}
	return []any{v}, nil
}

// defaultStrategy yields the Default strategy factory for any valid key.
type defaultStrategy struct{}

// NewDefaultStrategyResolver returns the resolver used when nothing else
// registers an execution strategy.
func NewDefaultStrategyResolver() resolve.Resolver {
	return defaultStrategy{}
}

// GetService implements resolve.Resolver.
func (defaultStrategy) GetService(tag resolve.Tag, key any) (any, error) {
	if tag != StrategyService {
		return nil, nil
	}
	if _, err := keyOf(StrategyService, key); err != nil {
		return nil, err
	}
	return StrategyFactory(NewDefault), nil
}

// GetServices implements resolve.Resolver.
func (d defaultStrategy) GetServices(tag resolve.Tag, key any) ([]any, error) {
	v, err := d.GetService(tag, key)
	if err != nil || v == nil {
		return nil, err
	}
	return []any{v}, nil
}

func keyOf(svc resolve.Tag, key any) (Key, error) {
	switch k := key.(type) {
	case Key:
		return k, nil
	case *Key:
		if k != nil {
			return *k, nil
		}
	}
	return Key{}, &resolve.KeyError{Service: svc.Name(), Want: "execution.Key", Key: key}
}
