// Package provider locates database providers by invariant name.
//
// A provider is made of two parts: its Services, which resolve
// provider-specific dependencies, and its Factory, which opens connections
// through a database/sql driver. The invariant name of a provider is the
// name its driver is registered under (for example "postgres").
package provider

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/lib/pq"

	"github.com/deep-rent/ormconf/resolve"
)

// Postgres is the invariant name of the PostgreSQL provider.
const Postgres = "postgres"

// ErrNoProviderFound is returned when no provider is registered for an
// invariant name.
var ErrNoProviderFound = errors.New("no provider registered")

func notFound(name string) error {
	return fmt.Errorf("%w for invariant name %q", ErrNoProviderFound, name)
}

// Services holds the provider-specific services of one provider. It acts as
// a resolver for them once it is registered as a default provider.
type Services interface {
	resolve.Resolver
	// InvariantName returns the invariant name of the provider.
	InvariantName() string
}

// ServicesService is the tag of the Services service; the key is the
// invariant name.
var ServicesService = resolve.NewService[Services]("provider services")

// Factory opens connections for a provider.
type Factory interface {
	InvariantName() string
	Open(dsn string) (*sql.DB, error)
}

// FactoryService is the tag of the Factory service; the key is the
// invariant name.
var FactoryService = resolve.NewService[Factory]("provider factory")

// InvariantNameService is the tag of the service that maps a Factory (the
// key) to its invariant name.
var InvariantNameService = resolve.NewService[string]("provider invariant name")

// FactoryResolver maps an open database handle back to the factory of its
// provider.
type FactoryResolver interface {
	ResolveFactory(db *sql.DB) (Factory, error)
}

// FactoryResolverService is the tag of the FactoryResolver service.
var FactoryResolverService = resolve.NewService[FactoryResolver]("provider factory resolver")

// BaseServices is a Services implementation backed by a resolver chain.
// Providers embed or construct it and add their own resolvers.
type BaseServices struct {
	name  string
	chain *resolve.Chain
}

// NewServices creates the services of the named provider.
func NewServices(invariantName string, resolvers ...resolve.Resolver) *BaseServices {
	return &BaseServices{
		name:  invariantName,
		chain: resolve.NewChain(resolvers...),
	}
}

// InvariantName implements Services.
func (s *BaseServices) InvariantName() string { return s.name }

// AddDependencyResolver adds a provider-specific resolver. Later additions
// take precedence.
func (s *BaseServices) AddDependencyResolver(r resolve.Resolver) {
	s.chain.Add(r)
}

// GetService implements resolve.Resolver.
func (s *BaseServices) GetService(tag resolve.Tag, key any) (any, error) {
	return s.chain.GetService(tag, key)
}

// GetServices implements resolve.Resolver.
func (s *BaseServices) GetServices(tag resolve.Tag, key any) ([]any, error) {
	return s.chain.GetServices(tag, key)
}

var _ Services = (*BaseServices)(nil)

// NewPostgresServices creates the services of the PostgreSQL provider. They
// resolve the provider's own factory.
func NewPostgresServices() *BaseServices {
	f := DriverFactory{Name: Postgres}
	return NewServices(Postgres,
		resolve.Singleton[Factory](FactoryService, f, Postgres),
	)
}

// DriverFactory is a Factory for a registered database/sql driver.
type DriverFactory struct {
	Name string
}

// InvariantName implements Factory.
func (f DriverFactory) InvariantName() string { return f.Name }

// Open implements Factory.
func (f DriverFactory) Open(dsn string) (*sql.DB, error) {
	return sql.Open(f.Name, dsn)
}

var _ Factory = DriverFactory{}

// Registry creates provider services by invariant name. A new Registry knows
// the PostgreSQL provider. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() Services
}

// NewRegistry creates a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]func() Services)}
	r.Register(Postgres, func() Services { return NewPostgresServices() })
	return r
}

// Register adds or replaces the constructor for the named provider.
func (r *Registry) Register(invariantName string, ctor func() Services) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[invariantName] = ctor
}

// Names returns the registered invariant names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Services creates the services of the named provider.
func (r *Registry) Services(invariantName string) (Services, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[invariantName]
	r.mu.RUnlock()
	if !ok {
		return nil, notFound(invariantName)
	}
	return ctor(), nil
}

func nameKey(svc resolve.Tag, key any) (string, error) {
	name, ok := key.(string)
	if !ok || name == "" {
		return "", &resolve.KeyError{Service: svc.Name(), Want: "non-empty invariant name", Key: key}
	}
	return name, nil
}

// NewServicesResolver returns a caching resolver that creates provider
// services from reg. It fails for unknown invariant names.
func NewServicesResolver(reg *Registry) resolve.Resolver {
	return resolve.CachingFunc(func(tag resolve.Tag, key any) (any, error) {
		if tag != ServicesService {
			return nil, nil
		}
		name, err := nameKey(tag, key)
		if err != nil {
			return nil, err
		}
		return reg.Services(name)
	})
}

// NewFactoryResolver returns a caching resolver that yields a DriverFactory
// for every invariant name registered with database/sql.
func NewFactoryResolver() resolve.Resolver {
	return resolve.CachingFunc(func(tag resolve.Tag, key any) (any, error) {
		if tag != FactoryService {
			return nil, nil
		}
		name, err := nameKey(tag, key)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(sql.Drivers(), name) {
			return nil, notFound(name)
		}
		return Factory(DriverFactory{Name: name}), nil
	})
}

// NewInvariantNameResolver returns a caching resolver that answers the
// invariant name of the Factory passed as key.
func NewInvariantNameResolver() resolve.Resolver {
	return resolve.CachingFunc(func(tag resolve.Tag, key any) (any, error) {
		if tag != InvariantNameService {
			return nil, nil
		}
		f, ok := key.(Factory)
		if !ok {
			return nil, &resolve.KeyError{Service: tag.Name(), Want: "provider.Factory", Key: key}
		}
		return f.InvariantName(), nil
	})
}

// DriverResolver is the default FactoryResolver. It recognizes database
// handles by the type of their driver.
type DriverResolver struct {
	mu    sync.RWMutex
	names map[reflect.Type]string
}

// NewDriverResolver creates a resolver that knows the PostgreSQL driver.
func NewDriverResolver() *DriverResolver {
	r := &DriverResolver{names: make(map[reflect.Type]string)}
	r.Register(Postgres, &pq.Driver{})
	return r
}

// Register associates drivers of the same type as drv with invariantName.
func (r *DriverResolver) Register(invariantName string, drv driver.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[reflect.TypeOf(drv)] = invariantName
}

// ResolveFactory implements FactoryResolver.
func (r *DriverResolver) ResolveFactory(db *sql.DB) (Factory, error) {
	if db == nil {
		return nil, errors.New("database handle must not be nil")
	}
	t := reflect.TypeOf(db.Driver())
	r.mu.RLock()
	name, ok := r.names[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for driver %v", ErrNoProviderFound, t)
	}
	return DriverFactory{Name: name}, nil
}

var _ FactoryResolver = (*DriverResolver)(nil)
