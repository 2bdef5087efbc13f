package dbconfig

import (
	"github.com/deep-rent/ormconf/annotation"
	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/execution"
	"github.com/deep-rent/ormconf/history"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/manifest"
	"github.com/deep-rent/ormconf/modelcache"
	"github.com/deep-rent/ormconf/pluralization"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

// RootResolver is the last resolver of every configuration. It serves the
// built-in services unless a default resolver or a default provider
// overrides them, and it never fails for unknown services.
//
// Lookups consult, in this order, the resolvers added with
// AddDefaultResolver, the default provider services, the built-in services
// and finally the secondary resolvers.
type RootResolver struct {
	defaults  *resolve.Chain
	providers *resolve.Chain
	builtins  *resolve.Chain
	secondary *resolve.Chain
}

type rootConfig struct {
	registry *provider.Registry
	base     string
}

// RootOption configures a RootResolver.
type RootOption func(*rootConfig)

// WithProviders sets the registry the built-in provider services resolver
// creates services from. A nil registry is ignored.
func WithProviders(reg *provider.Registry) RootOption {
	return func(c *rootConfig) {
		if reg != nil {
			c.registry = reg
		}
	}
}

// WithConnectionBase sets the base connection string of the built-in
// connection factory.
func WithConnectionBase(base string) RootOption {
	return func(c *rootConfig) {
		c.base = base
	}
}

// NewRootResolver creates a root resolver with the built-in services.
func NewRootResolver(opts ...RootOption) *RootResolver {
	c := rootConfig{base: connection.DefaultBase}
	for _, opt := range opts {
		opt(&c)
	}
	if c.registry == nil {
		c.registry = provider.NewRegistry()
	}

	r := &RootResolver{
		defaults:  resolve.NewChain(),
		providers: resolve.NewChain(),
		secondary: resolve.NewChain(),
	}
	// The chain is queried newest first, so the list runs from the least to
	// the most specific resolver.
	r.builtins = resolve.NewChain(
		execution.NewTransactionHandlerResolver("", "", execution.NewDefaultTransactionHandler),
		execution.NewDefaultStrategyResolver(),
		provider.NewServicesResolver(c.registry),
		provider.NewFactoryResolver(),
		provider.NewInvariantNameResolver(),
		resolve.Singleton(connection.Service, connection.Factory(connection.NewPostgres(c.base)), nil),
		resolve.Singleton(modelcache.KeyService, modelcache.KeyFactory(modelcache.DefaultKey), nil),
		resolve.Singleton(manifest.Service, manifest.Resolver(manifest.NewCaching(nil)), nil),
		history.NewResolver("", history.NewContext),
		resolve.Singleton(pluralization.Service, pluralization.Pluralizer(pluralization.NewEnglish()), nil),
		resolve.Singleton(interception.FormatterService, interception.FormatterFactory(interception.NewLogFormatter), nil),
		resolve.Singleton(provider.FactoryResolverService, provider.FactoryResolver(provider.NewDriverResolver()), nil),
		resolve.Singleton(annotation.SerializerService, annotation.SerializerFactory(annotation.NewClrTypeSerializer), annotation.ClrTypeName),
		resolve.Singleton(annotation.SerializerService, annotation.SerializerFactory(annotation.NewIndexSerializer), annotation.IndexName),
	)
	return r
}

// AddDefaultResolver adds a resolver that is consulted before the built-in
// services.
func (r *RootResolver) AddDefaultResolver(res resolve.Resolver) {
	r.defaults.Add(res)
}

// SetDefaultProviderServices registers s under name and adds s itself as a
// resolver, so that the services of the provider become defaults.
func (r *RootResolver) SetDefaultProviderServices(s provider.Services, name string) {
	r.providers.Add(resolve.Singleton(provider.ServicesService, s, name))
	r.providers.Add(s)
}

// AddSecondaryResolver adds a resolver of the lowest precedence.
func (r *RootResolver) AddSecondaryResolver(res resolve.Resolver) {
	r.secondary.Add(res)
}

func (r *RootResolver) chains() [4]*resolve.Chain {
	return [...]*resolve.Chain{r.defaults, r.providers, r.builtins, r.secondary}
}

// GetService implements resolve.Resolver.
func (r *RootResolver) GetService(tag resolve.Tag, key any) (any, error) {
	for _, c := range r.chains() {
		v, err := c.GetService(tag, key)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

// GetServices implements resolve.Resolver.
func (r *RootResolver) GetServices(tag resolve.Tag, key any) ([]any, error) {
	var out []any
	for _, c := range r.chains() {
		vs, err := c.GetServices(tag, key)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

var _ resolve.Resolver = (*RootResolver)(nil)
