package dbconfig

import (
	"fmt"
	"reflect"

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

// Configuration is the code-based configuration of an application. The
// Setup function of its ConfigurationType registers services through the
// Set and Add methods:
//
//	var Sample = &dbconfig.ConfigurationType{
//		Name: "Sample",
//		Setup: func(c *dbconfig.Configuration) {
//			c.SetExecutionStrategy(provider.Postgres, func() execution.Strategy {
//				return execution.NewRetrying()
//			})
//		},
//	}
//
// The methods panic if the configuration is locked or if an argument is
// nil, as both indicate a programming error.
type Configuration struct {
	typ      *ConfigurationType
	internal *Internal
}

// NewConfiguration creates a configuration of type typ and runs its Setup
// function. A nil typ creates a configuration of type Base.
func NewConfiguration(typ *ConfigurationType, opts ...Option) *Configuration {
	if typ == nil {
		typ = Base
	}
	c := &Configuration{typ: typ}
	c.internal = NewInternal(opts...)
	c.internal.owner = c
	if typ.Setup != nil {
		typ.Setup(c)
	}
	return c
}

// Type returns the type of the configuration.
func (c *Configuration) Type() *ConfigurationType { return c.typ }

// Internal returns the resolvers backing the configuration.
func (c *Configuration) Internal() *Internal { return c.internal }

// DependencyResolver returns the resolver of the configuration.
func (c *Configuration) DependencyResolver() resolve.Resolver {
	return c.internal.DependencyResolver()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func notNil(name string, v any) {
	if v == nil {
		panic(fmt.Sprintf("dbconfig: %s must not be nil", name))
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			panic(fmt.Sprintf("dbconfig: %s must not be nil", name))
		}
	}
}

func notEmpty(name, v string) {
	if v == "" {
		panic(fmt.Sprintf("dbconfig: %s must not be empty", name))
	}
}

// AddDependencyResolver adds r with precedence over all resolvers added
// before. Unless overrideConfigFile is set, services configured in the
// application configuration file still win.
func (c *Configuration) AddDependencyResolver(r resolve.Resolver, overrideConfigFile bool) {
	notNil("resolver", r)
	must(c.internal.AddDependencyResolver(r, overrideConfigFile))
}

// AddDefaultResolver adds r with precedence over the built-in services
// only.
func (c *Configuration) AddDefaultResolver(r resolve.Resolver) {
	notNil("resolver", r)
	must(c.internal.AddDefaultResolver(r))
}

// AddSecondaryResolver adds r with the lowest precedence.
func (c *Configuration) AddSecondaryResolver(r resolve.Resolver) {
	notNil("resolver", r)
	must(c.internal.AddSecondaryResolver(r))
}

// SetProviderServices registers the services of the named provider. The
// services also become a default resolver, so that the services they
// provide are found without naming the provider.
func (c *Configuration) SetProviderServices(invariantName string, s provider.Services) {
	notEmpty("invariant name", invariantName)
	notNil("provider services", s)
	must(RegisterSingletonKey(c.internal, provider.ServicesService, s, invariantName))
	must(c.internal.AddDefaultResolver(s))
}

// SetProviderFactory registers the factory of the named provider.
func (c *Configuration) SetProviderFactory(invariantName string, f provider.Factory) {
	notEmpty("invariant name", invariantName)
	notNil("provider factory", f)
	must(RegisterSingletonKey(c.internal, provider.FactoryService, f, invariantName))
	must(RegisterSingletonKey(c.internal, provider.InvariantNameService, invariantName, f))
}

// SetExecutionStrategy registers the execution strategy of the named
// provider.
func (c *Configuration) SetExecutionStrategy(invariantName string, f execution.StrategyFactory) {
	c.SetServerExecutionStrategy(invariantName, "", f)
}

// SetServerExecutionStrategy registers the execution strategy of the named
// provider for one server.
func (c *Configuration) SetServerExecutionStrategy(invariantName, server string, f execution.StrategyFactory) {
	notEmpty("invariant name", invariantName)
	notNil("strategy factory", f)
	must(c.internal.AddDependencyResolver(execution.NewStrategyResolver(invariantName, server, f), false))
}

// SetDefaultTransactionHandler registers the transaction handler of all
// providers.
func (c *Configuration) SetDefaultTransactionHandler(f execution.TransactionHandlerFactory) {
	notNil("transaction handler factory", f)
	must(c.internal.AddDependencyResolver(execution.NewTransactionHandlerResolver("", "", f), false))
}

// SetTransactionHandler registers the transaction handler of the named
// provider.
func (c *Configuration) SetTransactionHandler(invariantName string, f execution.TransactionHandlerFactory) {
	c.SetServerTransactionHandler(invariantName, "", f)
}

// SetServerTransactionHandler registers the transaction handler of the
// named provider for one server.
func (c *Configuration) SetServerTransactionHandler(invariantName, server string, f execution.TransactionHandlerFactory) {
	notEmpty("invariant name", invariantName)
	notNil("transaction handler factory", f)
	must(c.internal.AddDependencyResolver(execution.NewTransactionHandlerResolver(invariantName, server, f), false))
}

// SetDefaultConnectionFactory replaces the connection factory.
func (c *Configuration) SetDefaultConnectionFactory(f connection.Factory) {
	notNil("connection factory", f)
	must(RegisterSingleton(c.internal, connection.Service, f))
}

// SetPluralizationService replaces the pluralizer.
func (c *Configuration) SetPluralizationService(p pluralization.Pluralizer) {
	notNil("pluralizer", p)
	must(RegisterSingleton(c.internal, pluralization.Service, p))
}

// SetManifestTokenResolver replaces the manifest token resolver.
func (c *Configuration) SetManifestTokenResolver(r manifest.Resolver) {
	notNil("manifest token resolver", r)
	must(RegisterSingleton(c.internal, manifest.Service, r))
}

// SetModelCacheKey replaces the model cache key factory.
func (c *Configuration) SetModelCacheKey(f modelcache.KeyFactory) {
	notNil("key factory", f)
	must(RegisterSingleton(c.internal, modelcache.KeyService, f))
}

// SetModelStore sets the store that persists built models.
func (c *Configuration) SetModelStore(s modelcache.Store) {
	notNil("model store", s)
	must(RegisterSingleton(c.internal, modelcache.StoreService, s))
}

// SetDefaultHistoryContext replaces the history context factory of all
// providers.
func (c *Configuration) SetDefaultHistoryContext(f history.Factory) {
	notNil("history context factory", f)
	must(c.internal.AddDependencyResolver(history.NewResolver("", f), false))
}

// SetHistoryContext replaces the history context factory of the named
// provider.
func (c *Configuration) SetHistoryContext(invariantName string, f history.Factory) {
	notEmpty("invariant name", invariantName)
	notNil("history context factory", f)
	must(c.internal.AddDependencyResolver(history.NewResolver(invariantName, f), false))
}

// SetMetadataAnnotationSerializer registers the serializer of the named
// annotation.
func (c *Configuration) SetMetadataAnnotationSerializer(name string, f annotation.SerializerFactory) {
	notEmpty("annotation name", name)
	notNil("serializer factory", f)
	must(RegisterSingletonKey(c.internal, annotation.SerializerService, f, name))
}

// SetProviderFactoryResolver replaces the resolver that maps database
// handles to provider factories.
func (c *Configuration) SetProviderFactoryResolver(r provider.FactoryResolver) {
	notNil("provider factory resolver", r)
	must(RegisterSingleton(c.internal, provider.FactoryResolverService, r))
}

// SetDatabaseLogFormatter replaces the database log formatter factory.
func (c *Configuration) SetDatabaseLogFormatter(f interception.FormatterFactory) {
	notNil("formatter factory", f)
	must(RegisterSingleton(c.internal, interception.FormatterService, f))
}

// AddInterceptor registers i with the dispatchers once the configuration is
// locked. It panics with interception.ErrNotInterceptor if i implements no
// interceptor interface, and with interception.ErrUncomparable if its type
// cannot be compared.
func (c *Configuration) AddInterceptor(i interception.Interceptor) {
	notNil("interceptor", i)
	if err := interception.Check(i); err != nil {
		panic(fmt.Errorf("dbconfig: %T: %w", i, err))
	}
	must(RegisterSingleton(c.internal, interception.Service, i))
}

// LoadedEventArgs is passed to Loaded handlers. Handlers run while the
// configuration is being locked and may still add resolvers.
type LoadedEventArgs struct {
	internal *Internal
}

// LoadedHandler is called once when a configuration is locked. An error
// aborts the lock.
type LoadedHandler func(*LoadedEventArgs) error

// Configuration returns the configuration being loaded.
func (a *LoadedEventArgs) Configuration() *Configuration { return a.internal.owner }

// DependencyResolver returns a snapshot of the resolvers registered so far.
func (a *LoadedEventArgs) DependencyResolver() resolve.Resolver {
	return a.internal.ResolverSnapshot()
}

// AddDependencyResolver adds r like Configuration.AddDependencyResolver.
func (a *LoadedEventArgs) AddDependencyResolver(r resolve.Resolver, overrideConfigFile bool) error {
	return a.internal.AddDependencyResolver(r, overrideConfigFile)
}

// AddDefaultResolver adds r like Configuration.AddDefaultResolver.
func (a *LoadedEventArgs) AddDefaultResolver(r resolve.Resolver) error {
	return a.internal.AddDefaultResolver(r)
}

// ReplaceService wraps the currently registered instances of svc with fn.
// The replacement outranks every other resolver, including the application
// configuration file.
func ReplaceService[T any](a *LoadedEventArgs, svc *resolve.Service[T], fn resolve.Interceptor[T]) error {
	return a.AddDependencyResolver(resolve.Wrapping(a.DependencyResolver(), svc, fn), true)
}
