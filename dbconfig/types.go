package dbconfig

import (
	"fmt"
	"slices"
	"sync"

	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/log"
	"github.com/deep-rent/ormconf/provider"
)

// Module groups the configuration and context types of one unit of code,
// such as a package or a plugin. Discovery probes each module once.
type Module struct {
	Name string
	// Dynamic modules are generated at run time and never validated against
	// the configuration in use.
	Dynamic        bool
	Configurations []*ConfigurationType
	Contexts       []*ContextType
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddConfiguration adds t to m and returns it.
func (m *Module) AddConfiguration(t *ConfigurationType) *ConfigurationType {
	t.Module = m
	m.Configurations = append(m.Configurations, t)
	return t
}

// AddContext adds t to m and returns it.
func (m *Module) AddContext(t *ContextType) *ContextType {
	t.Module = m
	m.Contexts = append(m.Contexts, t)
	return t
}

// ConfigurationType describes a kind of Configuration. Types are compared
// by identity.
type ConfigurationType struct {
	Name   string
	Module *Module
	// Abstract and generic types cannot be instantiated.
	Abstract bool
	Generic  bool
	// Null marks a type that stands for "no configuration". Discovery skips
	// it, and a context naming it uses whatever configuration is set.
	Null bool
	// Setup populates new configurations of this type.
	Setup func(*Configuration)
}

// String returns the qualified name of t.
func (t *ConfigurationType) String() string {
	if t.Module == nil {
		return t.Name
	}
	return t.Module.Name + "." + t.Name
}

// Base is the type of configurations that register nothing beyond the
// built-in services.
var Base = &ConfigurationType{Name: "DbConfiguration"}

// ContextType describes a database context.
type ContextType struct {
	Name   string
	Module *Module
	// Configuration is the configuration type the context declares, if any.
	Configuration *ConfigurationType
}

// BaseContext is the context type all contexts derive from. It never
// triggers discovery.
var BaseContext = &ContextType{Name: "DbContext"}

// ProviderConstructor creates provider services.
type ProviderConstructor func() provider.Services

// ConnectionFactoryConstructor creates a connection factory from the
// parameters of an application configuration entry.
type ConnectionFactoryConstructor func(params []string) (connection.Factory, error)

// InterceptorConstructor creates an interceptor from the parameters of an
// application configuration entry.
type InterceptorConstructor func(params []string) (interception.Interceptor, error)

// Catalog maps the type names used in application configuration files to
// configuration types and service constructors. It is safe for concurrent
// use.
type Catalog struct {
	mu           sync.RWMutex
	types        map[string]*ConfigurationType
	providers    map[string]ProviderConstructor
	factories    map[string]ConnectionFactoryConstructor
	interceptors map[string]InterceptorConstructor
}

// NewCatalog creates a catalog with the built-in types: the Base
// configuration, the "postgres" provider and connection factory, and the
// "DatabaseLogger" interceptor, which logs database activity as JSON to the
// file given as its first parameter, or to standard output.
func NewCatalog() *Catalog {
	c := &Catalog{
		types:        make(map[string]*ConfigurationType),
		providers:    make(map[string]ProviderConstructor),
		factories:    make(map[string]ConnectionFactoryConstructor),
		interceptors: make(map[string]InterceptorConstructor),
	}
	c.RegisterConfiguration(Base)
	c.RegisterProvider(provider.Postgres, func() provider.Services {
		return provider.NewPostgresServices()
	})
	c.RegisterConnectionFactory(provider.Postgres, func(params []string) (connection.Factory, error) {
		return connection.NewPostgres(first(params)), nil
	})
	c.RegisterInterceptor("DatabaseLogger", func(params []string) (interception.Interceptor, error) {
		logger := log.New(log.WithFormat(log.FormatJSON), log.WithFile(first(params)))
		return interception.NewLogFormatter("", logger), nil
	})
	return c
}

func first(params []string) string {
	if len(params) == 0 {
		return ""
	}
	return params[0]
}

// RegisterConfiguration makes t available under its name and its
// qualified name.
func (c *Catalog) RegisterConfiguration(t *ConfigurationType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[t.Name] = t
	c.types[t.String()] = t
}

// RegisterProvider adds or replaces a provider services constructor.
func (c *Catalog) RegisterProvider(typeName string, ctor ProviderConstructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[typeName] = ctor
}

// RegisterConnectionFactory adds or replaces a connection factory
// constructor.
func (c *Catalog) RegisterConnectionFactory(typeName string, ctor ConnectionFactoryConstructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[typeName] = ctor
}

// RegisterInterceptor adds or replaces an interceptor constructor.
func (c *Catalog) RegisterInterceptor(typeName string, ctor InterceptorConstructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors[typeName] = ctor
}

func lookup[V any](c *Catalog, m map[string]V, kind, name string) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := m[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %s %q", ErrUnknownType, kind, name)
	}
	return v, nil
}

// Configuration returns the configuration type registered under name.
func (c *Catalog) Configuration(name string) (*ConfigurationType, error) {
	return lookup(c, c.types, "configuration", name)
}

// Provider returns the provider services constructor of typeName.
func (c *Catalog) Provider(typeName string) (ProviderConstructor, error) {
	return lookup(c, c.providers, "provider", typeName)
}

// ConnectionFactory returns the connection factory constructor of typeName.
func (c *Catalog) ConnectionFactory(typeName string) (ConnectionFactoryConstructor, error) {
	return lookup(c, c.factories, "connection factory", typeName)
}

// Interceptor returns the interceptor constructor of typeName.
func (c *Catalog) Interceptor(typeName string) (InterceptorConstructor, error) {
	return lookup(c, c.interceptors, "interceptor", typeName)
}

// Finder discovers configuration types.
type Finder struct{}

// TryFindConfigurationType returns the configuration type for a context of
// module m. The type declared by ctx wins; otherwise m may contain at most
// one concrete configuration type. The result is nil if there is none.
func (Finder) TryFindConfigurationType(m *Module, ctx *ContextType) (*ConfigurationType, error) {
	if ctx != nil && ctx.Configuration != nil {
		t := ctx.Configuration
		if t.Null {
			return nil, nil
		}
		if t.Abstract || t.Generic {
			return nil, fmt.Errorf("%w: %s declared by context %s cannot be instantiated", ErrBadConfigurationType, t, ctx.Name)
		}
		return t, nil
	}
	if m == nil {
		return nil, nil
	}
	found := slices.DeleteFunc(slices.Clone(m.Configurations), func(t *ConfigurationType) bool {
		return t.Abstract || t.Generic || t.Null || t == Base
	})
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: module %q contains %s and %s", ErrMultipleConfigsInAssembly, m.Name, found[0].Name, found[1].Name)
	}
}

// declaresNone reports whether ctx, or else m, names a Null type to state
// that it uses no configuration of its own.
func declaresNone(m *Module, ctx *ContextType) bool {
	if ctx != nil && ctx.Configuration != nil {
		return ctx.Configuration.Null
	}
	return m != nil && slices.ContainsFunc(m.Configurations, func(t *ConfigurationType) bool {
		return t.Null
	})
}

// TryCreateConfiguration instantiates the type TryFindConfigurationType
// returns. The result is nil if no type was found.
func (f Finder) TryCreateConfiguration(m *Module, ctx *ContextType, opts ...Option) (*Configuration, error) {
	t, err := f.TryFindConfigurationType(m, ctx)
	if err != nil || t == nil {
		return nil, err
	}
	return NewConfiguration(t, opts...), nil
}
