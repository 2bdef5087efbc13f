package dbconfig

import (
	"sync"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

// AppConfigResolver serves the services named in an application
// configuration file: provider services by invariant name, the default
// connection factory, and the interceptors, which are only returned by
// GetServices. Services are created through a Catalog on first use and
// cached afterwards.
type AppConfigResolver struct {
	cfg      *appconfig.AppConfig
	internal *Internal
	catalog  *Catalog

	mu        sync.Mutex
	providers map[string]provider.Services

	factory      func() (connection.Factory, error)
	interceptors func() ([]any, error)
}

// NewAppConfigResolver creates a resolver for cfg. Provider services it
// creates are also made the default services of internal.
func NewAppConfigResolver(cfg *appconfig.AppConfig, internal *Internal, catalog *Catalog) *AppConfigResolver {
	if cfg == nil {
		cfg = &appconfig.AppConfig{}
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	r := &AppConfigResolver{
		cfg:       cfg,
		internal:  internal,
		catalog:   catalog,
		providers: make(map[string]provider.Services),
	}
	r.factory = sync.OnceValues(r.createFactory)
	r.interceptors = sync.OnceValues(r.createInterceptors)
	return r
}

// GetService implements resolve.Resolver.
func (r *AppConfigResolver) GetService(tag resolve.Tag, key any) (any, error) {
	switch tag {
	case provider.ServicesService:
		name, ok := key.(string)
		if !ok || name == "" {
			return nil, nil
		}
		return r.providerServices(name)
	case connection.Service:
		f, err := r.factory()
		if err != nil || f == nil {
			return nil, err
		}
		return f, nil
	}
	return nil, nil
}

// GetServices implements resolve.Resolver.
func (r *AppConfigResolver) GetServices(tag resolve.Tag, key any) ([]any, error) {
	if tag == interception.Service {
		return r.interceptors()
	}
	v, err := r.GetService(tag, key)
	if err != nil || v == nil {
		return nil, err
	}
	return []any{v}, nil
}

func (r *AppConfigResolver) providerServices(name string) (any, error) {
	typ, ok := r.cfg.ProviderType(name)
	if !ok {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.providers[name]; ok {
		return s, nil
	}
	ctor, err := r.catalog.Provider(typ)
	if err != nil {
		return nil, err
	}
	s := ctor()
	r.providers[name] = s
	if r.internal != nil {
		r.internal.RootResolver().SetDefaultProviderServices(s, name)
	}
	return s, nil
}

func (r *AppConfigResolver) createFactory() (connection.Factory, error) {
	spec := r.cfg.DefaultConnectionFactory
	if spec == nil || spec.Type == "" {
		return nil, nil
	}
	ctor, err := r.catalog.ConnectionFactory(spec.Type)
	if err != nil {
		return nil, err
	}
	return ctor(spec.Parameters)
}

func (r *AppConfigResolver) createInterceptors() ([]any, error) {
	out := make([]any, 0, len(r.cfg.Interceptors))
	for _, spec := range r.cfg.Interceptors {
		ctor, err := r.catalog.Interceptor(spec.Type)
		if err != nil {
			return nil, err
		}
		i, err := ctor(spec.Parameters)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

var _ resolve.Resolver = (*AppConfigResolver)(nil)
