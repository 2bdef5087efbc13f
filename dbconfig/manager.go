// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dbconfig manages the configuration an application resolves its
// database services from.
//
// A Configuration is built once, when it is first needed, and locked
// afterwards. Its type comes from, in this order, the application
// configuration file, SetConfigurationType or SetConfiguration, and the
// discovery of a single configuration type in the module of the first
// context used. Tooling may push scoped configurations for other
// application configuration files on top of it:
//
//	m := dbconfig.NewManager(dbconfig.WithAppConfig(cfg))
//	defer m.Shutdown()
//
//	if err := m.EnsureLoadedForContext(blog); err != nil {
//		return err
//	}
//	r, err := m.DependencyResolver()
//	if err != nil {
//		return err
//	}
//	f, err := resolve.Get(r, connection.Service, nil)
package dbconfig

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/resolve"
)

type frame struct {
	scope    *appconfig.AppConfig
	internal *Internal
}

type handler struct {
	id int
	fn LoadedHandler
}

// Manager owns the configuration of an application. It is safe for
// concurrent use.
type Manager struct {
	log         *slog.Logger
	finder      Finder
	catalog     *Catalog
	appConfig   *appconfig.AppConfig
	dispatchers *interception.Dispatchers
	rootOpts    []RootOption

	mu        sync.Mutex
	newConfig *Configuration
	newType   *ConfigurationType
	handlers  []handler
	nextID    int
	overrides []frame

	// pushed is set once the first scoped configuration is pushed; until
	// then GetConfiguration takes no lock.
	pushed  atomic.Bool
	once    sync.Once
	created atomic.Bool
	current *Internal
	err     error

	// pending is the default configuration while it is being locked;
	// loading is set while its Loaded handlers run.
	pending atomic.Pointer[Internal]
	loading atomic.Bool

	known sync.Map
}

type managerConfig struct {
	logger      *slog.Logger
	catalog     *Catalog
	appConfig   *appconfig.AppConfig
	dispatchers *interception.Dispatchers
	rootOpts    []RootOption
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// WithManagerLogger sets the logger. It defaults to slog.Default().
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCatalog sets the catalog used to resolve type names found in
// application configuration files.
func WithCatalog(catalog *Catalog) ManagerOption {
	return func(c *managerConfig) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithAppConfig sets the application configuration of the default
// configuration.
func WithAppConfig(cfg *appconfig.AppConfig) ManagerOption {
	return func(c *managerConfig) {
		if cfg != nil {
			c.appConfig = cfg
		}
	}
}

// WithManagerDispatchers sets the dispatchers that interceptors of all
// configurations are registered with.
func WithManagerDispatchers(d *interception.Dispatchers) ManagerOption {
	return func(c *managerConfig) {
		if d != nil {
			c.dispatchers = d
		}
	}
}

// WithRootOptions configures the root resolvers of the configurations the
// manager creates.
func WithRootOptions(opts ...RootOption) ManagerOption {
	return func(c *managerConfig) {
		c.rootOpts = append(c.rootOpts, opts...)
	}
}

// NewManager creates a manager.
func NewManager(opts ...ManagerOption) *Manager {
	c := managerConfig{
		logger:      slog.Default(),
		appConfig:   &appconfig.AppConfig{},
		dispatchers: interception.NewDispatchers(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.catalog == nil {
		c.catalog = NewCatalog()
	}
	return &Manager{
		log:         c.logger,
		catalog:     c.catalog,
		appConfig:   c.appConfig,
		dispatchers: c.dispatchers,
		rootOpts:    c.rootOpts,
		newType:     Base,
	}
}

// Default returns the process-wide manager. Libraries should accept a
// *Manager instead.
var Default = sync.OnceValue(func() *Manager { return NewManager() })

// AppConfig returns the application configuration of the default
// configuration.
func (m *Manager) AppConfig() *appconfig.AppConfig { return m.appConfig }

// Catalog returns the catalog of type names.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// Dispatchers returns the dispatchers interceptors are registered with.
func (m *Manager) Dispatchers() *interception.Dispatchers { return m.dispatchers }

// NewConfiguration creates a configuration of type t whose root resolver
// is configured like the ones the manager creates.
func (m *Manager) NewConfiguration(t *ConfigurationType) *Configuration {
	return NewConfiguration(t,
		WithRoot(NewRootResolver(m.rootOpts...)),
		WithDispatchers(m.dispatchers),
		WithLogger(m.log),
	)
}

// adopt prepares a configuration created by or handed to the manager to
// serve the application configuration cfg.
func (m *Manager) adopt(c *Configuration, cfg *appconfig.AppConfig) error {
	i := c.internal
	if err := i.AddAppConfigResolver(NewAppConfigResolver(cfg, i, m.catalog)); err != nil {
		return err
	}
	i.dispatchers = m.dispatchers
	i.onLoaded = m.fireLoaded
	return nil
}

func (m *Manager) fireLoaded(args *LoadedEventArgs) error {
	m.mu.Lock()
	hs := slices.Clone(m.handlers)
	m.mu.Unlock()
	if len(hs) > 0 && args.internal == m.pending.Load() {
		m.loading.Store(true)
		defer m.loading.Store(false)
	}
	for _, h := range hs {
		if err := h.fn(args); err != nil {
			return err
		}
	}
	return nil
}

// typeFromConfig returns the configuration type named by cfg, or nil.
func (m *Manager) typeFromConfig(cfg *appconfig.AppConfig) (*ConfigurationType, error) {
	if cfg == nil || cfg.ConfigurationType == "" {
		return nil, nil
	}
	t, err := m.catalog.Configuration(cfg.ConfigurationType)
	if err != nil {
		return nil, err
	}
	if t.Abstract || t.Generic {
		return nil, fmt.Errorf("%w: %s", ErrBadConfigurationType, t)
	}
	return t, nil
}

// configuration builds the default configuration on first use. While the
// Loaded handlers of that build run, it fails with ErrConfigurationLoading
// instead of waiting for the build to finish.
func (m *Manager) configuration() (*Internal, error) {
	if m.loading.Load() {
		return nil, ErrConfigurationLoading
	}
	m.once.Do(func() {
		m.mu.Lock()
		c, t := m.newConfig, m.newType
		m.mu.Unlock()
		if c == nil {
			ft, err := m.typeFromConfig(m.appConfig)
			if err != nil {
				m.err = err
				return
			}
			if ft != nil {
				t = ft
			}
			if t.Abstract || t.Generic {
				m.err = fmt.Errorf("%w: %s", ErrBadConfigurationType, t)
				return
			}
			c = m.NewConfiguration(t)
		}
		if err := m.adopt(c, m.appConfig); err != nil {
			m.err = err
			return
		}
		m.pending.Store(c.internal)
		err := c.internal.Lock()
		m.pending.Store(nil)
		if err != nil {
			m.err = err
			return
		}
		m.current = c.internal
		m.created.Store(true)
		m.log.Debug("Loaded configuration", "id", c.internal.ID(), "type", c.typ.String())
	})
	return m.current, m.err
}

// ConfigurationSet reports whether the default configuration was built.
func (m *Manager) ConfigurationSet() bool { return m.created.Load() }

// GetConfiguration returns the most recently pushed scoped configuration,
// or else the default one, building it if necessary. Loaded handlers of the
// default configuration get ErrConfigurationLoading; they reach the
// configuration through their LoadedEventArgs.
func (m *Manager) GetConfiguration() (*Internal, error) {
	if m.pushed.Load() {
		m.mu.Lock()
		n := len(m.overrides)
		var top *Internal
		if n > 0 {
			top = m.overrides[n-1].internal
		}
		m.mu.Unlock()
		if top != nil {
			return top, nil
		}
	}
	return m.configuration()
}

// DependencyResolver returns the resolver of GetConfiguration.
func (m *Manager) DependencyResolver() (resolve.Resolver, error) {
	c, err := m.GetConfiguration()
	if err != nil {
		return nil, err
	}
	return c.DependencyResolver(), nil
}

// SetConfigurationType sets the type of the default configuration. It has
// no effect once the configuration is built.
func (m *Manager) SetConfigurationType(t *ConfigurationType) {
	if t == nil {
		t = Base
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newType = t
}

// SetConfiguration makes c the default configuration. A type named in the
// application configuration file takes precedence over c. Setting a
// configuration of the type already in use succeeds; any other type fails
// once the default configuration is built.
func (m *Manager) SetConfiguration(c *Configuration) error {
	if c == nil {
		return fmt.Errorf("dbconfig: configuration must not be nil")
	}
	t, err := m.typeFromConfig(m.appConfig)
	if err != nil {
		return err
	}
	if t != nil {
		c = m.NewConfiguration(t)
	}
	m.mu.Lock()
	m.newConfig = c
	m.mu.Unlock()

	cur, err := m.configuration()
	if err != nil {
		return err
	}
	if owner := cur.Owner().Type(); owner != c.Type() {
		if owner == Base {
			return fmt.Errorf("%w: cannot set %s", ErrDefaultConfigurationUsedBeforeSet, c.Type())
		}
		return fmt.Errorf("%w: cannot set %s, %s is in use", ErrConfigurationSetTwice, c.Type(), owner)
	}
	return nil
}

// EnsureLoadedForContext calls EnsureLoadedForAssembly for the module of
// ctx.
func (m *Manager) EnsureLoadedForContext(ctx *ContextType) error {
	return m.EnsureLoadedForAssembly(contextModule(ctx), ctx)
}

// EnsureLoadedForAssembly discovers the configuration type of module mod,
// probing each module once. If no configuration is built yet, the type
// named in the application configuration file or else the one found in mod
// becomes the type of the default configuration. Otherwise the type found
// in mod must be the one in use, unless the application configuration file
// names a type or mod is dynamic. A context whose module declares no
// configuration fails against a configuration set in code, unless it opts
// out with a Null type.
func (m *Manager) EnsureLoadedForAssembly(mod *Module, ctx *ContextType) error {
	if ctx == BaseContext || m.isKnown(mod) {
		return nil
	}
	if m.pushed.Load() {
		m.mu.Lock()
		active := len(m.overrides) > 0
		m.mu.Unlock()
		if active {
			return nil
		}
	}

	fromConfig, err := m.typeFromConfig(m.appConfig)
	if err != nil {
		return err
	}
	if !m.ConfigurationSet() {
		t := fromConfig
		if t == nil {
			if t, err = m.finder.TryFindConfigurationType(mod, ctx); err != nil {
				return err
			}
		}
		if t != nil {
			m.SetConfigurationType(t)
			m.log.Debug("Discovered configuration", "type", t.String(), "module", moduleName(mod))
		}
	} else if (mod == nil || !mod.Dynamic) && fromConfig == nil {
		t, err := m.finder.TryFindConfigurationType(mod, ctx)
		if err != nil {
			return err
		}
		cur, err := m.configuration()
		if err != nil {
			return err
		}
		owner := cur.Owner().Type()
		switch {
		case owner == Base:
			if t != nil {
				return fmt.Errorf("%w: %s was found after the default configuration was used", ErrConfigurationNotDiscovered, t)
			}
		case ctx == nil || t == owner:
		case t == nil && declaresNone(mod, ctx):
		case t == nil:
			return fmt.Errorf("%w: %s is in use, context %s declares no configuration", ErrSetConfigurationNotDiscovered, owner, ctx.Name)
		default:
			return fmt.Errorf("%w: %s is in use, context %s uses %s", ErrSetConfigurationNotDiscovered, owner, ctx.Name, t)
		}
	}
	if mod != nil {
		m.known.Store(mod, struct{}{})
	}
	return nil
}

func (m *Manager) isKnown(mod *Module) bool {
	if mod == nil {
		return false
	}
	_, ok := m.known.Load(mod)
	return ok
}

func contextModule(ctx *ContextType) *Module {
	if ctx == nil {
		return nil
	}
	return ctx.Module
}

func moduleName(mod *Module) string {
	if mod == nil {
		return ""
	}
	return mod.Name
}

// PushConfiguration builds and locks a configuration for the application
// configuration cfg and the context ctx, and makes it the result of
// GetConfiguration until it is popped. It shares the root resolver of the
// default configuration. The result is false if the pushed configuration
// would equal the default one, in which case nothing is pushed.
func (m *Manager) PushConfiguration(cfg *appconfig.AppConfig, ctx *ContextType) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("dbconfig: application configuration must not be nil")
	}
	mod := contextModule(ctx)
	if cfg == m.appConfig && (ctx == BaseContext || m.isKnown(mod)) {
		return false, nil
	}
	t, err := m.typeFromConfig(cfg)
	if err != nil {
		return false, err
	}
	if t == nil {
		if t, err = m.finder.TryFindConfigurationType(mod, ctx); err != nil {
			return false, err
		}
	}
	if t == nil {
		t = Base
	}

	def, err := m.configuration()
	if err != nil {
		return false, err
	}
	c := m.NewConfiguration(t)
	i := c.internal
	if err := i.SwitchInRootResolver(def.RootResolver()); err != nil {
		return false, err
	}
	if err := m.adopt(c, cfg); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.overrides = append(m.overrides, frame{scope: cfg, internal: i})
	m.pushed.Store(true)
	m.mu.Unlock()

	if err := i.Lock(); err != nil {
		m.remove(func(f frame) bool { return f.internal == i })
		return false, err
	}
	m.log.Debug("Pushed configuration", "id", i.ID(), "type", t.String())
	return true, nil
}

// PopConfiguration removes the oldest configuration pushed for cfg. Frames
// pushed later for other application configurations stay in place.
func (m *Manager) PopConfiguration(cfg *appconfig.AppConfig) {
	if m.remove(func(f frame) bool { return f.scope == cfg }) {
		m.log.Debug("Popped configuration")
	}
}

func (m *Manager) remove(match func(frame) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := slices.IndexFunc(m.overrides, match)
	if idx < 0 {
		return false
	}
	m.overrides = slices.Delete(m.overrides, idx, idx+1)
	return true
}

// OnLoaded adds a handler that runs when a configuration is locked. It
// fails with ErrHandlerAfterLoad once the default configuration is built.
// The returned function removes the handler.
func (m *Manager) OnLoaded(fn LoadedHandler) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("dbconfig: loaded handler must not be nil")
	}
	if m.ConfigurationSet() {
		return nil, ErrHandlerAfterLoad
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, handler{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.handlers = slices.DeleteFunc(m.handlers, func(h handler) bool { return h.id == id })
	}, nil
}

// RemoveLoadedHandlers removes all Loaded handlers.
func (m *Manager) RemoveLoadedHandlers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = nil
}

// Shutdown drops all scoped configurations and Loaded handlers and
// unregisters all interceptors. The default configuration stays in place.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.overrides = nil
	m.handlers = nil
	m.mu.Unlock()
	m.dispatchers.Clear()
	m.log.Debug("Shut down configuration manager")
}
