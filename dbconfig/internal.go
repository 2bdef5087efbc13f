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

package dbconfig

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

const (
	stateOpen int32 = iota
	stateLocking
	stateLocked
)

// Internal holds the resolvers of one configuration.
//
// Its dependency resolver consults the app-config chain first and the
// normal chain second. Resolvers registered from code go to the normal
// chain, whose oldest element is the root resolver; resolvers that must
// outrank the application configuration file go to the app-config chain.
//
// The mutating methods are meant for the single-threaded setup phase and
// fail with a *LockedError once Lock was called. Resolution is safe for
// concurrent use at any time.
type Internal struct {
	id          uuid.UUID
	log         *slog.Logger
	root        *RootResolver
	resolver    atomic.Pointer[resolve.Composite[*resolve.Chain, *resolve.Chain]]
	dispatchers *interception.Dispatchers
	owner       *Configuration
	state       atomic.Int32
	onLoaded    func(*LoadedEventArgs) error
}

type internalConfig struct {
	root        *RootResolver
	app         resolve.Resolver
	dispatchers *interception.Dispatchers
	logger      *slog.Logger
}

// Option configures an Internal.
type Option func(*internalConfig)

// WithRoot sets the root resolver. By default, every configuration creates
// its own with NewRootResolver.
func WithRoot(root *RootResolver) Option {
	return func(c *internalConfig) {
		if root != nil {
			c.root = root
		}
	}
}

// WithAppConfigResolver sets the first resolver of the app-config chain.
func WithAppConfigResolver(r resolve.Resolver) Option {
	return func(c *internalConfig) {
		c.app = r
	}
}

// WithDispatchers sets the dispatchers interceptors are registered with
// when the configuration is locked.
func WithDispatchers(d *interception.Dispatchers) Option {
	return func(c *internalConfig) {
		if d != nil {
			c.dispatchers = d
		}
	}
}

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *internalConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewInternal creates an unlocked configuration.
func NewInternal(opts ...Option) *Internal {
	c := internalConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.root == nil {
		c.root = NewRootResolver()
	}
	if c.dispatchers == nil {
		c.dispatchers = interception.NewDispatchers()
	}

	i := &Internal{
		id:          uuid.New(),
		log:         c.logger,
		root:        c.root,
		dispatchers: c.dispatchers,
	}
	i.resolver.Store(resolve.NewComposite(resolve.NewChain(c.app), resolve.NewChain(c.root)))
	return i
}

// ID identifies the instance in log output.
func (i *Internal) ID() uuid.UUID { return i.id }

// Owner returns the Configuration i belongs to, or nil.
func (i *Internal) Owner() *Configuration { return i.owner }

// DependencyResolver returns the resolver of the configuration.
func (i *Internal) DependencyResolver() resolve.Resolver { return i.resolver.Load() }

// RootResolver returns the root resolver.
func (i *Internal) RootResolver() *RootResolver { return i.root }

// Dispatchers returns the dispatchers interceptors are registered with.
func (i *Internal) Dispatchers() *interception.Dispatchers { return i.dispatchers }

// IsLocked reports whether Lock completed.
func (i *Internal) IsLocked() bool { return i.state.Load() == stateLocked }

func (i *Internal) app() *resolve.Chain    { return i.resolver.Load().First() }
func (i *Internal) normal() *resolve.Chain { return i.resolver.Load().Second() }

func (i *Internal) typeName() string {
	if i.owner == nil {
		return Base.Name
	}
	return i.owner.Type().String()
}

// CheckNotLocked fails with a *LockedError naming member if i is locked.
func (i *Internal) CheckNotLocked(member string) error {
	if i.IsLocked() {
		return &LockedError{Member: member, Owner: i.typeName()}
	}
	return nil
}

// Lock freezes the configuration. Interceptors resolvable at this point are
// registered with the dispatchers, the Loaded handlers run, and the
// interceptors added by the handlers are registered as well. Handlers may
// still add resolvers. Calling Lock again has no effect.
//
// If a handler fails, the interceptors registered so far are removed again
// and the configuration stays unlocked.
func (i *Internal) Lock() error {
	if !i.state.CompareAndSwap(stateOpen, stateLocking) {
		return nil
	}
	var added []interception.Interceptor
	revert := func() {
		for _, x := range added {
			i.dispatchers.Remove(x)
		}
		i.state.Store(stateOpen)
	}
	fail := func(err error) error {
		revert()
		return err
	}
	// A panicking handler must not leave the configuration half locked.
	defer func() {
		if i.state.Load() == stateLocking {
			revert()
		}
	}()

	before, err := resolve.GetAll(i.DependencyResolver(), interception.Service, nil)
	if err != nil {
		return fail(err)
	}
	for _, x := range before {
		if i.dispatchers.Contains(x) {
			continue
		}
		if err := i.dispatchers.Add(x); err != nil {
			return fail(err)
		}
		added = append(added, x)
	}

	if i.onLoaded != nil {
		if err := i.onLoaded(&LoadedEventArgs{internal: i}); err != nil {
			return fail(err)
		}
	}

	after, err := resolve.GetAll(i.DependencyResolver(), interception.Service, nil)
	if err != nil {
		return fail(err)
	}
	for _, x := range after {
		if slices.ContainsFunc(before, func(y interception.Interceptor) bool {
			return interception.Same(x, y)
		}) || i.dispatchers.Contains(x) {
			continue
		}
		if err := i.dispatchers.Add(x); err != nil {
			return fail(err)
		}
		added = append(added, x)
	}

	i.state.Store(stateLocked)
	i.log.Debug("Locked configuration",
		"id", i.id,
		"type", i.typeName(),
		"interceptors", len(added),
	)
	return nil
}

// AddAppConfigResolver adds a resolver to the app-config chain.
func (i *Internal) AddAppConfigResolver(r resolve.Resolver) error {
	if err := i.CheckNotLocked("AddAppConfigResolver"); err != nil {
		return err
	}
	i.app().Add(r)
	return nil
}

// AddDependencyResolver adds r to the normal chain, or to the app-config
// chain if overrideConfigFile is set.
func (i *Internal) AddDependencyResolver(r resolve.Resolver, overrideConfigFile bool) error {
	if err := i.CheckNotLocked("AddDependencyResolver"); err != nil {
		return err
	}
	if overrideConfigFile {
		i.app().Add(r)
	} else {
		i.normal().Add(r)
	}
	i.log.Debug("Added dependency resolver",
		"id", i.id,
		"overrideConfigFile", overrideConfigFile,
	)
	return nil
}

// AddDefaultResolver adds r to the defaults of the root resolver.
func (i *Internal) AddDefaultResolver(r resolve.Resolver) error {
	if err := i.CheckNotLocked("AddDefaultResolver"); err != nil {
		return err
	}
	i.root.AddDefaultResolver(r)
	return nil
}

// AddSecondaryResolver adds r below all other resolvers.
func (i *Internal) AddSecondaryResolver(r resolve.Resolver) error {
	if err := i.CheckNotLocked("AddSecondaryResolver"); err != nil {
		return err
	}
	i.root.AddSecondaryResolver(r)
	return nil
}

// SetDefaultProviderServices makes s the default services of the named
// provider.
func (i *Internal) SetDefaultProviderServices(s provider.Services, name string) error {
	if err := i.CheckNotLocked("SetDefaultProviderServices"); err != nil {
		return err
	}
	i.root.SetDefaultProviderServices(s, name)
	return nil
}

// SwitchInRootResolver replaces the root resolver, keeping every resolver
// added to the normal chain since construction.
func (i *Internal) SwitchInRootResolver(root *RootResolver) error {
	if err := i.CheckNotLocked("SwitchInRootResolver"); err != nil {
		return err
	}
	if root == nil {
		return ErrNilRootResolver
	}
	cur := i.resolver.Load()
	normal := resolve.NewChain(root)
	for _, r := range cur.Second().Resolvers()[1:] {
		normal.Add(r)
	}
	i.root = root
	i.resolver.Store(resolve.NewComposite(cur.First(), normal))
	return nil
}

// ResolverSnapshot returns a chain of all current resolvers that resolves
// like DependencyResolver but is not affected by later additions.
func (i *Internal) ResolverSnapshot() resolve.Resolver {
	cur := i.resolver.Load()
	snap := resolve.NewChain()
	for _, r := range cur.Second().Resolvers() {
		snap.Add(r)
	}
	for _, r := range cur.First().Resolvers() {
		snap.Add(r)
	}
	return snap
}

// RegisterSingleton adds a resolver yielding instance for svc and any key.
func RegisterSingleton[T any](i *Internal, svc *resolve.Service[T], instance T) error {
	return i.AddDependencyResolver(resolve.Singleton(svc, instance, nil), false)
}

// RegisterSingletonKey adds a resolver yielding instance for svc and key.
func RegisterSingletonKey[T any](i *Internal, svc *resolve.Service[T], instance T, key any) error {
	return i.AddDependencyResolver(resolve.Singleton(svc, instance, key), false)
}

// RegisterSingletonFunc adds a resolver yielding instance for svc and the
// keys match accepts.
func RegisterSingletonFunc[T any](i *Internal, svc *resolve.Service[T], instance T, match func(key any) bool) error {
	return i.AddDependencyResolver(resolve.SingletonFunc(svc, instance, match), false)
}
