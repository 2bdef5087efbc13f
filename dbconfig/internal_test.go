package dbconfig_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/dbconfig"
	"github.com/deep-rent/ormconf/execution"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/log"
	"github.com/deep-rent/ormconf/pluralization"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

type recorder struct{ name string }

func (*recorder) Executing(*interception.Command, *interception.CommandContext) {}
func (*recorder) Executed(*interception.Command, *interception.CommandContext)  {}

// tagged is a value interceptor of an uncomparable type.
type tagged struct{ tags []string }

func (tagged) Executing(*interception.Command, *interception.CommandContext) {}
func (tagged) Executed(*interception.Command, *interception.CommandContext)  {}

type word string

func (w word) Pluralize(string) string   { return string(w) }
func (w word) Singularize(string) string { return string(w) }

func pluralizer(t *testing.T, r resolve.Resolver) string {
	t.Helper()
	p, err := resolve.Get(r, pluralization.Service, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Pluralize("x")
}

func singleton(w string) resolve.Resolver {
	return resolve.Singleton(pluralization.Service, pluralization.Pluralizer(word(w)), nil)
}

func newInternal(opts ...dbconfig.Option) *dbconfig.Internal {
	return dbconfig.NewInternal(append([]dbconfig.Option{dbconfig.WithLogger(log.Discard())}, opts...)...)
}

func TestRootResolver_Builtins(t *testing.T) {
	r := dbconfig.NewRootResolver(dbconfig.WithConnectionBase("host=db"))

	f, err := resolve.Get(r, connection.Service, nil)
	require.NoError(t, err)
	pg, ok := f.(*connection.Postgres)
	require.True(t, ok)
	assert.Equal(t, "host=db", pg.Base())

	p, err := resolve.Get(r, pluralization.Service, nil)
	require.NoError(t, err)
	assert.Equal(t, "people", p.Pluralize("person"))

	s, err := execution.StrategyFor(r, execution.Key{ProviderInvariantName: provider.Postgres})
	require.NoError(t, err)
	assert.False(t, s.RetriesOnFailure())

	svc, err := resolve.Get(r, provider.ServicesService, provider.Postgres)
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, provider.Postgres, svc.InvariantName())

	_, err = resolve.Get(r, provider.ServicesService, "unknown")
	assert.ErrorIs(t, err, provider.ErrNoProviderFound)

	missing, err := r.GetService(resolve.NewService[int]("unknown"), nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRootResolver_Precedence(t *testing.T) {
	r := dbconfig.NewRootResolver()

	r.AddSecondaryResolver(singleton("secondary"))
	p, err := resolve.Get(r, pluralization.Service, nil)
	require.NoError(t, err)
	assert.IsType(t, &pluralization.English{}, p, "built-ins outrank secondary resolvers")

	s := provider.NewServices("custom", singleton("provider"))
	r.SetDefaultProviderServices(s, "custom")
	assert.Equal(t, "provider", pluralizer(t, r))

	got, err := resolve.Get(r, provider.ServicesService, "custom")
	require.NoError(t, err)
	assert.Same(t, s, got)

	r.AddDefaultResolver(singleton("default"))
	assert.Equal(t, "default", pluralizer(t, r))

	all, err := resolve.GetAll(r, pluralization.Service, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "default", all[0].Pluralize(""))
	assert.Equal(t, "provider", all[1].Pluralize(""))
	assert.Equal(t, "secondary", all[3].Pluralize(""))
}

func TestInternal_Precedence(t *testing.T) {
	i := newInternal(dbconfig.WithAppConfigResolver(singleton("app")))
	require.NoError(t, i.AddDependencyResolver(singleton("code"), false))
	assert.Equal(t, "app", pluralizer(t, i.DependencyResolver()))

	require.NoError(t, i.AddDependencyResolver(singleton("override"), true))
	assert.Equal(t, "override", pluralizer(t, i.DependencyResolver()))

	j := newInternal()
	require.NoError(t, j.AddDependencyResolver(singleton("first"), false))
	require.NoError(t, j.AddDependencyResolver(singleton("second"), false))
	assert.Equal(t, "second", pluralizer(t, j.DependencyResolver()))

	require.NoError(t, j.AddDefaultResolver(singleton("default")))
	assert.Equal(t, "second", pluralizer(t, j.DependencyResolver()))
}

func TestInternal_Lock(t *testing.T) {
	i := newInternal()
	assert.False(t, i.IsLocked())
	require.NoError(t, i.Lock())
	assert.True(t, i.IsLocked())
	require.NoError(t, i.Lock())

	tests := []struct {
		name string
		call func() error
	}{
		{"AddAppConfigResolver", func() error { return i.AddAppConfigResolver(singleton("a")) }},
		{"AddDependencyResolver", func() error { return i.AddDependencyResolver(singleton("a"), false) }},
		{"AddDefaultResolver", func() error { return i.AddDefaultResolver(singleton("a")) }},
		{"AddSecondaryResolver", func() error { return i.AddSecondaryResolver(singleton("a")) }},
		{"SetDefaultProviderServices", func() error {
			return i.SetDefaultProviderServices(provider.NewPostgresServices(), provider.Postgres)
		}},
		{"SwitchInRootResolver", func() error { return i.SwitchInRootResolver(dbconfig.NewRootResolver()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.ErrorIs(t, err, dbconfig.ErrLocked)
			var le *dbconfig.LockedError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.name, le.Member)
			assert.Equal(t, "DbConfiguration", le.Owner)
		})
	}
}

func TestInternal_LockInterceptors(t *testing.T) {
	d := interception.NewDispatchers()
	early := &recorder{"early"}
	late := &recorder{"late"}

	c := dbconfig.NewConfiguration(nil, dbconfig.WithDispatchers(d), dbconfig.WithLogger(log.Discard()))
	c.AddInterceptor(early)
	i := c.Internal()

	calls := 0
	dbconfig.SetLoadedHook(i, func(a *dbconfig.LoadedEventArgs) error {
		calls++
		assert.True(t, d.Contains(early), "interceptors are registered before handlers run")
		assert.Same(t, c, a.Configuration())
		return a.AddDependencyResolver(resolve.Singleton(interception.Service, interception.Interceptor(late), nil), false)
	})

	require.NoError(t, i.Lock())
	require.NoError(t, i.Lock())
	assert.Equal(t, 1, calls)
	assert.True(t, d.Contains(early))
	assert.True(t, d.Contains(late))
	assert.Equal(t, 2, d.Len())
}

func TestInternal_LockFailure(t *testing.T) {
	d := interception.NewDispatchers()
	rec := &recorder{}
	i := newInternal(dbconfig.WithDispatchers(d))
	require.NoError(t, dbconfig.RegisterSingleton(i, interception.Service, interception.Interceptor(rec)))

	boom := errors.New("boom")
	dbconfig.SetLoadedHook(i, func(*dbconfig.LoadedEventArgs) error { return boom })

	require.ErrorIs(t, i.Lock(), boom)
	assert.False(t, i.IsLocked())
	assert.False(t, d.Contains(rec))
	require.NoError(t, i.AddDefaultResolver(singleton("still open")))

	dbconfig.SetLoadedHook(i, nil)
	require.NoError(t, i.Lock())
	assert.True(t, d.Contains(rec))
}

func TestInternal_LockUncomparable(t *testing.T) {
	d := interception.NewDispatchers()
	rec := &recorder{}
	i := newInternal(dbconfig.WithDispatchers(d))
	require.NoError(t, dbconfig.RegisterSingleton(i, interception.Service, interception.Interceptor(rec)))

	dbconfig.SetLoadedHook(i, func(a *dbconfig.LoadedEventArgs) error {
		v := interception.Interceptor(tagged{tags: []string{"a"}})
		return a.AddDependencyResolver(resolve.Singleton(interception.Service, v, nil), false)
	})

	var err error
	require.NotPanics(t, func() { err = i.Lock() })
	require.ErrorIs(t, err, interception.ErrUncomparable)
	assert.False(t, i.IsLocked())
	assert.False(t, d.Contains(rec))
	require.NoError(t, i.AddDefaultResolver(singleton("still open")))
}

func TestInternal_LockPanic(t *testing.T) {
	d := interception.NewDispatchers()
	rec := &recorder{}
	i := newInternal(dbconfig.WithDispatchers(d))
	require.NoError(t, dbconfig.RegisterSingleton(i, interception.Service, interception.Interceptor(rec)))
	dbconfig.SetLoadedHook(i, func(*dbconfig.LoadedEventArgs) error { panic("boom") })

	assert.PanicsWithValue(t, "boom", func() { _ = i.Lock() })
	assert.False(t, i.IsLocked())
	assert.False(t, d.Contains(rec))

	dbconfig.SetLoadedHook(i, nil)
	require.NoError(t, i.Lock())
	assert.True(t, i.IsLocked())
}

func TestInternal_SwitchInRootResolver(t *testing.T) {
	i := newInternal()
	require.NoError(t, i.AddDependencyResolver(singleton("code"), false))

	root := dbconfig.NewRootResolver()
	root.AddDefaultResolver(resolve.Singleton(connection.Service, connection.Factory(connection.NewPostgres("host=shared")), nil))
	require.NoError(t, i.SwitchInRootResolver(root))

	assert.Same(t, root, i.RootResolver())
	assert.Equal(t, "code", pluralizer(t, i.DependencyResolver()))
	f, err := resolve.Get(i.DependencyResolver(), connection.Service, nil)
	require.NoError(t, err)
	assert.Equal(t, "host=shared", f.(*connection.Postgres).Base())

	require.ErrorIs(t, i.SwitchInRootResolver(nil), dbconfig.ErrNilRootResolver)
	assert.Same(t, root, i.RootResolver())
	require.NoError(t, i.AddDefaultResolver(singleton("default")))
}

func TestInternal_ResolverSnapshot(t *testing.T) {
	i := newInternal(dbconfig.WithAppConfigResolver(singleton("app")))
	require.NoError(t, i.AddDependencyResolver(singleton("code"), false))

	snap := i.ResolverSnapshot()
	assert.Equal(t, "app", pluralizer(t, snap))

	require.NoError(t, i.AddDependencyResolver(singleton("later"), true))
	assert.Equal(t, "later", pluralizer(t, i.DependencyResolver()))
	assert.Equal(t, "app", pluralizer(t, snap))
}

func TestReplaceService(t *testing.T) {
	i := newInternal(dbconfig.WithAppConfigResolver(singleton("app")))
	dbconfig.SetLoadedHook(i, func(a *dbconfig.LoadedEventArgs) error {
		return dbconfig.ReplaceService(a, pluralization.Service, func(p pluralization.Pluralizer, _ any) pluralization.Pluralizer {
			return word(p.Pluralize("") + "+wrapped")
		})
	})
	require.NoError(t, i.Lock())
	assert.Equal(t, "app+wrapped", pluralizer(t, i.DependencyResolver()))
}
