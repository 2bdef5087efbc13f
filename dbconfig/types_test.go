package dbconfig_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/dbconfig"
	"github.com/deep-rent/ormconf/interception"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

func TestFinder_TryFindConfigurationType(t *testing.T) {
	concrete := &dbconfig.ConfigurationType{Name: "Concrete"}
	other := &dbconfig.ConfigurationType{Name: "Other"}
	abstract := &dbconfig.ConfigurationType{Name: "Abstract", Abstract: true}
	generic := &dbconfig.ConfigurationType{Name: "Generic", Generic: true}
	null := &dbconfig.ConfigurationType{Name: "Null", Null: true}

	module := func(types ...*dbconfig.ConfigurationType) *dbconfig.Module {
		m := dbconfig.NewModule("app")
		for _, t := range types {
			m.AddConfiguration(t)
		}
		return m
	}

	tests := []struct {
		name    string
		module  *dbconfig.Module
		ctx     *dbconfig.ContextType
		want    *dbconfig.ConfigurationType
		wantErr error
	}{
		{name: "nil module"},
		{name: "empty", module: module()},
		{name: "single", module: module(concrete), want: concrete},
		{name: "ignores non-concrete", module: module(abstract, generic, null, dbconfig.Base, concrete), want: concrete},
		{name: "multiple", module: module(concrete, other), wantErr: dbconfig.ErrMultipleConfigsInAssembly},
		{
			name:   "context wins",
			module: module(concrete, other),
			ctx:    &dbconfig.ContextType{Name: "Blog", Configuration: other},
			want:   other,
		},
		{
			name:   "null marker",
			module: module(concrete),
			ctx:    &dbconfig.ContextType{Name: "Blog", Configuration: null},
		},
		{
			name:    "abstract marker",
			ctx:     &dbconfig.ContextType{Name: "Blog", Configuration: abstract},
			wantErr: dbconfig.ErrBadConfigurationType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dbconfig.Finder{}.TryFindConfigurationType(tt.module, tt.ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestFinder_TryCreateConfiguration(t *testing.T) {
	m := dbconfig.NewModule("app")
	typ := m.AddConfiguration(&dbconfig.ConfigurationType{Name: "App"})

	c, err := dbconfig.Finder{}.TryCreateConfiguration(m, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Same(t, typ, c.Type())
	assert.Equal(t, "app.App", typ.String())

	c, err = dbconfig.Finder{}.TryCreateConfiguration(dbconfig.NewModule("empty"), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCatalog(t *testing.T) {
	c := dbconfig.NewCatalog()

	base, err := c.Configuration("DbConfiguration")
	require.NoError(t, err)
	assert.Same(t, dbconfig.Base, base)

	m := dbconfig.NewModule("shop")
	typ := m.AddConfiguration(&dbconfig.ConfigurationType{Name: "Shop"})
	c.RegisterConfiguration(typ)
	for _, name := range []string{"Shop", "shop.Shop"} {
		got, err := c.Configuration(name)
		require.NoError(t, err)
		assert.Same(t, typ, got)
	}

	ctor, err := c.Provider(provider.Postgres)
	require.NoError(t, err)
	assert.Equal(t, provider.Postgres, ctor().InvariantName())

	fc, err := c.ConnectionFactory(provider.Postgres)
	require.NoError(t, err)
	f, err := fc([]string{"host=catalog"})
	require.NoError(t, err)
	assert.Equal(t, "host=catalog", f.(*connection.Postgres).Base())

	ic, err := c.Interceptor("DatabaseLogger")
	require.NoError(t, err)
	i, err := ic([]string{filepath.Join(t.TempDir(), "db.log")})
	require.NoError(t, err)
	assert.IsType(t, &interception.LogFormatter{}, i)

	_, err = c.Provider("nope")
	assert.ErrorIs(t, err, dbconfig.ErrUnknownType)
	_, err = c.Configuration("nope")
	assert.ErrorIs(t, err, dbconfig.ErrUnknownType)
}

func TestAppConfigResolver(t *testing.T) {
	catalog := dbconfig.NewCatalog()
	created := 0
	catalog.RegisterProvider("custom", func() provider.Services {
		created++
		return provider.NewServices("custom", singleton("from provider"))
	})
	rec := &recorder{}
	catalog.RegisterInterceptor("Recorder", func([]string) (interception.Interceptor, error) {
		return rec, nil
	})

	cfg := &appconfig.AppConfig{
		DefaultConnectionFactory: &appconfig.TypeSpec{Type: provider.Postgres, Parameters: []string{"host=file"}},
		Providers:                appconfig.Providers{{InvariantName: "custom", Type: "custom"}},
		Interceptors:             []appconfig.TypeSpec{{Type: "Recorder"}},
	}
	i := newInternal()
	r := dbconfig.NewAppConfigResolver(cfg, i, catalog)

	f, err := resolve.Get(r, connection.Service, nil)
	require.NoError(t, err)
	assert.Equal(t, "host=file", f.(*connection.Postgres).Base())
	again, err := resolve.Get(r, connection.Service, nil)
	require.NoError(t, err)
	assert.Same(t, f, again)

	s, err := resolve.Get(r, provider.ServicesService, "custom")
	require.NoError(t, err)
	require.NotNil(t, s)
	_, err = resolve.Get(r, provider.ServicesService, "custom")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, "from provider", pluralizer(t, i.RootResolver()), "provider services become defaults")

	missing, err := r.GetService(provider.ServicesService, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := resolve.GetAll(r, interception.Service, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Same(t, rec, all[0])
	one, err := r.GetService(interception.Service, nil)
	require.NoError(t, err)
	assert.Nil(t, one)

	t.Run("unknown type", func(t *testing.T) {
		bad := &appconfig.AppConfig{DefaultConnectionFactory: &appconfig.TypeSpec{Type: "mysql"}}
		r := dbconfig.NewAppConfigResolver(bad, nil, nil)
		_, err := r.GetService(connection.Service, nil)
		assert.ErrorIs(t, err, dbconfig.ErrUnknownType)
	})
}
