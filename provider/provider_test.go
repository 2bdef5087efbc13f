package provider_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

func TestServicesResolver(t *testing.T) {
	reg := provider.NewRegistry()
	r := provider.NewServicesResolver(reg)

	t.Run("known provider", func(t *testing.T) {
		s, err := resolve.Get(r, provider.ServicesService, provider.Postgres)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, provider.Postgres, s.InvariantName())

		again, err := resolve.Get(r, provider.ServicesService, provider.Postgres)
		require.NoError(t, err)
		assert.Same(t, s, again)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.GetService(provider.ServicesService, "oracle")
		assert.ErrorIs(t, err, provider.ErrNoProviderFound)
		assert.Contains(t, err.Error(), `"oracle"`)
	})

	t.Run("invalid key", func(t *testing.T) {
		for _, key := range []any{nil, "", 42} {
			_, err := r.GetService(provider.ServicesService, key)
			assert.ErrorIs(t, err, resolve.ErrInvalidKey)
		}
	})

	t.Run("other service", func(t *testing.T) {
		v, err := r.GetService(provider.FactoryService, provider.Postgres)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("registered provider", func(t *testing.T) {
		reg.Register("custom", func() provider.Services { return provider.NewServices("custom") })
		assert.Equal(t, []string{"custom", provider.Postgres}, reg.Names())
		s, err := resolve.Get(r, provider.ServicesService, "custom")
		require.NoError(t, err)
		assert.Equal(t, "custom", s.InvariantName())
	})
}

func TestPostgresServices(t *testing.T) {
	s := provider.NewPostgresServices()
	f, err := resolve.Get(s, provider.FactoryService, provider.Postgres)
	require.NoError(t, err)
	assert.Equal(t, provider.DriverFactory{Name: provider.Postgres}, f)

	s.AddDependencyResolver(resolve.Singleton[provider.Factory](
		provider.FactoryService, provider.DriverFactory{Name: "override"}, nil,
	))
	f, err = resolve.Get(s, provider.FactoryService, provider.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "override", f.InvariantName())
}

func TestFactoryResolver(t *testing.T) {
	r := provider.NewFactoryResolver()

	f, err := resolve.Get(r, provider.FactoryService, provider.Postgres)
	require.NoError(t, err)
	assert.Equal(t, provider.Postgres, f.InvariantName())

	_, err = r.GetService(provider.FactoryService, "no-such-driver")
	assert.ErrorIs(t, err, provider.ErrNoProviderFound)
}

func TestInvariantNameResolver(t *testing.T) {
	r := provider.NewInvariantNameResolver()

	name, err := resolve.Get(r, provider.InvariantNameService, provider.DriverFactory{Name: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", name)

	_, err = r.GetService(provider.InvariantNameService, "postgres")
	assert.ErrorIs(t, err, resolve.ErrInvalidKey)
}

func TestDriverResolver(t *testing.T) {
	r := provider.NewDriverResolver()

	// sql.Open does not connect, so no server is needed.
	db, err := sql.Open(provider.Postgres, "host=localhost dbname=none sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f, err := r.ResolveFactory(db)
	require.NoError(t, err)
	assert.Equal(t, provider.Postgres, f.InvariantName())

	_, err = r.ResolveFactory(nil)
	assert.Error(t, err)
}
