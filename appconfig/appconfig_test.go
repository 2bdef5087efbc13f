package appconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/codec"
	"github.com/deep-rent/ormconf/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `
configurationType: Sample
defaultConnectionFactory:
  type: postgres
  parameters: ["host=${DB_HOST} sslmode=disable"]
providers:
  - invariantName: postgres
    type: postgres
interceptors:
  - type: DatabaseLogger
    parameters: ["${LOG_DIR}/db.log"]
connectionStrings:
  Blog: host=db dbname=blog
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func vars(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadWith(t *testing.T) {
	path := write(t, "ormconf.yaml", document)
	c, err := appconfig.LoadWith(path, vars(map[string]string{
		"DB_HOST": "db.internal",
		"LOG_DIR": "/var/log",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Sample", c.ConfigurationType)
	require.NotNil(t, c.DefaultConnectionFactory)
	assert.Equal(t, appconfig.TypeSpec{
		Type:       "postgres",
		Parameters: []string{"host=db.internal sslmode=disable"},
	}, *c.DefaultConnectionFactory)
	assert.Equal(t, []appconfig.TypeSpec{{
		Type:       "DatabaseLogger",
		Parameters: []string{"/var/log/db.log"},
	}}, c.Interceptors)

	typ, ok := c.ProviderType("postgres")
	assert.True(t, ok)
	assert.Equal(t, "postgres", typ)
	_, ok = c.ProviderType("sqlite")
	assert.False(t, ok)

	cs, ok := c.ConnectionString("Blog")
	assert.True(t, ok)
	assert.Equal(t, "host=db dbname=blog", cs)
}

func TestLoad(t *testing.T) {
	t.Setenv("ORMCONF_TEST_TYPE", "FromEnv")
	path := write(t, "ormconf.json", `{"configurationType": "${ORMCONF_TEST_TYPE}"}`)
	c, err := appconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", c.ConfigurationType)
}

func TestLoadErrors(t *testing.T) {
	t.Run("unsupported format", func(t *testing.T) {
		_, err := appconfig.Load(write(t, "ormconf.ini", ""))
		assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := appconfig.Load(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := appconfig.Load(write(t, "ormconf.json", "{"))
		assert.Error(t, err)
	})
	t.Run("bad substitution", func(t *testing.T) {
		_, err := appconfig.Load(write(t, "ormconf.json", `{"configurationType": "${"}`))
		assert.Error(t, err)
	})
}

func TestSave(t *testing.T) {
	in := &appconfig.AppConfig{
		ConfigurationType: "Sample",
		Providers:         appconfig.Providers{{InvariantName: "postgres", Type: "postgres"}},
		Interceptors:      []appconfig.TypeSpec{{Type: "DatabaseLogger"}},
	}
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, appconfig.Save(path, in))
			out, err := appconfig.Load(path)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestFromEnv(t *testing.T) {
	base := &appconfig.AppConfig{
		ConfigurationType:        "Sample",
		DefaultConnectionFactory: &appconfig.TypeSpec{Type: "postgres"},
	}
	lookup := func(m map[string]string) env.Option {
		return env.WithLookup(func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		})
	}

	c, err := appconfig.FromEnv(base, lookup(map[string]string{
		"ORMCONF_CONFIGURATION_TYPE":         "Other",
		"ORMCONF_DEFAULT_CONNECTION_FACTORY": "postgres:host=db;extra",
		"ORMCONF_PROVIDERS":                  "postgres=postgres, pgx=postgres",
		"ORMCONF_INTERCEPTORS":               "DatabaseLogger:/tmp/db.log",
		"ORMCONF_CONNECTION_STRINGS":         "Blog=host=db dbname=blog;Shop=host=shop",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Other", c.ConfigurationType)
	assert.Equal(t, &appconfig.TypeSpec{Type: "postgres", Parameters: []string{"host=db", "extra"}}, c.DefaultConnectionFactory)
	assert.Equal(t, appconfig.Providers{
		{InvariantName: "postgres", Type: "postgres"},
		{InvariantName: "pgx", Type: "postgres"},
	}, c.Providers)
	assert.Equal(t, []appconfig.TypeSpec{{Type: "DatabaseLogger", Parameters: []string{"/tmp/db.log"}}}, c.Interceptors)
	assert.Equal(t, appconfig.ConnectionStrings{"Blog": "host=db dbname=blog", "Shop": "host=shop"}, c.ConnectionStrings)

	// The base is left untouched.
	assert.Equal(t, "Sample", base.ConfigurationType)
	assert.Equal(t, &appconfig.TypeSpec{Type: "postgres"}, base.DefaultConnectionFactory)

	t.Run("nil base", func(t *testing.T) {
		c, err := appconfig.FromEnv(nil, lookup(nil))
		require.NoError(t, err)
		assert.Equal(t, &appconfig.AppConfig{}, c)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := appconfig.FromEnv(nil, lookup(map[string]string{"ORMCONF_PROVIDERS": "postgres"}))
		assert.Error(t, err)
	})
}

func TestClone(t *testing.T) {
	c := &appconfig.AppConfig{
		DefaultConnectionFactory: &appconfig.TypeSpec{Type: "postgres", Parameters: []string{"a"}},
		Interceptors:             []appconfig.TypeSpec{{Type: "x", Parameters: []string{"b"}}},
		ConnectionStrings:        appconfig.ConnectionStrings{"a": "b"},
	}
	d := c.Clone()
	assert.Equal(t, c, d)
	d.DefaultConnectionFactory.Parameters[0] = "changed"
	d.Interceptors[0].Parameters[0] = "changed"
	d.ConnectionStrings["a"] = "changed"
	assert.Equal(t, "a", c.DefaultConnectionFactory.Parameters[0])
	assert.Equal(t, "b", c.Interceptors[0].Parameters[0])
	assert.Equal(t, "b", c.ConnectionStrings["a"])
}
