package modelcache_test

import (
	"errors"
	"testing"

	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/modelcache"
)

type source struct {
	name, provider string
}

func (s source) ContextName() string  { return s.name }
func (s source) ProviderName() string { return s.provider }

type tenant struct {
	source
	schema string
}

func (t tenant) CacheKey() string { return t.schema }

func TestDefaultKey(t *testing.T) {
	a := modelcache.DefaultKey(source{"Blog", "postgres"})
	b := modelcache.DefaultKey(source{"Blog", "postgres"})
	c := modelcache.DefaultKey(source{"Blog", "sqlite"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "Blog;postgres", a.String())

	k := modelcache.DefaultKey(tenant{source{"Blog", "postgres"}, "acme"})
	assert.Equal(t, "acme", k.Custom)
	assert.NotEqual(t, a, k)
	assert.Equal(t, "Blog;postgres;acme", k.String())
}

func newFS(t *testing.T) vfs.FileSystem {
	t.Helper()
	fs, err := osfs.NewTempFileSystem()
	require.NoError(t, err)
	t.Cleanup(func() { vfs.Cleanup(fs) })
	return fs
}

func TestFileStore(t *testing.T) {
	fs := newFS(t)
	s, err := modelcache.NewFileStore(fs, "models")
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, ok, err := s.TryLoad("Blog")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		model := []byte("<edmx>blog</edmx>")
		require.NoError(t, s.Save("app/Blog", model))

		got, ok, err := s.TryLoad("app/Blog")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model, got)
	})

	t.Run("corrupt", func(t *testing.T) {
		require.NoError(t, s.Save("Shop", []byte("model")))
		data, err := vfs.ReadFile(fs, s.Path("Shop"))
		require.NoError(t, err)
		data[len(data)-1] ^= 0xff
		require.NoError(t, vfs.WriteFile(fs, s.Path("Shop"), data, 0o600))

		_, _, err = s.TryLoad("Shop")
		assert.True(t, errors.Is(err, modelcache.ErrCorrupt))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.Remove("app/Blog"))
		require.NoError(t, s.Remove("app/Blog"))
		_, ok, err := s.TryLoad("app/Blog")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
