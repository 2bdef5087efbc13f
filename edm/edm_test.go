package edm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/edm"
)

func TestUniquifyName(t *testing.T) {
	props := []*edm.Property{
		edm.NewProperty("Name", "text"),
		edm.NewProperty("Name1", "text"),
		edm.NewProperty("Title", "text"),
	}

	assert.Equal(t, "Other", edm.UniquifyName(props, "Other"))
	assert.Equal(t, "Title1", edm.UniquifyName(props, "Title"))
	assert.Equal(t, "Name2", edm.UniquifyName(props, "Name"))
	assert.Equal(t, "x", edm.UniquifyName(nil, "x"))
}

func TestEntityType(t *testing.T) {
	id := edm.NewProperty("Id", "int4")
	typ := edm.NewEntityType("Blog", id)

	assert.Equal(t, "Blog", id.DeclaringType)
	assert.Same(t, id, typ.Property("Id"))
	assert.Nil(t, typ.Property("Missing"))
}

func TestProperty(t *testing.T) {
	p := edm.NewProperty("Name", "text")
	assert.True(t, p.Nullable)
	assert.Equal(t, "Name", p.PreferredName())

	p.Name = "Name1"
	assert.Equal(t, "Name", p.PreferredName())

	p.AddAnnotation("a", 1)
	v, ok := p.Annotation("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	all := p.Annotations()
	delete(all, "a")
	_, ok = p.Annotation("a")
	assert.True(t, ok, "Annotations must return a copy")

	assert.Nil(t, p.Configuration())
	p.SetConfiguration("cfg")
	assert.Equal(t, "cfg", p.Configuration())
}

func TestManifest(t *testing.T) {
	m := edm.PostgresManifest()

	typ, ok := m.StoreType("VARCHAR")
	require.True(t, ok)
	assert.Equal(t, "varchar", typ.Name)
	assert.True(t, typ.HasFacet(edm.FacetMaxLength))
	assert.False(t, typ.HasFacet(edm.FacetUnicode))

	_, err := edm.StoreTypeFromName(m, "nvarchar")
	assert.ErrorIs(t, err, edm.ErrStoreTypeNotFound)
}

func TestEnums(t *testing.T) {
	assert.Equal(t, "Fixed", edm.ConcurrencyFixed.String())
	assert.Equal(t, "None", edm.ConcurrencyNone.String())
	assert.Equal(t, "Identity", edm.GeneratedIdentity.String())
	assert.Equal(t, "Computed", edm.GeneratedComputed.String())
	assert.Equal(t, "None", edm.GeneratedNone.String())
}
