package edm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Facet names used in store type descriptions.
const (
	FacetMaxLength   = "MaxLength"
	FacetFixedLength = "FixedLength"
	FacetUnicode     = "Unicode"
	FacetPrecision   = "Precision"
	FacetScale       = "Scale"
)

// ErrStoreTypeNotFound is returned when a manifest has no store type of
// the requested name.
var ErrStoreTypeNotFound = errors.New("store type not found")

// FacetDescription describes a facet a store type accepts.
type FacetDescription struct {
	Name     string
	Constant bool
}

// StoreType is a primitive type of the storage model.
type StoreType struct {
	Name   string
	Facets []FacetDescription
}

// HasFacet reports whether the store type accepts the named facet.
func (t StoreType) HasFacet(name string) bool {
	return slices.ContainsFunc(t.Facets, func(f FacetDescription) bool {
		return f.Name == name
	})
}

// Manifest describes the store types of a provider.
type Manifest interface {
	// Name identifies the manifest in error messages.
	Name() string
	// StoreTypes returns all store types.
	StoreTypes() []StoreType
	// StoreType finds a store type by name, ignoring case.
	StoreType(name string) (StoreType, bool)
}

// StoreTypeFromName is like Manifest.StoreType but fails if the type is
// unknown.
func StoreTypeFromName(m Manifest, name string) (StoreType, error) {
	t, ok := m.StoreType(name)
	if !ok {
		return StoreType{}, fmt.Errorf("%w: %q in manifest %s", ErrStoreTypeNotFound, name, m.Name())
	}
	return t, nil
}

// StaticManifest is a Manifest over a fixed list of store types.
type StaticManifest struct {
	name  string
	types []StoreType
}

// NewStaticManifest creates a manifest of the given store types.
func NewStaticManifest(name string, types ...StoreType) *StaticManifest {
	return &StaticManifest{name: name, types: slices.Clone(types)}
}

// Name implements Manifest.
func (m *StaticManifest) Name() string { return m.name }

// StoreTypes implements Manifest.
func (m *StaticManifest) StoreTypes() []StoreType { return slices.Clone(m.types) }

// StoreType implements Manifest.
func (m *StaticManifest) StoreType(name string) (StoreType, bool) {
	for _, t := range m.types {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return StoreType{}, false
}

func facets(names ...string) []FacetDescription {
	fs := make([]FacetDescription, len(names))
	for i, n := range names {
		fs[i] = FacetDescription{Name: n}
	}
	return fs
}

// PostgresManifest returns the manifest of the PostgreSQL provider.
func PostgresManifest() *StaticManifest {
	return NewStaticManifest("postgres",
		StoreType{Name: "text"},
		StoreType{Name: "varchar", Facets: facets(FacetMaxLength)},
		StoreType{Name: "bpchar", Facets: facets(FacetMaxLength, FacetFixedLength)},
		StoreType{Name: "bytea"},
		StoreType{Name: "bool"},
		StoreType{Name: "int2"},
		StoreType{Name: "int4"},
		StoreType{Name: "int8"},
		StoreType{Name: "float4"},
		StoreType{Name: "float8"},
		StoreType{Name: "numeric", Facets: facets(FacetPrecision, FacetScale)},
		StoreType{Name: "timestamp", Facets: facets(FacetPrecision)},
		StoreType{Name: "timestamptz", Facets: facets(FacetPrecision)},
		StoreType{Name: "uuid"},
		StoreType{Name: "xid"},
	)
}

var _ Manifest = (*StaticManifest)(nil)
