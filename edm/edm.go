// Package edm is a minimal entity data model: properties and columns with
// their facets, entity types and tables, and provider manifests describing
// the store types a provider supports.
//
// Conceptual properties and storage columns are both represented by
// Property. A configuration object may be associated with each property
// through SetConfiguration; model building uses it to merge configurations
// coming from different sources.
package edm

import (
	"maps"
	"strconv"
)

// ConcurrencyMode controls whether a property takes part in optimistic
// concurrency checks.
type ConcurrencyMode uint8

const (
	ConcurrencyNone ConcurrencyMode = iota
	ConcurrencyFixed
)

// String returns the name of the mode.
func (m ConcurrencyMode) String() string {
	switch m {
	case ConcurrencyFixed:
		return "Fixed"
	default:
		return "None"
	}
}

// StoreGeneratedPattern describes how the database generates a value.
type StoreGeneratedPattern uint8

const (
	GeneratedNone StoreGeneratedPattern = iota
	GeneratedIdentity
	GeneratedComputed
)

// String returns the name of the pattern.
func (p StoreGeneratedPattern) String() string {
	switch p {
	case GeneratedIdentity:
		return "Identity"
	case GeneratedComputed:
		return "Computed"
	default:
		return "None"
	}
}

// Property is a conceptual property or a storage column.
type Property struct {
	Name                  string
	DeclaringType         string
	TypeName              string
	Nullable              bool
	ConcurrencyMode       ConcurrencyMode
	StoreGeneratedPattern StoreGeneratedPattern
	MaxLength             *int
	IsMaxLength           bool
	FixedLength           *bool
	Unicode               *bool
	Precision             *uint8
	Scale                 *uint8
	Order                 *int

	preferred   string
	annotations map[string]any
	config      any
}

// NewProperty creates a nullable property whose preferred name is name.
func NewProperty(name, typeName string) *Property {
	return &Property{
		Name:      name,
		TypeName:  typeName,
		Nullable:  true,
		preferred: name,
	}
}

// PreferredName returns the name the property had before it was made
// unique within its declaring type.
func (p *Property) PreferredName() string {
	if p.preferred == "" {
		return p.Name
	}
	return p.preferred
}

// SetPreferredName overrides the preferred name.
func (p *Property) SetPreferredName(name string) { p.preferred = name }

// Annotation returns the annotation of the given name.
func (p *Property) Annotation(name string) (any, bool) {
	v, ok := p.annotations[name]
	return v, ok
}

// AddAnnotation sets an annotation, replacing any previous value.
func (p *Property) AddAnnotation(name string, value any) {
	if p.annotations == nil {
		p.annotations = make(map[string]any)
	}
	p.annotations[name] = value
}

// Annotations returns a copy of all annotations.
func (p *Property) Annotations() map[string]any {
	return maps.Clone(p.annotations)
}

// Configuration returns the configuration associated with the property.
func (p *Property) Configuration() any { return p.config }

// SetConfiguration associates a configuration with the property.
func (p *Property) SetConfiguration(c any) { p.config = c }

// EntityType is an entity type or, in the storage model, a table.
type EntityType struct {
	Name       string
	Properties []*Property
}

// NewEntityType creates an entity type declaring the given properties.
func NewEntityType(name string, props ...*Property) *EntityType {
	t := &EntityType{Name: name}
	for _, p := range props {
		t.Add(p)
	}
	return t
}

// Add appends p and records t as its declaring type.
func (t *EntityType) Add(p *Property) {
	p.DeclaringType = t.Name
	t.Properties = append(t.Properties, p)
}

// Property returns the property with the given name, or nil.
func (t *EntityType) Property(name string) *Property {
	for _, p := range t.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// UniquifyName returns name, or name followed by the smallest positive
// number that makes it distinct from every property in props.
func UniquifyName(props []*Property, name string) string {
	taken := func(n string) bool {
		for _, p := range props {
			if p.Name == n {
				return true
			}
		}
		return false
	}
	unique := name
	for i := 1; taken(unique); i++ {
		unique = name + strconv.Itoa(i)
	}
	return unique
}
