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

// Package property holds the configuration of primitive properties and the
// rules for merging configurations that come from different sources.
//
// Several sources may configure the same property: attributes, the fluent
// API and conventions. Each applies its Configuration to the model node with
// Configure (conceptual model) or ConfigureColumn (storage model). When the
// node already carries a configuration, the two are merged: unspecified
// settings never conflict, the more derived Kind determines the shape of the
// result, and disagreeing settings are reported as a *ConflictError unless
// one side is marked overridable.
//
// Unspecified settings are nil pointers:
//
//	c := property.New(property.String)
//	c.IsNullable = property.Ptr(false)
//	c.Length.MaxLength = property.Ptr(128)
//	err := c.Configure(p)
package property

import (
	"errors"
	"fmt"
	"maps"
	"regexp"

	"github.com/deep-rent/ormconf/edm"
)

// Kind discriminates the facets a Configuration carries.
type Kind uint8

const (
	// Primitive carries only the settings common to all properties.
	Primitive Kind = iota
	// Length adds length facets. String and Binary derive from it.
	Length
	// String adds the Unicode facet.
	String
	// Binary adds the row version flag.
	Binary
	// DateTime adds a precision facet.
	DateTime
	// Decimal adds precision and scale facets.
	Decimal
)

var kindNames = [...]string{"Primitive", "Length", "String", "Binary", "DateTime", "Decimal"}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func (k Kind) base() (Kind, bool) {
	switch k {
	case String, Binary:
		return Length, true
	case Length, DateTime, Decimal:
		return Primitive, true
	default:
		return 0, false
	}
}

// AssignableFrom reports whether a configuration of kind o is also of kind
// k, that is, whether o equals k or derives from it.
func (k Kind) AssignableFrom(o Kind) bool {
	for {
		if o == k {
			return true
		}
		b, ok := o.base()
		if !ok {
			return false
		}
		o = b
	}
}

func (k Kind) hasLength() bool { return Length.AssignableFrom(k) }

// Overridable marks the parts of a configuration that may be overridden by
// a conflicting configuration instead of failing the merge.
type Overridable uint8

const (
	OverridableInCSpace Overridable = 1 << iota
	OverridableInSSpace

	OverridableNone Overridable = 0
)

// RowVersionType is the store type of binary row version columns.
const RowVersionType = "rowversion"

var (
	// ErrConflictingPropertyConfiguration indicates incompatible
	// configurations of a conceptual property.
	ErrConflictingPropertyConfiguration = errors.New("conflicting property configuration")
	// ErrConflictingColumnConfiguration indicates incompatible configurations
	// of a storage column.
	ErrConflictingColumnConfiguration = errors.New("conflicting column configuration")
	// ErrBadAnnotationName indicates an annotation name that is not a valid
	// undotted identifier.
	ErrBadAnnotationName = errors.New("invalid annotation name")
	// ErrNotAssignable is returned by As when the target kind does not
	// derive from the configuration's kind.
	ErrNotAssignable = errors.New("kind not assignable")
)

// ConflictError lists every setting two configurations disagree on.
type ConflictError struct {
	// Err is ErrConflictingPropertyConfiguration or
	// ErrConflictingColumnConfiguration.
	Err error
	// Name is the property or column name.
	Name string
	// Owner is the declaring type or table name.
	Owner string
	// Details holds one line per conflict, each prefixed with "\n\t".
	Details string
}

func (e *ConflictError) Error() string {
	what, owner := "property", "type"
	if errors.Is(e.Err, ErrConflictingColumnConfiguration) {
		what, owner = "column", "table"
	}
	return fmt.Sprintf(
		"conflicting configuration settings were specified for %s '%s' on %s '%s':%s",
		what, e.Name, owner, e.Owner, e.Details,
	)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// LengthFacets are the facets of Length, String and Binary configurations.
type LengthFacets struct {
	IsFixedLength *bool
	MaxLength     *int
	IsMaxLength   *bool
}

// StringFacets are the facets of String configurations.
type StringFacets struct {
	IsUnicode *bool
}

// BinaryFacets are the facets of Binary configurations.
type BinaryFacets struct {
	IsRowVersion *bool
}

// DateTimeFacets are the facets of DateTime configurations.
type DateTimeFacets struct {
	Precision *uint8
}

// DecimalFacets are the facets of Decimal configurations.
type DecimalFacets struct {
	Precision *uint8
	Scale     *uint8
}

// Configuration configures a primitive property and its column. The facet
// groups are only honoured when the Kind carries them.
type Configuration struct {
	kind Kind

	// Conceptual model settings.
	IsNullable      *bool
	ConcurrencyMode *edm.ConcurrencyMode
	GeneratedOption *edm.StoreGeneratedPattern

	// Storage model settings.
	ColumnName    *string
	ParameterName *string
	ColumnOrder   *int
	ColumnType    *string

	Overridable Overridable

	Length   LengthFacets
	String   StringFacets
	Binary   BinaryFacets
	DateTime DateTimeFacets
	Decimal  DecimalFacets

	annotations map[string]any
}

// New returns an empty configuration of the given kind, overridable in both
// the conceptual and the storage model.
func New(kind Kind) *Configuration {
	return &Configuration{
		kind:        kind,
		Overridable: OverridableInCSpace | OverridableInSSpace,
	}
}

// Ptr returns a pointer to v, for setting configuration values.
func Ptr[T any](v T) *T { return &v }

// Kind returns the kind of the configuration.
func (c *Configuration) Kind() Kind { return c.kind }

// As returns a copy of c promoted to kind, which must derive from c's kind.
func (c *Configuration) As(kind Kind) (*Configuration, error) {
	if !c.kind.AssignableFrom(kind) {
		return nil, fmt.Errorf("%w: %s to %s", ErrNotAssignable, c.kind, kind)
	}
	p := New(kind)
	p.CopyFrom(c)
	return p, nil
}

var undotted = regexp.MustCompile(`^[\p{L}\p{Nl}][\p{L}\p{Nl}\p{Nd}\p{Mn}\p{Mc}\p{Pc}\p{Cf}]*$`)

// SetAnnotation sets a custom annotation that is copied to the column with
// annotation.Prefix. A nil value still counts as set.
func (c *Configuration) SetAnnotation(name string, value any) error {
	if !undotted.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadAnnotationName, name)
	}
	if c.annotations == nil {
		c.annotations = make(map[string]any)
	}
	c.annotations[name] = value
	return nil
}

// Annotation returns the annotation of the given name.
func (c *Configuration) Annotation(name string) (any, bool) {
	v, ok := c.annotations[name]
	return v, ok
}

// Annotations returns a copy of all annotations.
func (c *Configuration) Annotations() map[string]any {
	return maps.Clone(c.annotations)
}

// Clone returns a deep copy of c.
func (c *Configuration) Clone() *Configuration {
	d := &Configuration{kind: c.kind}
	d.CopyFrom(c)
	return d
}

// CopyFrom overwrites every setting of c that o also carries, whether or not
// o specifies it. Annotations are replaced.
func (c *Configuration) CopyFrom(o *Configuration) {
	if c == o {
		return
	}
	c.ColumnName = clonePtr(o.ColumnName)
	c.ParameterName = clonePtr(o.ParameterName)
	c.ColumnOrder = clonePtr(o.ColumnOrder)
	c.ColumnType = clonePtr(o.ColumnType)
	c.ConcurrencyMode = clonePtr(o.ConcurrencyMode)
	c.GeneratedOption = clonePtr(o.GeneratedOption)
	c.IsNullable = clonePtr(o.IsNullable)
	c.Overridable = o.Overridable
	c.annotations = maps.Clone(o.annotations)

	if c.kind.hasLength() && o.kind.hasLength() {
		c.Length = LengthFacets{
			IsFixedLength: clonePtr(o.Length.IsFixedLength),
			MaxLength:     clonePtr(o.Length.MaxLength),
			IsMaxLength:   clonePtr(o.Length.IsMaxLength),
		}
	}
	if c.kind == String && o.kind == String {
		c.String = StringFacets{IsUnicode: clonePtr(o.String.IsUnicode)}
	}
	if c.kind == Binary && o.kind == Binary {
		c.Binary = BinaryFacets{IsRowVersion: clonePtr(o.Binary.IsRowVersion)}
	}
	if c.kind == DateTime && o.kind == DateTime {
		c.DateTime = DateTimeFacets{Precision: clonePtr(o.DateTime.Precision)}
	}
	if c.kind == Decimal && o.kind == Decimal {
		c.Decimal = DecimalFacets{
			Precision: clonePtr(o.Decimal.Precision),
			Scale:     clonePtr(o.Decimal.Scale),
		}
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
