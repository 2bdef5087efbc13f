package property

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/deep-rent/ormconf/annotation"
	"github.com/deep-rent/ormconf/edm"
)

// FillFrom copies the settings of o that c leaves unspecified. inCSpace
// selects the conceptual or the storage settings; facets take part in both.
// Mergeable annotations present on both sides are merged. A part stays
// overridable only if it is overridable in o as well.
func (c *Configuration) FillFrom(o *Configuration, inCSpace bool) error {
	if c == o {
		return nil
	}
	if inCSpace {
		fill(&c.ConcurrencyMode, o.ConcurrencyMode)
		fill(&c.GeneratedOption, o.GeneratedOption)
		fill(&c.IsNullable, o.IsNullable)
		c.Overridable &= o.Overridable | ^OverridableInCSpace
	} else {
		fill(&c.ColumnName, o.ColumnName)
		fill(&c.ParameterName, o.ParameterName)
		fill(&c.ColumnOrder, o.ColumnOrder)
		fill(&c.ColumnType, o.ColumnType)
		for _, name := range slices.Sorted(maps.Keys(o.annotations)) {
			v := o.annotations[name]
			cur, ok := c.annotations[name]
			if !ok {
				if c.annotations == nil {
					c.annotations = make(map[string]any)
				}
				c.annotations[name] = v
				continue
			}
			if m, ok := cur.(annotation.Mergeable); ok {
				merged, err := m.MergeWith(v)
				if err != nil {
					return fmt.Errorf("merge annotation %q: %w", name, err)
				}
				c.annotations[name] = merged
			}
		}
		c.Overridable &= o.Overridable | ^OverridableInSSpace
	}

	if c.kind.hasLength() && o.kind.hasLength() {
		fill(&c.Length.IsFixedLength, o.Length.IsFixedLength)
		if c.Length.MaxLength == nil && c.Length.IsMaxLength == nil {
			c.Length.MaxLength = clonePtr(o.Length.MaxLength)
			c.Length.IsMaxLength = clonePtr(o.Length.IsMaxLength)
		}
	}
	if c.kind == String && o.kind == String {
		fill(&c.String.IsUnicode, o.String.IsUnicode)
	}
	if c.kind == Binary && o.kind == Binary {
		fill(&c.Binary.IsRowVersion, o.Binary.IsRowVersion)
	}
	if c.kind == DateTime && o.kind == DateTime {
		fill(&c.DateTime.Precision, o.DateTime.Precision)
	}
	if c.kind == Decimal && o.kind == Decimal {
		fill(&c.Decimal.Precision, o.Decimal.Precision)
		fill(&c.Decimal.Scale, o.Decimal.Scale)
	}
	return nil
}

// MakeCompatibleWith clears every setting of c that o specifies, so that a
// subsequent FillFrom lets o win. Annotations o also carries are dropped
// unless they are mergeable and compatible.
func (c *Configuration) MakeCompatibleWith(o *Configuration, inCSpace bool) {
	if c == o {
		return
	}
	if inCSpace {
		unset(&c.ConcurrencyMode, o.ConcurrencyMode)
		unset(&c.GeneratedOption, o.GeneratedOption)
		unset(&c.IsNullable, o.IsNullable)
	} else {
		unset(&c.ColumnName, o.ColumnName)
		unset(&c.ParameterName, o.ParameterName)
		unset(&c.ColumnOrder, o.ColumnOrder)
		unset(&c.ColumnType, o.ColumnType)
		for name, v := range o.annotations {
			cur, ok := c.annotations[name]
			if !ok {
				continue
			}
			if m, ok := cur.(annotation.Mergeable); ok {
				if compatible, _ := m.IsCompatibleWith(v); compatible {
					continue
				}
			}
			delete(c.annotations, name)
		}
	}

	if c.kind.hasLength() && o.kind.hasLength() {
		unset(&c.Length.IsFixedLength, o.Length.IsFixedLength)
		unset(&c.Length.MaxLength, o.Length.MaxLength)
		unset(&c.Length.IsMaxLength, o.Length.IsMaxLength)
	}
	if c.kind == String && o.kind == String {
		unset(&c.String.IsUnicode, o.String.IsUnicode)
	}
	if c.kind == Binary && o.kind == Binary {
		unset(&c.Binary.IsRowVersion, o.Binary.IsRowVersion)
	}
	if c.kind == DateTime && o.kind == DateTime {
		unset(&c.DateTime.Precision, o.DateTime.Precision)
	}
	if c.kind == Decimal && o.kind == Decimal {
		unset(&c.Decimal.Precision, o.Decimal.Precision)
		unset(&c.Decimal.Scale, o.Decimal.Scale)
	}
}

// IsCompatible reports whether c and o agree on every setting both specify.
// If not, the message lists each disagreement on its own line prefixed with
// "\n\t". A nil o is always compatible.
func (c *Configuration) IsCompatible(o *Configuration, inCSpace bool) (bool, string) {
	if o == nil || c == o {
		return true, ""
	}
	var b strings.Builder
	ok := true
	if inCSpace {
		ok = compatible(&b, "IsNullable", c.IsNullable, o.IsNullable) && ok
		ok = compatible(&b, "ConcurrencyMode", c.ConcurrencyMode, o.ConcurrencyMode) && ok
		ok = compatible(&b, "DatabaseGeneratedOption", c.GeneratedOption, o.GeneratedOption) && ok
	} else {
		ok = compatible(&b, "ColumnName", c.ColumnName, o.ColumnName) && ok
		ok = compatible(&b, "ParameterName", c.ParameterName, o.ParameterName) && ok
		ok = compatible(&b, "ColumnOrder", c.ColumnOrder, o.ColumnOrder) && ok
		ok = compatible(&b, "ColumnType", c.ColumnType, o.ColumnType) && ok
		ok = c.annotationsCompatible(&b, o) && ok
	}

	if c.kind.hasLength() && o.kind.hasLength() {
		ok = compatible(&b, "IsFixedLength", c.Length.IsFixedLength, o.Length.IsFixedLength) && ok
		ok = compatible(&b, "IsMaxLength", c.Length.IsMaxLength, o.Length.IsMaxLength) && ok
		ok = compatible(&b, "MaxLength", c.Length.MaxLength, o.Length.MaxLength) && ok
	}
	if c.kind == String && o.kind == String {
		ok = compatible(&b, "IsUnicode", c.String.IsUnicode, o.String.IsUnicode) && ok
	}
	if c.kind == Binary && o.kind == Binary {
		ok = compatible(&b, "IsRowVersion", c.Binary.IsRowVersion, o.Binary.IsRowVersion) && ok
	}
	if c.kind == DateTime && o.kind == DateTime {
		ok = compatible(&b, "Precision", c.DateTime.Precision, o.DateTime.Precision) && ok
	}
	if c.kind == Decimal && o.kind == Decimal {
		ok = compatible(&b, "Precision", c.Decimal.Precision, o.Decimal.Precision) && ok
		ok = compatible(&b, "Scale", c.Decimal.Scale, o.Decimal.Scale) && ok
	}
	return ok, b.String()
}

func (c *Configuration) annotationsCompatible(b *strings.Builder, o *Configuration) bool {
	ok := true
	for _, name := range slices.Sorted(maps.Keys(c.annotations)) {
		w, found := o.annotations[name]
		if !found {
			continue
		}
		v := c.annotations[name]
		if m, isMergeable := v.(annotation.Mergeable); isMergeable {
			if compatible, msg := m.IsCompatibleWith(w); !compatible {
				ok = false
				b.WriteString("\n\t" + msg)
			}
		} else if !reflect.DeepEqual(v, w) {
			ok = false
			fmt.Fprintf(b, "\n\tannotation '%s' = %v conflicts with annotation '%s' = %v", name, v, name, w)
		}
	}
	return ok
}

// mergeWithExisting merges c with the configuration already attached to p.
// The result is the configuration to apply, which may be the existing one.
func (c *Configuration) mergeWithExisting(
	p *edm.Property,
	inCSpace, fillFromExisting bool,
	conflict func(details string) error,
) (*Configuration, error) {
	existing, _ := p.Configuration().(*Configuration)
	if existing == nil {
		return c, nil
	}
	space := OverridableInSSpace
	if inCSpace {
		space = OverridableInCSpace
	}
	if existing.Overridable&space != 0 || fillFromExisting {
		return existing.overrideFrom(c, inCSpace)
	}
	if c.Overridable&space != 0 {
		return c.overrideFrom(existing, inCSpace)
	}
	if ok, details := existing.IsCompatible(c, inCSpace); !ok {
		return nil, conflict(details)
	}
	return c.overrideFrom(existing, inCSpace)
}

// overrideFrom lets o win over c. The more derived of the two kinds
// determines which instance carries the result.
func (c *Configuration) overrideFrom(o *Configuration, inCSpace bool) (*Configuration, error) {
	if o.kind.AssignableFrom(c.kind) {
		c.MakeCompatibleWith(o, inCSpace)
		if err := c.FillFrom(o, inCSpace); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := o.FillFrom(c, inCSpace); err != nil {
		return nil, err
	}
	return o, nil
}

func fill[T any](dst **T, src *T) {
	if *dst == nil {
		*dst = clonePtr(src)
	}
}

func unset[T any](dst **T, other *T) {
	if other != nil {
		*dst = nil
	}
}

func compatible[T comparable](b *strings.Builder, name string, v, w *T) bool {
	if v == nil || w == nil || *v == *w {
		return true
	}
	fmt.Fprintf(b, "\n\t%s = %v conflicts with %s = %v", name, *v, name, *w)
	return false
}
