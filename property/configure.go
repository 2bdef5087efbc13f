package property

import (
	"strings"

	"github.com/deep-rent/ormconf/annotation"
	"github.com/deep-rent/ormconf/edm"
)

// Configure applies the conceptual model settings of c to p. A
// configuration already attached to p is merged with a copy of c first, and
// the merged result is attached to p. c itself is not modified.
func (c *Configuration) Configure(p *edm.Property) error {
	merged, err := c.Clone().mergeWithExisting(p, true, false, func(details string) error {
		return &ConflictError{
			Err:     ErrConflictingPropertyConfiguration,
			Name:    p.Name,
			Owner:   p.DeclaringType,
			Details: details,
		}
	})
	if err != nil {
		return err
	}
	merged.configureProperty(p)
	return nil
}

func (c *Configuration) configureProperty(p *edm.Property) {
	c.applyRowVersion()

	if c.IsNullable != nil {
		p.Nullable = *c.IsNullable
	}
	if c.ConcurrencyMode != nil {
		p.ConcurrencyMode = *c.ConcurrencyMode
	}
	if c.GeneratedOption != nil {
		p.StoreGeneratedPattern = *c.GeneratedOption
		if *c.GeneratedOption == edm.GeneratedIdentity {
			p.Nullable = false
		}
	}

	if c.kind.hasLength() {
		if c.Length.IsMaxLength != nil {
			p.IsMaxLength = *c.Length.IsMaxLength
		}
		if c.Length.MaxLength != nil {
			p.MaxLength = clonePtr(c.Length.MaxLength)
		}
		if c.Length.IsFixedLength != nil {
			p.FixedLength = clonePtr(c.Length.IsFixedLength)
		}
	}
	switch c.kind {
	case String:
		if c.String.IsUnicode != nil {
			p.Unicode = clonePtr(c.String.IsUnicode)
		}
	case DateTime:
		if c.DateTime.Precision != nil {
			p.Precision = clonePtr(c.DateTime.Precision)
		}
	case Decimal:
		if c.Decimal.Precision != nil {
			p.Precision = clonePtr(c.Decimal.Precision)
		}
		if c.Decimal.Scale != nil {
			p.Scale = clonePtr(c.Decimal.Scale)
		}
	}

	p.SetConfiguration(c)
}

// applyRowVersion fills in the settings a row version implies.
func (c *Configuration) applyRowVersion() {
	if c.kind != Binary || c.Binary.IsRowVersion == nil {
		return
	}
	fill(&c.ColumnType, Ptr(RowVersionType))
	fill(&c.ConcurrencyMode, Ptr(edm.ConcurrencyFixed))
	fill(&c.GeneratedOption, Ptr(edm.GeneratedComputed))
	fill(&c.IsNullable, Ptr(false))
	fill(&c.Length.MaxLength, Ptr(8))
}

// Column pairs a storage column with its table.
type Column struct {
	Property *edm.Property
	Table    *edm.EntityType
}

// ConfigureColumns calls ConfigureColumn for each column.
func (c *Configuration) ConfigureColumns(
	cols []Column,
	m edm.Manifest,
	allowOverride, fillFromExisting bool,
) error {
	for _, col := range cols {
		if err := c.ConfigureColumn(col.Property, col.Table, m, allowOverride, fillFromExisting); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureColumn applies the storage model settings of c to column, a
// column of table. As with Configure, an existing configuration of the
// column is merged first. If allowOverride is set, the merged settings may
// be overridden by later storage configurations; if fillFromExisting is set,
// the existing configuration is only filled, never conflicting.
func (c *Configuration) ConfigureColumn(
	column *edm.Property,
	table *edm.EntityType,
	m edm.Manifest,
	allowOverride, fillFromExisting bool,
) error {
	clone := c.Clone()
	if allowOverride {
		clone.Overridable |= OverridableInSSpace
	}
	merged, err := clone.mergeWithExisting(column, false, fillFromExisting, func(details string) error {
		return &ConflictError{
			Err:     ErrConflictingColumnConfiguration,
			Name:    column.Name,
			Owner:   table.Name,
			Details: details,
		}
	})
	if err != nil {
		return err
	}
	return merged.configureColumn(column, table, m)
}

func (c *Configuration) configureColumn(column *edm.Property, table *edm.EntityType, m edm.Manifest) error {
	c.applyRowVersion()
	c.configureColumnName(column, table)

	for name, v := range c.annotations {
		column.AddAnnotation(annotation.Prefix+name, v)
	}
	if c.ColumnType != nil && strings.TrimSpace(*c.ColumnType) != "" {
		t, err := edm.StoreTypeFromName(m, *c.ColumnType)
		if err != nil {
			return err
		}
		column.TypeName = t.Name
	}
	if c.ColumnOrder != nil {
		column.Order = clonePtr(c.ColumnOrder)
	}
	if t, ok := m.StoreType(column.TypeName); ok {
		for _, f := range t.Facets {
			c.configureFacet(column, f)
		}
	}

	column.SetConfiguration(c)
	return nil
}

// configureColumnName renames column and moves unconfigured columns that
// preferred the same name out of the way.
func (c *Configuration) configureColumnName(column *edm.Property, table *edm.EntityType) {
	if c.ColumnName == nil || strings.TrimSpace(*c.ColumnName) == "" || *c.ColumnName == column.Name {
		return
	}
	name := *c.ColumnName
	column.Name = name

	renamed := []*edm.Property{column}
	for _, p := range table.Properties {
		if p == column || p.PreferredName() != name {
			continue
		}
		if cfg, _ := p.Configuration().(*Configuration); cfg != nil && cfg.ColumnName != nil {
			continue
		}
		p.Name = edm.UniquifyName(renamed, name)
		renamed = append(renamed, p)
	}
}

func (c *Configuration) configureFacet(column *edm.Property, f edm.FacetDescription) {
	if f.Constant {
		return
	}
	if c.kind.hasLength() {
		switch f.Name {
		case edm.FacetFixedLength:
			if c.Length.IsFixedLength != nil {
				column.FixedLength = clonePtr(c.Length.IsFixedLength)
			}
		case edm.FacetMaxLength:
			if c.Length.MaxLength != nil {
				column.MaxLength = clonePtr(c.Length.MaxLength)
			}
			if c.Length.IsMaxLength != nil {
				column.IsMaxLength = *c.Length.IsMaxLength
			}
		}
	}
	switch c.kind {
	case String:
		if f.Name == edm.FacetUnicode && c.String.IsUnicode != nil {
			column.Unicode = clonePtr(c.String.IsUnicode)
		}
	case DateTime:
		if f.Name == edm.FacetPrecision && c.DateTime.Precision != nil {
			column.Precision = clonePtr(c.DateTime.Precision)
		}
	case Decimal:
		switch f.Name {
		case edm.FacetPrecision:
			if c.Decimal.Precision != nil {
				column.Precision = clonePtr(c.Decimal.Precision)
			}
		case edm.FacetScale:
			if c.Decimal.Scale != nil {
				column.Scale = clonePtr(c.Decimal.Scale)
			}
		}
	}
}
