package annotation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// Index describes an index a column participates in. Order is -1 if not
// specified; nil flags are unspecified.
type Index struct {
	Name      string `json:"name,omitempty"`
	Order     int    `json:"order"`
	Clustered *bool  `json:"clustered,omitempty"`
	Unique    *bool  `json:"unique,omitempty"`
}

// NewIndex returns an index with the given name and unspecified facets.
func NewIndex(name string) Index {
	return Index{Name: name, Order: -1}
}

func (i Index) conflicts(other Index) []string {
	var msgs []string
	if i.Order >= 0 && other.Order >= 0 && i.Order != other.Order {
		msgs = append(msgs, fmt.Sprintf("Order = %d conflicts with Order = %d", i.Order, other.Order))
	}
	if i.Clustered != nil && other.Clustered != nil && *i.Clustered != *other.Clustered {
		msgs = append(msgs, fmt.Sprintf("IsClustered = %t conflicts with IsClustered = %t", *i.Clustered, *other.Clustered))
	}
	if i.Unique != nil && other.Unique != nil && *i.Unique != *other.Unique {
		msgs = append(msgs, fmt.Sprintf("IsUnique = %t conflicts with IsUnique = %t", *i.Unique, *other.Unique))
	}
	return msgs
}

func (i Index) merge(other Index) Index {
	if i.Order < 0 {
		i.Order = other.Order
	}
	if i.Clustered == nil {
		i.Clustered = other.Clustered
	}
	if i.Unique == nil {
		i.Unique = other.Unique
	}
	return i
}

// IndexAnnotation is the value of the Index annotation: the indexes a column
// participates in. Indexes with the same name are merged.
type IndexAnnotation struct {
	Indexes []Index `json:"indexes"`
}

// NewIndexAnnotation creates an annotation of the given indexes.
func NewIndexAnnotation(indexes ...Index) *IndexAnnotation {
	return &IndexAnnotation{Indexes: slices.Clone(indexes)}
}

func (a *IndexAnnotation) find(name string) int {
	return slices.IndexFunc(a.Indexes, func(i Index) bool { return i.Name == name })
}

// IsCompatibleWith implements Mergeable.
func (a *IndexAnnotation) IsCompatibleWith(other any) (bool, string) {
	o, ok := other.(*IndexAnnotation)
	if !ok || o == nil {
		return false, fmt.Sprintf("cannot merge index annotation with %T", other)
	}
	var msgs []string
	for _, idx := range o.Indexes {
		if n := a.find(idx.Name); n >= 0 {
			for _, m := range a.Indexes[n].conflicts(idx) {
				msgs = append(msgs, fmt.Sprintf("index '%s': %s", idx.Name, m))
			}
		}
	}
	if len(msgs) != 0 {
		return false, strings.Join(msgs, "\n\t")
	}
	return true, ""
}

// MergeWith implements Mergeable.
func (a *IndexAnnotation) MergeWith(other any) (any, error) {
	if ok, msg := a.IsCompatibleWith(other); !ok {
		return nil, fmt.Errorf("conflicting index annotations: %s", msg)
	}
	merged := NewIndexAnnotation(a.Indexes...)
	for _, idx := range other.(*IndexAnnotation).Indexes {
		if n := merged.find(idx.Name); n >= 0 {
			merged.Indexes[n] = merged.Indexes[n].merge(idx)
		} else {
			merged.Indexes = append(merged.Indexes, idx)
		}
	}
	return merged, nil
}

var _ Mergeable = (*IndexAnnotation)(nil)

// IndexSerializer serializes IndexAnnotation values as JSON.
type IndexSerializer struct{}

// Serialize implements Serializer.
func (IndexSerializer) Serialize(name string, value any) (string, error) {
	a, ok := value.(*IndexAnnotation)
	if !ok {
		return "", fmt.Errorf("annotation %q: cannot serialize %T", name, value)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("annotation %q: %w", name, err)
	}
	return string(b), nil
}

// Deserialize implements Serializer.
func (IndexSerializer) Deserialize(name, value string) (any, error) {
	a := &IndexAnnotation{}
	if err := json.Unmarshal([]byte(value), a); err != nil {
		return nil, fmt.Errorf("annotation %q: %w", name, err)
	}
	return a, nil
}

var _ Serializer = IndexSerializer{}

// NewIndexSerializer is the SerializerFactory of IndexSerializer.
func NewIndexSerializer() Serializer { return IndexSerializer{} }
