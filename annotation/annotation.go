// Package annotation provides custom metadata annotations attached to model
// properties and columns, and the serializers that persist them.
package annotation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/deep-rent/ormconf/resolve"
)

// Well-known annotation names.
const (
	ClrTypeName = "ClrType"
	IndexName   = "Index"
)

// Prefix is prepended to annotation names when they are stored on columns.
const Prefix = "customannotation:"

// Serializer converts annotation values to and from strings.
type Serializer interface {
	Serialize(name string, value any) (string, error)
	Deserialize(name, value string) (any, error)
}

// SerializerFactory creates a Serializer.
type SerializerFactory func() Serializer

// SerializerService is the tag of the SerializerFactory service. The key is
// the annotation name.
var SerializerService = resolve.NewService[SerializerFactory]("metadata annotation serializer")

// Mergeable is implemented by annotation values that can be combined when
// two configurations of the same property are merged.
type Mergeable interface {
	// IsCompatibleWith reports whether other can be merged into the receiver.
	// If not, the returned message describes the conflict.
	IsCompatibleWith(other any) (bool, string)
	// MergeWith returns a new value combining the receiver and other.
	MergeWith(other any) (any, error)
}

// ClrType is the name of the Go type a model property is mapped from.
type ClrType string

// TypeOf returns the ClrType of v's dynamic type.
func TypeOf(v any) ClrType {
	return typeName(reflect.TypeOf(v))
}

func typeName(t reflect.Type) ClrType {
	if t == nil {
		return ""
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return ClrType(t.String())
	}
	return ClrType(t.PkgPath() + "." + t.Name())
}

// ClrTypeSerializer serializes ClrType annotations.
type ClrTypeSerializer struct{}

// Serialize implements Serializer.
func (ClrTypeSerializer) Serialize(name string, value any) (string, error) {
	switch v := value.(type) {
	case ClrType:
		return string(v), nil
	case string:
		return v, nil
	case reflect.Type:
		return string(typeName(v)), nil
	default:
		return "", fmt.Errorf("annotation %q: cannot serialize %T", name, value)
	}
}

// Deserialize implements Serializer.
func (ClrTypeSerializer) Deserialize(name, value string) (any, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("annotation %q: empty type name", name)
	}
	return ClrType(value), nil
}

var _ Serializer = ClrTypeSerializer{}

// NewClrTypeSerializer is the SerializerFactory of ClrTypeSerializer.
func NewClrTypeSerializer() Serializer { return ClrTypeSerializer{} }
