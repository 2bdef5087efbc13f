// Package env unmarshals environment variables into Go structs.
//
// Every exported field maps to a variable named after the field in
// upper-case SNAKE_CASE, so a field ConnectionString reads the variable
// CONNECTION_STRING. Nested structs add their own name as a prefix. The
// env struct tag customizes the mapping:
//
//	type Settings struct {
//		Type     string        `env:"CONFIGURATION_TYPE,required"`
//		Timeout  time.Duration `env:",default:30s"`
//		Tags     []string      `env:",split:';'"`
//		Factory  FactorySpec   `env:",prefix:'FACTORY_'"`
//		Ignored  int           `env:"-"`
//	}
//
// The first tag value is the variable name; the remaining values are the
// options default, required, prefix, split and inline. Values quoted with
// single or double quotes may contain commas.
//
// Scalars are converted with github.com/spf13/cast, so durations accept
// both "30s" and a plain count of nanoseconds. Types that implement
// Unmarshaler parse their own values.
package env

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cast"
)

// Lookup retrieves the value of an environment variable, like os.LookupEnv.
type Lookup func(key string) (string, bool)

// Unmarshaler is implemented by types that parse their own variable value.
type Unmarshaler interface {
	UnmarshalEnv(value string) error
}

// Option configures Unmarshal.
type Option func(*config)

type config struct {
	prefix string
	lookup Lookup
}

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithLookup replaces os.LookupEnv. A nil lookup is ignored.
func WithLookup(lookup Lookup) Option {
	return func(c *config) {
		if lookup != nil {
			c.lookup = lookup
		}
	}
}

// Unmarshal populates the struct v points to. Fields whose variable is unset
// keep their value unless the tag provides a default or marks them required.
func Unmarshal(v any, opts ...Option) error {
	c := config{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&c)
	}
	ptr := reflect.ValueOf(v)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return errors.New("env: expected a non-nil pointer to a struct")
	}
	if err := process(ptr.Elem(), c.prefix, c.lookup); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	return nil
}

type flags struct {
	name     string
	prefix   *string
	split    string
	def      string
	inline   bool
	required bool
}

var (
	typeTime        = reflect.TypeFor[time.Time]()
	typeDuration    = reflect.TypeFor[time.Duration]()
	typeUnmarshaler = reflect.TypeFor[Unmarshaler]()
)

func process(rv reflect.Value, prefix string, lookup Lookup) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		ft, fv := rt.Field(i), rv.Field(i)
		if !ft.IsExported() {
			continue
		}
		tag := ft.Tag.Get("env")
		if tag == "-" {
			continue
		}
		f, err := parse(tag)
		if err != nil {
			return fmt.Errorf("field %q: %w", ft.Name, err)
		}
		if ft.Anonymous && f.inline {
			if err := process(fv, prefix, lookup); err != nil {
				return err
			}
			continue
		}

		key := f.name
		if key == "" {
			key = toSnake(ft.Name)
		}
		if ft.Type.Kind() == reflect.Struct && ft.Type != typeTime && !custom(fv) {
			nested := prefix + key + "_"
			if f.prefix != nil {
				nested = prefix + *f.prefix
			}
			if err := process(fv, nested, lookup); err != nil {
				return err
			}
			continue
		}

		key = prefix + key
		val, ok := lookup(key)
		switch {
		case ok:
		case f.def != "":
			val = f.def
		case f.required:
			return fmt.Errorf("required variable %q is not set", key)
		default:
			continue
		}
		if err := set(fv, val, f.split); err != nil {
			return fmt.Errorf("field %q from variable %q: %w", ft.Name, key, err)
		}
	}
	return nil
}

func custom(rv reflect.Value) bool {
	return rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(typeUnmarshaler)
}

func set(rv reflect.Value, s, split string) error {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		rv = rv.Elem()
	}
	if custom(rv) {
		return rv.Addr().Interface().(Unmarshaler).UnmarshalEnv(s)
	}
	switch rv.Type() {
	case typeTime:
		t, err := cast.ToTimeE(s)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(t))
		return nil
	case typeDuration:
		d, err := cast.ToDurationE(s)
		if err != nil {
			return err
		}
		rv.SetInt(int64(d))
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(s)
	case reflect.Bool:
		b, err := cast.ToBoolE(s)
		if err != nil {
			return err
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := cast.ToInt64E(s)
		if err != nil {
			return err
		}
		if rv.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %v", i, rv.Type())
		}
		rv.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(s)
		if err != nil {
			return err
		}
		if rv.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %v", u, rv.Type())
		}
		rv.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return err
		}
		rv.SetFloat(f)
	case reflect.Slice:
		if s == "" {
			rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
			return nil
		}
		parts := strings.Split(s, split)
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := set(slice.Index(i), strings.TrimSpace(part), split); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		rv.Set(slice)
	default:
		return fmt.Errorf("unsupported type %v", rv.Type())
	}
	return nil
}

// parse reads an env tag. Commas inside quoted values do not separate
// options.
func parse(tag string) (flags, error) {
	f := flags{split: ","}
	parts := splitQuoted(tag)
	f.name = parts[0]
	for _, part := range parts[1:] {
		key, val, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			switch key {
			case "inline":
				f.inline = true
			case "required":
				f.required = true
			case "":
			default:
				return f, fmt.Errorf("unknown tag option %q", key)
			}
			continue
		}
		val = unquote(val)
		switch key {
		case "default":
			f.def = val
		case "prefix":
			f.prefix = &val
		case "split":
			f.split = val
		default:
			return f, fmt.Errorf("unknown tag option %q", key)
		}
	}
	return f, nil
}

func splitQuoted(s string) []string {
	var parts []string
	var quote rune
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// toSnake converts a camelCase name to upper-case SNAKE_CASE, keeping
// acronyms together: APIKey becomes API_KEY.
func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) && unicode.IsUpper(r) ||
				unicode.IsDigit(r) && !unicode.IsDigit(prev) ||
				unicode.IsUpper(prev) && unicode.IsUpper(r) && next {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
