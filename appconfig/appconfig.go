// Package appconfig reads the application configuration file that selects
// the configuration type, the registered providers, the default connection
// factory and the interceptors of an application.
//
// Files are JSON or YAML, chosen by extension. References of the form
// ${VAR} are replaced with environment variables before decoding:
//
//	configurationType: Sample
//	defaultConnectionFactory:
//	  type: postgres
//	  parameters: ["host=${DB_HOST} sslmode=disable"]
//	providers:
//	  - invariantName: postgres
//	    type: postgres
//	interceptors:
//	  - type: DatabaseLogger
//	    parameters: ["/var/log/ormconf/db.log"]
//
// FromEnv overlays variables prefixed with ORMCONF_ on top of a loaded file.
package appconfig

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/drone/envsubst"

	"github.com/deep-rent/ormconf/codec"
	"github.com/deep-rent/ormconf/env"
)

// EnvPrefix prefixes the environment variables read by FromEnv.
const EnvPrefix = "ORMCONF_"

// TypeSpec names a registered type and its constructor arguments.
type TypeSpec struct {
	Type       string   `json:"type" yaml:"type"`
	Parameters []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// UnmarshalEnv parses "type" or "type:param1;param2".
func (s *TypeSpec) UnmarshalEnv(v string) error {
	typ, params, found := strings.Cut(v, ":")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return fmt.Errorf("missing type in %q", v)
	}
	s.Type = typ
	s.Parameters = nil
	if found && params != "" {
		s.Parameters = strings.Split(params, ";")
	}
	return nil
}

// Provider registers the provider services type for an invariant name.
type Provider struct {
	InvariantName string `json:"invariantName" yaml:"invariantName"`
	Type          string `json:"type" yaml:"type"`
}

// Providers is the list of configured providers.
type Providers []Provider

// UnmarshalEnv parses "name=type" pairs separated by commas.
func (p *Providers) UnmarshalEnv(v string) error {
	var out Providers
	for pair := range strings.SplitSeq(v, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, typ, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed provider %q", pair)
		}
		out = append(out, Provider{
			InvariantName: strings.TrimSpace(name),
			Type:          strings.TrimSpace(typ),
		})
	}
	*p = out
	return nil
}

// ConnectionStrings maps connection names to connection strings.
type ConnectionStrings map[string]string

// UnmarshalEnv parses "name=connection string" pairs separated by
// semicolons. Only the first '=' of a pair separates the name.
func (c *ConnectionStrings) UnmarshalEnv(v string) error {
	out := make(ConnectionStrings)
	for pair := range strings.SplitSeq(v, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, cs, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed connection string %q", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(cs)
	}
	*c = out
	return nil
}

// AppConfig is the application configuration. The zero value is a valid,
// empty configuration.
type AppConfig struct {
	// ConfigurationType names the configuration type to use, overriding
	// discovery.
	ConfigurationType string `json:"configurationType,omitempty" yaml:"configurationType,omitempty"`
	// DefaultConnectionFactory replaces the built-in connection factory.
	DefaultConnectionFactory *TypeSpec `json:"defaultConnectionFactory,omitempty" yaml:"defaultConnectionFactory,omitempty"`
	// Providers registers provider services by invariant name.
	Providers Providers `json:"providers,omitempty" yaml:"providers,omitempty"`
	// Interceptors are added to every configuration using this file.
	Interceptors []TypeSpec `json:"interceptors,omitempty" yaml:"interceptors,omitempty"`
	// ConnectionStrings are looked up by name before a name is treated as a
	// connection string itself.
	ConnectionStrings ConnectionStrings `json:"connectionStrings,omitempty" yaml:"connectionStrings,omitempty"`
}

// ProviderType returns the provider services type registered for name.
func (c *AppConfig) ProviderType(name string) (string, bool) {
	for _, p := range c.Providers {
		if p.InvariantName == name {
			return p.Type, true
		}
	}
	return "", false
}

// ConnectionString returns the connection string registered under name.
func (c *AppConfig) ConnectionString(name string) (string, bool) {
	cs, ok := c.ConnectionStrings[name]
	return cs, ok
}

// Clone returns a deep copy of c.
func (c *AppConfig) Clone() *AppConfig {
	d := &AppConfig{
		ConfigurationType: c.ConfigurationType,
		Providers:         slices.Clone(c.Providers),
		ConnectionStrings: maps.Clone(c.ConnectionStrings),
	}
	if f := c.DefaultConnectionFactory; f != nil {
		d.DefaultConnectionFactory = &TypeSpec{Type: f.Type, Parameters: slices.Clone(f.Parameters)}
	}
	for _, i := range c.Interceptors {
		d.Interceptors = append(d.Interceptors, TypeSpec{Type: i.Type, Parameters: slices.Clone(i.Parameters)})
	}
	return d
}

// Load reads the configuration file at path.
func Load(path string) (*AppConfig, error) {
	return LoadWith(path, os.Getenv)
}

// LoadWith reads the configuration file at path, expanding variable
// references through lookup.
func LoadWith(path string, lookup func(string) string) (*AppConfig, error) {
	dec, err := codec.Infer(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded, err := envsubst.Eval(string(raw), lookup)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	c := &AppConfig{}
	if err := dec.Decode([]byte(expanded), c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path in the format matching its extension.
func Save(path string, c *AppConfig) error {
	enc, err := codec.Infer(path)
	if err != nil {
		return err
	}
	raw, err := enc.Encode(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// FromEnv returns a copy of base with the ORMCONF_ variables applied. A nil
// base starts from an empty configuration. Options are passed to
// env.Unmarshal after the prefix.
func FromEnv(base *AppConfig, opts ...env.Option) (*AppConfig, error) {
	c := &AppConfig{}
	if base != nil {
		c = base.Clone()
	}
	opts = append([]env.Option{env.WithPrefix(EnvPrefix)}, opts...)
	if err := env.Unmarshal(c, opts...); err != nil {
		return nil, err
	}
	return c, nil
}
