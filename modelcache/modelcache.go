// Package modelcache identifies built models in the model cache and persists
// them between runs.
package modelcache

import (
	"github.com/deep-rent/ormconf/resolve"
)

// Source describes the context a model is built for.
type Source interface {
	// ContextName returns the name of the context type.
	ContextName() string
	// ProviderName returns the invariant name of the context's provider.
	ProviderName() string
}

// Keyed may be implemented by a Source whose model depends on more than its
// type and provider, for example a schema chosen at runtime.
type Keyed interface {
	CacheKey() string
}

// Key identifies a model in the model cache. Two sources with equal keys
// share one built model.
type Key struct {
	Context  string
	Provider string
	Custom   string
}

// String returns a readable representation of the key.
func (k Key) String() string {
	s := k.Context + ";" + k.Provider
	if k.Custom != "" {
		s += ";" + k.Custom
	}
	return s
}

// KeyFactory computes the cache key of a source.
type KeyFactory func(src Source) Key

// KeyService is the tag of the KeyFactory service.
var KeyService = resolve.NewService[KeyFactory]("model cache key factory")

// DefaultKey is the default KeyFactory.
func DefaultKey(src Source) Key {
	k := Key{
		Context:  src.ContextName(),
		Provider: src.ProviderName(),
	}
	if c, ok := src.(Keyed); ok {
		k.Custom = c.CacheKey()
	}
	return k
}
