package resolve

import (
	"reflect"
	"slices"
	"sync"
)

// entry is the cache key of a Caching resolver.
type entry struct {
	tag Tag
	key any
}

// Caching memoizes the results of an underlying resolver per tag and key.
// Only non-nil results are cached; errors and misses are retried on the next
// call. GetServices hands out copies of the cached slices. Lookups with a key that is not comparable bypass the cache.
type Caching struct {
	next     Resolver
	single   sync.Map // entry -> any
	multiple sync.Map // entry -> []any
}

// NewCaching wraps next with a cache.
func NewCaching(next Resolver) *Caching {
	return &Caching{next: next}
}

// CachingFunc is a shorthand for NewCaching(Func(fn)).
func CachingFunc(fn func(tag Tag, key any) (any, error)) *Caching {
	return NewCaching(Func(fn))
}

// GetService implements the Resolver interface.
func (c *Caching) GetService(tag Tag, key any) (any, error) {
	if !hashable(key) {
		return c.next.GetService(tag, key)
	}
	e := entry{tag, key}
	if v, ok := c.single.Load(e); ok {
		return v, nil
	}
	v, err := c.next.GetService(tag, key)
	if err != nil || v == nil {
		return v, err
	}
	v, _ = c.single.LoadOrStore(e, v)
	return v, nil
}

// GetServices implements the Resolver interface.
func (c *Caching) GetServices(tag Tag, key any) ([]any, error) {
	if !hashable(key) {
		return c.next.GetServices(tag, key)
	}
	e := entry{tag, key}
	if vs, ok := c.multiple.Load(e); ok {
		return slices.Clone(vs.([]any)), nil
	}
	vs, err := c.next.GetServices(tag, key)
	if err != nil || len(vs) == 0 {
		return vs, err
	}
	actual, _ := c.multiple.LoadOrStore(e, slices.Clone(vs))
	return slices.Clone(actual.([]any)), nil
}

var _ Resolver = (*Caching)(nil)

func hashable(key any) bool {
	return key == nil || reflect.TypeOf(key).Comparable()
}
