package resolve

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Chain is an ordered collection of resolvers queried newest-first: the most
// recently added resolver gets the first chance to resolve a service.
//
// A Chain is safe for concurrent use. Add builds a new immutable snapshot and
// publishes it atomically, so readers never lock and never observe a
// partially updated chain. Concurrent writers are serialized; none of their
// additions is lost.
type Chain struct {
	mu    sync.Mutex
	snap  atomic.Pointer[[]Resolver] // newest first
	count atomic.Int64
}

// NewChain creates a chain containing the given resolvers, added in order.
func NewChain(resolvers ...Resolver) *Chain {
	c := &Chain{}
	empty := make([]Resolver, 0)
	c.snap.Store(&empty)
	for _, r := range resolvers {
		c.Add(r)
	}
	return c
}

// Add appends r to the chain. Duplicates are allowed. A nil resolver is
// ignored.
func (c *Chain) Add(r Resolver) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.load()
	next := make([]Resolver, 0, len(old)+1)
	next = append(next, r)
	next = append(next, old...)
	c.snap.Store(&next)
	c.count.Add(1)
}

// load returns the current snapshot, which callers must not modify.
func (c *Chain) load() []Resolver {
	if p := c.snap.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the number of resolvers in the chain.
func (c *Chain) Len() int {
	return int(c.count.Load())
}

// Resolvers returns a copy of the chain's resolvers in insertion order.
func (c *Chain) Resolvers() []Resolver {
	s := slices.Clone(c.load())
	slices.Reverse(s)
	return s
}

// GetService returns the first non-nil instance produced by the resolvers,
// starting with the most recently added one. An error from any resolver ends
// the search and is returned as is.
func (c *Chain) GetService(tag Tag, key any) (any, error) {
	for _, r := range c.load() {
		v, err := r.GetService(tag, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// GetServices concatenates the instances produced by all resolvers, in the
// same order used by GetService.
func (c *Chain) GetServices(tag Tag, key any) ([]any, error) {
	var out []any
	for _, r := range c.load() {
		vs, err := r.GetServices(tag, key)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

var _ Resolver = (*Chain)(nil)
