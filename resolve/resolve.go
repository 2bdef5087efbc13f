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

// Package resolve provides the building blocks of a service locator organized
// as a chain of responsibility.
//
// A Resolver maps a (service, key) pair to zero or one instance (GetService)
// or to any number of instances (GetServices). Services are identified by
// typed tags created with NewService, which double as compile-time type
// witnesses for the generic Get and GetAll entry points:
//
//	var Pluralizer = resolve.NewService[Pluralizer]("pluralizer")
//
//	chain := resolve.NewChain()
//	chain.Add(resolve.Singleton(Pluralizer, english, nil))
//
//	p, err := resolve.Get(chain, Pluralizer, nil)
//
// A nil result with a nil error means "not resolvable here" and lets the
// caller fall through to the next resolver. Errors returned by a resolver are
// never swallowed by the composition types in this package.
package resolve

import (
	"errors"
	"fmt"
)

// Tag identifies a service capability. Tags are compared by identity.
type Tag interface {
	// Name returns a human-readable name of the service.
	Name() string
}

// Service is a typed Tag. The type parameter T is the type of instance a
// resolver is expected to produce for this tag.
type Service[T any] struct {
	name string
}

// NewService creates a new, unique tag for services of type T.
func NewService[T any](name string) *Service[T] {
	return &Service[T]{name: name}
}

// Name implements the Tag interface.
func (s *Service[T]) Name() string { return s.name }

// String returns the name of the service.
func (s *Service[T]) String() string { return s.name }

// Resolver resolves service instances for a tag and an optional key.
type Resolver interface {
	// GetService returns a single instance for the given tag and key, or nil
	// if this resolver cannot provide one.
	GetService(tag Tag, key any) (any, error)
	// GetServices returns all instances this resolver can provide for the
	// given tag and key. An empty result is not an error.
	GetServices(tag Tag, key any) ([]any, error)
}

// Func adapts an ordinary function to the Resolver interface. The function
// serves GetService; GetServices yields its result as a single-element slice.
type Func func(tag Tag, key any) (any, error)

// GetService implements the Resolver interface.
func (f Func) GetService(tag Tag, key any) (any, error) {
	return f(tag, key)
}

// GetServices implements the Resolver interface.
func (f Func) GetServices(tag Tag, key any) ([]any, error) {
	return single(f(tag, key))
}

var _ Resolver = Func(nil)

// single turns the result of a GetService call into a GetServices result.
func single(v any, err error) ([]any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return []any{v}, nil
}

// ErrInvalidKey indicates that a resolver received a key that is missing or of
// the wrong type for the requested service.
var ErrInvalidKey = errors.New("invalid resolution key")

// KeyError reports an invalid key passed to a resolver that requires one.
type KeyError struct {
	Service string // Name of the requested service.
	Want    string // Description of the expected key.
	Key     any    // The key that was passed in.
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("resolving %s requires a key of type %s", e.Service, e.Want)
	}
	return fmt.Sprintf(
		"resolving %s requires a key of type %s, got %T",
		e.Service, e.Want, e.Key,
	)
}

// Unwrap allows errors.Is(err, ErrInvalidKey).
func (e *KeyError) Unwrap() error { return ErrInvalidKey }

// Get resolves a single instance of svc from r and converts it to T.
// It returns the zero value of T if nothing was resolved.
func Get[T any](r Resolver, svc *Service[T], key any) (T, error) {
	var zero T
	v, err := r.GetService(svc, key)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("service %s expects %T but resolver returned %T", svc, zero, v)
	}
	return t, nil
}

// GetAll resolves all instances of svc from r and converts them to T.
func GetAll[T any](r Resolver, svc *Service[T], key any) ([]T, error) {
	vs, err := r.GetServices(svc, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, ok := v.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("service %s expects %T but resolver returned %T", svc, zero, v)
		}
		out = append(out, t)
	}
	return out, nil
}

// MustGet resolves a service like Get but panics on error.
func MustGet[T any](r Resolver, svc *Service[T], key any) T {
	t, err := Get(r, svc, key)
	if err != nil {
		panic(err)
	}
	return t
}
