package resolve

import "reflect"

// singleton resolves one fixed instance for its tag when the key matches.
type singleton struct {
	tag      Tag
	instance any
	match    func(key any) bool
}

// Singleton returns a Resolver that yields instance for svc. If key is nil,
// the instance is returned for any requested key; otherwise only for keys
// equal to key.
func Singleton[T any](svc *Service[T], instance T, key any) Resolver {
	return &singleton{
		tag:      svc,
		instance: instance,
		match:    equals(key),
	}
}

// SingletonFunc returns a Resolver that yields instance for svc whenever
// match reports true for the requested key.
func SingletonFunc[T any](svc *Service[T], instance T, match func(key any) bool) Resolver {
	if match == nil {
		match = equals(nil)
	}
	return &singleton{
		tag:      svc,
		instance: instance,
		match:    match,
	}
}

// GetService implements the Resolver interface.
func (s *singleton) GetService(tag Tag, key any) (any, error) {
	if tag == s.tag && s.match(key) {
		return s.instance, nil
	}
	return nil, nil
}

// GetServices implements the Resolver interface.
func (s *singleton) GetServices(tag Tag, key any) ([]any, error) {
	return single(s.GetService(tag, key))
}

var _ Resolver = (*singleton)(nil)

// transient calls its factory on every resolution.
type transient struct {
	tag     Tag
	factory func() any
	match   func(key any) bool
}

// Transient returns a Resolver that calls factory each time svc is resolved
// with a matching key. Key matching follows the rules of Singleton.
func Transient[T any](svc *Service[T], factory func() T, key any) Resolver {
	return &transient{
		tag:     svc,
		factory: func() any { return factory() },
		match:   equals(key),
	}
}

// GetService implements the Resolver interface.
func (t *transient) GetService(tag Tag, key any) (any, error) {
	if tag == t.tag && t.match(key) {
		return t.factory(), nil
	}
	return nil, nil
}

// GetServices implements the Resolver interface.
func (t *transient) GetServices(tag Tag, key any) ([]any, error) {
	return single(t.GetService(tag, key))
}

var _ Resolver = (*transient)(nil)

// equals builds the default key predicate: a nil registration key matches
// everything, any other key matches only keys equal to it.
func equals(want any) func(key any) bool {
	if want == nil {
		return func(any) bool { return true }
	}
	if !reflect.TypeOf(want).Comparable() {
		return func(key any) bool { return reflect.DeepEqual(key, want) }
	}
	return func(key any) bool { return key == want }
}
