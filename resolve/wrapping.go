package resolve

import "fmt"

// Interceptor transforms a resolved service instance. It is not called if
// nothing was resolved.
type Interceptor[T any] func(service T, key any) T

// wrapping resolves a service through a snapshot and passes every result
// through an interceptor.
type wrapping[T any] struct {
	snapshot Resolver
	svc      *Service[T]
	fn       Interceptor[T]
}

// Wrapping returns a Resolver that answers requests for svc by resolving it
// from snapshot and handing the result to fn. Requests for any other service
// are not resolvable. The snapshot must not contain the returned resolver.
func Wrapping[T any](snapshot Resolver, svc *Service[T], fn Interceptor[T]) Resolver {
	return &wrapping[T]{snapshot: snapshot, svc: svc, fn: fn}
}

// GetService implements the Resolver interface.
func (w *wrapping[T]) GetService(tag Tag, key any) (any, error) {
	if tag != w.svc {
		return nil, nil
	}
	v, err := w.snapshot.GetService(tag, key)
	if err != nil || v == nil {
		return nil, err
	}
	t, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("service %s expects %T but resolver returned %T", w.svc, t, v)
	}
	return w.fn(t, key), nil
}

// GetServices implements the Resolver interface.
func (w *wrapping[T]) GetServices(tag Tag, key any) ([]any, error) {
	if tag != w.svc {
		return nil, nil
	}
	ts, err := GetAll(w.snapshot, w.svc, key)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(ts))
	for _, t := range ts {
		out = append(out, w.fn(t, key))
	}
	return out, nil
}
