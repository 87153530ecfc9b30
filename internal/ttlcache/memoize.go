package ttlcache

import (
	"fmt"
	"time"
)

// Func memoizes a single-argument function with read-time TTL semantics.
// Keys are derived from the function name and the argument's string form, so
// arguments must have stable, order-independent representations (strings,
// numbers, small structs). Errors are never cached.
type Func[A comparable, V any] struct {
	name  string
	ttl   time.Duration
	fn    func(A) (V, error)
	cache *Cache[string, V]
}

// Memoize wraps fn so that successful results are cached for ttl, keyed by
// name and argument. A hit returns the stored result without invoking fn.
func Memoize[A comparable, V any](name string, ttl time.Duration, fn func(A) (V, error)) *Func[A, V] {
	return &Func[A, V]{
		name:  name,
		ttl:   ttl,
		fn:    fn,
		cache: New[string, V](),
	}
}

// Call invokes the wrapped function, serving from cache when a fresh result
// for the same argument exists.
func (f *Func[A, V]) Call(arg A) (V, error) {
	key := f.key(arg)
	if v, ok := f.cache.Get(key, f.ttl); ok {
		return v, nil
	}
	v, err := f.fn(arg)
	if err != nil {
		return v, err
	}
	f.cache.Set(key, v)
	return v, nil
}

// Clear drops all memoized results.
func (f *Func[A, V]) Clear() {
	f.cache.Clear()
}

// Len returns the number of memoized results, including expired ones.
func (f *Func[A, V]) Len() int {
	return f.cache.Len()
}

func (f *Func[A, V]) key(arg A) string {
	return fmt.Sprintf("%s:%v", f.name, arg)
}
