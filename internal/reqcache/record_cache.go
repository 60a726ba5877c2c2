package reqcache

import "context"

// Finder is implemented by graph entities that can be looked up by a
// stable key.
type Finder[T any] interface {
	Find(ctx context.Context, key string) (T, error)
}

// RecordCache specializes Cache to string keys, with both successes and
// failures cached, so repeated failing lookups within one request don't
// hammer the database.
type RecordCache[T any] struct {
	cache *Cache[string, T]
}

// NewRecordCache creates an empty RecordCache.
func NewRecordCache[T any]() *RecordCache[T] {
	return &RecordCache[T]{cache: New[string, T]()}
}

// Get returns the cached record for key, calling finder.Find at most once
// per key even under concurrent lookups.
func (r *RecordCache[T]) Get(ctx context.Context, key string, finder Finder[T]) (T, error) {
	return r.cache.Get(ctx, key, func(ctx context.Context) (T, error) {
		return finder.Find(ctx, key)
	})
}

// Put authoritatively stores a record, e.g. once a handler has already
// loaded it by some other means.
func (r *RecordCache[T]) Put(key string, value T) {
	r.cache.Put(key, value)
}
