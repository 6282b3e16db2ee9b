package dataloader

import "context"

func (l *Loader[K, V]) Load(ctx context.Context, key K) (Result[V], error) {
	return l.Request(key).Wait(ctx)
}

func (l *Loader[K, V]) LoadThunk(key K) func(ctx context.Context) (Result[V], error) {
	return l.Request(key).Wait
}

// LoadAll requests every key before waiting on any of them, so the keys share a batch.
// Duplicate keys share a handle.
func (l *Loader[K, V]) LoadAll(ctx context.Context, keys []K) ([]Result[V], []error) {
	return l.LoadAllThunk(keys)(ctx)
}

func (l *Loader[K, V]) LoadAllThunk(keys []K) func(ctx context.Context) ([]Result[V], []error) {
	thunks := make([]*Thunk[V], len(keys))
	for i, key := range keys {
		thunks[i] = l.Request(key)
	}

	return func(ctx context.Context) ([]Result[V], []error) {
		result := make([]Result[V], len(keys))
		resultErrs := make([]error, len(keys))
		for i, t := range thunks {
			result[i], resultErrs[i] = t.Wait(ctx)
		}

		return result, resultErrs
	}
}
