package dataloader

import "context"

type EntityType string

// Result is the outcome of a single key. Found is false when the backing store has no entity for it.
type Result[V any] struct {
	Value V
	Found bool
}

func NotFound[V any]() Result[V] {
	return Result[V]{}
}

// Thunk is the handle returned by Request. Every handle for the same key in a window is the same pointer.
type Thunk[V any] struct {
	done  <-chan struct{}
	get   func() (Result[V], error)
	flush func(ctx context.Context) error
}

// Wait blocks until the batch holding the key was dispatched. A handle still pending when awaited
// flushes its window first: every resolver that could add keys has already run at that point.
func (t *Thunk[V]) Wait(ctx context.Context) (Result[V], error) {
	if t.Ready() {
		return t.get()
	}

	if t.flush != nil {
		// failures are delivered through the handles themselves
		_ = t.flush(ctx)
	}

	select {
	case <-t.done:
		return t.get()
	case <-ctx.Done():
		return Result[V]{}, ctx.Err()
	}
}

func (t *Thunk[V]) Ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Future is the untyped view of a Thunk handed out by Window.Request.
type Future interface {
	Wait(ctx context.Context) (Result[any], error)
	Ready() bool
}

type anyThunk[V any] struct {
	t *Thunk[V]
}

func (a anyThunk[V]) Wait(ctx context.Context) (Result[any], error) {
	res, err := a.t.Wait(ctx)
	if err != nil || !res.Found {
		return Result[any]{}, err
	}

	return Result[any]{Value: res.Value, Found: true}, nil
}

func (a anyThunk[V]) Ready() bool {
	return a.t.Ready()
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func resolvedThunk[V any](res Result[V], err error) *Thunk[V] {
	return &Thunk[V]{
		done: closedChan,
		get: func() (Result[V], error) {
			return res, err
		},
	}
}
