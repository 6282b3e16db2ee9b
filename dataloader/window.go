package dataloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SevenTV/AiUsage/sync_map"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

type batcher interface {
	EntityType() EntityType
	Flush(ctx context.Context) error
	Close()
	Pending() int
	requestAny(key any) (Future, error)
}

// Window is the batch window of one query pass. Loaders registered on it share its flush and its
// lifetime; nothing carries over from one window to the next.
type Window struct {
	ctx     context.Context
	opts    []Option
	logger  *zap.Logger
	loaders sync_map.Map[EntityType, batcher]
	closed  atomic.Bool

	mu        sync.Mutex
	violation error
}

// NewWindow starts a window. The options become the defaults of every loader registered on it.
func NewWindow(ctx context.Context, opts ...Option) *Window {
	cfg := Config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Window{
		ctx:    ctx,
		opts:   opts,
		logger: cfg.Logger,
	}
}

// Register adds the loader for entityType. Registering the same type twice returns the first loader;
// registering it with different key or value types is a programming error and panics.
func Register[K comparable, V any](w *Window, entityType EntityType, fetch FetchFunc[K, V], opts ...Option) *Loader[K, V] {
	all := make([]Option, 0, len(w.opts)+len(opts))
	all = append(all, w.opts...)
	all = append(all, opts...)

	l := newLoader(w.ctx, entityType, fetch, w.Flush, all...)
	if w.closed.Load() {
		l.Close()
	}

	existing, loaded := w.loaders.LoadOrStore(entityType, l)
	if !loaded {
		return l
	}

	typed, ok := existing.(*Loader[K, V])
	if !ok {
		panic(fmt.Sprintf("dataloader: %s already registered as %T", entityType, existing))
	}

	return typed
}

// Of returns the typed loader registered for entityType.
func Of[K comparable, V any](w *Window, entityType EntityType) (*Loader[K, V], bool) {
	b, ok := w.loaders.Load(entityType)
	if !ok {
		return nil, false
	}

	l, ok := b.(*Loader[K, V])
	return l, ok
}

// Request registers interest in (entityType, key) without knowing the loader's types.
func (w *Window) Request(entityType EntityType, key any) (Future, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key for %s", ErrInvalidKey, entityType)
	}

	b, ok := w.loaders.Load(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}

	return b.requestAny(key)
}

// Flush dispatches the pending batch of every entity type, one fetch per type, concurrently.
// The returned error aggregates the fetch failures that were also delivered to the handles.
// A contract violation in any fetch is re-raised here once all fetches returned.
func (w *Window) Flush(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		result   error
		violated any
	)

	w.loaders.Range(func(_ EntityType, b batcher) bool {
		if b.Pending() == 0 {
			return true
		}

		wg.Add(1)
		go func(b batcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					violated = r
					mu.Unlock()
				}
			}()

			if err := b.Flush(ctx); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(b)

		return true
	})
	wg.Wait()

	if violated != nil {
		if err, ok := violated.(error); ok {
			w.mu.Lock()
			if w.violation == nil {
				w.violation = err
			}
			w.mu.Unlock()
		}
		panic(violated)
	}

	return result
}

// Violation returns the first contract violation raised by a flush of this window. Hosts that
// recover panics on their own check it once the pass is over.
func (w *Window) Violation() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.violation
}

// Close releases every handle that never got dispatched. In-flight fetches run to completion under
// their own context.
func (w *Window) Close() {
	if w.closed.Swap(true) {
		return
	}

	released := 0
	w.loaders.Range(func(_ EntityType, b batcher) bool {
		released += b.Pending()
		b.Close()
		return true
	})

	if released > 0 {
		w.logger.Debug("dataloader, released undispatched keys", zap.Int("keys", released))
	}
}

type windowKey struct{}

func WithWindow(ctx context.Context, w *Window) context.Context {
	return context.WithValue(ctx, windowKey{}, w)
}

func WindowFrom(ctx context.Context) *Window {
	w, _ := ctx.Value(windowKey{}).(*Window)
	return w
}
