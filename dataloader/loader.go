package dataloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// FetchFunc loads many entities at once. Keys missing from the returned map resolve as not found.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Observer receives one call per dispatched batch.
type Observer interface {
	ObserveDispatch(entityType EntityType, keys int, took time.Duration, err error)
}

type Config struct {
	// Wait dispatches a batch on its own after this long. Zero leaves dispatching to Flush.
	Wait time.Duration
	// MaxBatch caps the number of keys per fetch. Zero means unlimited.
	MaxBatch int
	Observer Observer
	Logger   *zap.Logger
}

type Option func(*Config)

func WithWait(d time.Duration) Option {
	return func(c *Config) { c.Wait = d }
}

func WithMaxBatch(n int) Option {
	return func(c *Config) { c.MaxBatch = n }
}

func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Loader batches the lookups of one entity type. Its mutex guards only the pending set and the
// handle table and is never held across a fetch.
type Loader[K comparable, V any] struct {
	entityType EntityType
	fetch      FetchFunc[K, V]
	validate   func(K) error
	cfg        Config
	ctx        context.Context
	flushFn    func(ctx context.Context) error

	mu      sync.Mutex
	entries map[K]*Thunk[V]
	current *batch[K, V]
	queue   []*batch[K, V]
	timer   *time.Timer
	closed  bool
}

type batch[K comparable, V any] struct {
	keys    []K
	done    chan struct{}
	results map[K]V
	err     error
}

func (b *batch[K, V]) result(key K) (Result[V], error) {
	if b.err != nil {
		return Result[V]{}, b.err
	}

	v, ok := b.results[key]
	if !ok {
		return NotFound[V](), nil
	}

	return Result[V]{Value: v, Found: true}, nil
}

// New returns a standalone loader. Loaders serving a query pass should come from Register instead.
func New[K comparable, V any](entityType EntityType, fetch FetchFunc[K, V], opts ...Option) *Loader[K, V] {
	return newLoader(context.Background(), entityType, fetch, nil, opts...)
}

func newLoader[K comparable, V any](
	ctx context.Context,
	entityType EntityType,
	fetch FetchFunc[K, V],
	flush func(ctx context.Context) error,
	opts ...Option,
) *Loader[K, V] {
	cfg := Config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Loader[K, V]{
		entityType: entityType,
		fetch:      fetch,
		validate:   rejectZero[K],
		cfg:        cfg,
		ctx:        ctx,
		entries:    map[K]*Thunk[V]{},
	}
	l.flushFn = flush
	if l.flushFn == nil {
		l.flushFn = l.Flush
	}

	return l
}

func rejectZero[K comparable](key K) error {
	var zero K
	if key == zero {
		return fmt.Errorf("%w: zero value", ErrInvalidKey)
	}

	return nil
}

// SetValidator replaces the key check. The default rejects the zero value of K.
func (l *Loader[K, V]) SetValidator(fn func(K) error) *Loader[K, V] {
	l.validate = fn
	return l
}

func (l *Loader[K, V]) EntityType() EntityType {
	return l.entityType
}

// Request registers interest in key and returns its handle. Asking again for a key already known
// to this loader returns the existing handle without any further fetch work.
func (l *Loader[K, V]) Request(key K) *Thunk[V] {
	if err := l.validate(key); err != nil {
		if !errors.Is(err, ErrInvalidKey) {
			err = fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return resolvedThunk(Result[V]{}, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.entries[key]; ok {
		return t
	}
	if l.closed {
		return resolvedThunk(Result[V]{}, ErrWindowClosed)
	}

	b := l.current
	if b == nil {
		b = &batch[K, V]{done: make(chan struct{})}
		l.current = b
		if l.cfg.Wait > 0 && l.timer == nil {
			l.timer = time.AfterFunc(l.cfg.Wait, l.onTimer)
		}
	}
	b.keys = append(b.keys, key)

	t := &Thunk[V]{
		done: b.done,
		get: func() (Result[V], error) {
			return b.result(key)
		},
		flush: l.flushFn,
	}
	l.entries[key] = t

	if l.cfg.MaxBatch > 0 && len(b.keys) >= l.cfg.MaxBatch {
		l.queue = append(l.queue, b)
		l.current = nil
	}

	return t
}

func (l *Loader[K, V]) onTimer() {
	l.mu.Lock()
	l.timer = nil
	l.mu.Unlock()

	_ = l.Flush(l.ctx)
}

// Flush dispatches every pending batch of this loader.
func (l *Loader[K, V]) Flush(ctx context.Context) error {
	l.mu.Lock()
	batches := l.queue
	if l.current != nil {
		batches = append(batches, l.current)
	}
	l.queue, l.current = nil, nil
	l.mu.Unlock()

	next := 0
	defer func() {
		if r := recover(); r != nil {
			// batches behind a broken fetch are never dispatched
			for _, b := range batches[next:] {
				b.err = ContractViolation{EntityType: l.entityType, Reason: "abandoned after an earlier violation"}
				close(b.done)
			}
			panic(r)
		}
	}()

	var result error
	for next < len(batches) {
		b := batches[next]
		next++
		if err := l.dispatch(ctx, b); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}

func (l *Loader[K, V]) dispatch(ctx context.Context, b *batch[K, V]) error {
	completed := false
	defer func() {
		if !completed {
			b.err = ContractViolation{EntityType: l.entityType, Reason: "fetch panicked"}
			close(b.done)
		}
	}()

	start := time.Now()
	values, err := l.fetch(ctx, b.keys)
	took := time.Since(start)

	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveDispatch(l.entityType, len(b.keys), took, err)
	}

	if err != nil {
		b.err = &FetchFailure{EntityType: l.entityType, Keys: anyKeys(b.keys), Cause: err}
		l.cfg.Logger.Warn("dataloader, fetch failed",
			zap.String("entity_type", string(l.entityType)),
			zap.Int("keys", len(b.keys)),
			zap.Error(err),
		)
	} else if violation := l.checkContract(b.keys, values); violation != nil {
		b.err = *violation
		completed = true
		close(b.done)
		panic(*violation)
	} else {
		b.results = values
		l.cfg.Logger.Debug("dataloader, batch dispatched",
			zap.String("entity_type", string(l.entityType)),
			zap.Int("keys", len(b.keys)),
			zap.Int("found", len(values)),
			zap.Duration("took", took),
		)
	}

	completed = true
	close(b.done)

	return b.err
}

func (l *Loader[K, V]) checkContract(keys []K, values map[K]V) *ContractViolation {
	if len(values) > len(keys) {
		return &ContractViolation{
			EntityType: l.entityType,
			Reason:     fmt.Sprintf("returned %d entities for %d keys", len(values), len(keys)),
		}
	}

	asked := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		asked[k] = struct{}{}
	}
	for k := range values {
		if _, ok := asked[k]; !ok {
			return &ContractViolation{
				EntityType: l.entityType,
				Reason:     fmt.Sprintf("returned unrequested key %v", k),
			}
		}
	}

	return nil
}

// Prime stores a known value for key. It returns false if the key is already known to the loader.
func (l *Loader[K, V]) Prime(key K, value V) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[key]; ok || l.closed {
		return false
	}

	l.entries[key] = resolvedThunk(Result[V]{Value: value, Found: true}, nil)
	return true
}

// Clear forgets a resolved key so the next request fetches it again. Keys still waiting for a
// dispatch are left alone.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.entries[key]; ok && t.Ready() {
		delete(l.entries, key)
	}
}

// Close fails every handle that was never dispatched and rejects later requests.
func (l *Loader[K, V]) Close() {
	l.mu.Lock()
	batches := l.queue
	if l.current != nil {
		batches = append(batches, l.current)
	}
	l.queue, l.current = nil, nil
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.entries = map[K]*Thunk[V]{}
	l.mu.Unlock()

	for _, b := range batches {
		b.err = ErrWindowClosed
		close(b.done)
	}
}

// Pending returns the number of keys waiting for a dispatch.
func (l *Loader[K, V]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, b := range l.queue {
		n += len(b.keys)
	}
	if l.current != nil {
		n += len(l.current.keys)
	}

	return n
}

func (l *Loader[K, V]) requestAny(key any) (Future, error) {
	k, ok := key.(K)
	if !ok {
		var zero K
		return nil, fmt.Errorf("%w: %s expects %T, got %T", ErrInvalidKey, l.entityType, zero, key)
	}

	return anyThunk[V]{l.Request(k)}, nil
}

func anyKeys[K comparable](keys []K) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}

	return out
}
