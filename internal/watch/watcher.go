// Package watch keeps an in-memory snapshot of a remote resource fresh by
// polling it on an interval. Consumers read the last good snapshot at any
// time; fetch failures never clear it.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
)

const defaultInterval = 30 * time.Second

// Fetcher loads the current upstream value.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is the watcher's current view of the resource.
type Snapshot[T any] struct {
	// Value is the last successfully fetched value. It survives later
	// fetch failures so readers always have the most recent good data.
	Value T
	// Loading is true until the first fetch completes, success or not.
	Loading bool
	// Err holds the most recent fetch error, cleared on the next success.
	Err error
	// UpdatedAt is when Value last changed hands.
	UpdatedAt time.Time
}

// Watcher polls a Fetcher and notifies on structural changes.
type Watcher[T any] struct {
	fetch    Fetcher[T]
	interval time.Duration
	onChange func(T)
	onError  func(error)
	equal    func(previous, current T) bool
	clock    func() time.Time

	mu       sync.Mutex
	snapshot Snapshot[T]
	hasValue bool
	stopped  bool

	wakeCh chan struct{}
}

// Option configures optional Watcher behaviour.
type Option[T any] func(*Watcher[T])

// WithInterval overrides the polling interval.
func WithInterval[T any](interval time.Duration) Option[T] {
	return func(w *Watcher[T]) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithOnChange registers a callback invoked when a fetch produces a value
// structurally different from the previous one.
func WithOnChange[T any](fn func(T)) Option[T] {
	return func(w *Watcher[T]) {
		w.onChange = fn
	}
}

// WithOnError registers a callback invoked on fetch failures.
func WithOnError[T any](fn func(error)) Option[T] {
	return func(w *Watcher[T]) {
		w.onError = fn
	}
}

// WithComparer overrides the structural equality check.
func WithComparer[T any](equal func(previous, current T) bool) Option[T] {
	return func(w *Watcher[T]) {
		if equal != nil {
			w.equal = equal
		}
	}
}

// WithClock injects a custom clock primarily for tests.
func WithClock[T any](clock func() time.Time) Option[T] {
	return func(w *Watcher[T]) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New constructs a Watcher over the supplied fetch function.
func New[T any](fetch Fetcher[T], opts ...Option[T]) (*Watcher[T], error) {
	if fetch == nil {
		return nil, errors.New("watch: fetch function is required")
	}

	w := &Watcher[T]{
		fetch:    fetch,
		interval: defaultInterval,
		equal: func(previous, current T) bool {
			return cmp.Equal(previous, current)
		},
		clock:    time.Now,
		snapshot: Snapshot[T]{Loading: true},
		wakeCh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run fetches immediately, then keeps polling until ctx is cancelled. After
// Run returns no callback fires and the snapshot no longer changes.
func (w *Watcher[T]) Run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
	}()

	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-w.wakeCh:
			// Silent refetch, e.g. the consumer became visible again.
			w.poll(ctx)
			ticker.Reset(w.interval)
		}
	}
}

// Wake schedules an immediate refetch without waiting for the next tick.
// Safe to call from any goroutine; extra wakes coalesce.
func (w *Watcher[T]) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Refresh fetches synchronously and applies the result, bypassing the poll
// loop. It returns the fetch error, which is also recorded in the snapshot.
func (w *Watcher[T]) Refresh(ctx context.Context) error {
	return w.poll(ctx)
}

// Snapshot returns the current view. The value is the last good fetch even
// when Err is set.
func (w *Watcher[T]) Snapshot() Snapshot[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

func (w *Watcher[T]) poll(ctx context.Context) error {
	value, err := w.fetch(ctx)

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return err
	}

	w.snapshot.Loading = false
	if err != nil {
		w.snapshot.Err = err
		onError := w.onError
		w.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return err
	}

	changed := !w.hasValue || !w.equal(w.snapshot.Value, value)
	w.snapshot.Err = nil
	if changed {
		w.snapshot.Value = value
		w.snapshot.UpdatedAt = w.clock().UTC()
		w.hasValue = true
	}
	onChange := w.onChange
	w.mu.Unlock()

	if changed && onChange != nil {
		onChange(value)
	}
	return nil
}
