package chat

import (
	"context"
	"sync"
)

// Subscription is a live query handle. It delivers full snapshots until the
// backend stops or Close is called. A slow reader only ever sees the latest
// snapshot.
type Subscription[T any] struct {
	updates chan []T
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	err     error
}

// Watch runs listen in its own goroutine. listen must return once ctx is
// cancelled; emit may only be called from listen's goroutine.
func Watch[T any](ctx context.Context, listen func(ctx context.Context, emit func([]T)) error) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan []T, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go func() {
		// done closes first so Err is settled once Updates is drained
		defer close(s.updates)
		defer close(s.done)
		if err := listen(ctx, s.emit); err != nil && ctx.Err() == nil {
			s.err = err
		}
	}()
	return s
}

func (s *Subscription[T]) emit(items []T) {
	for {
		select {
		case s.updates <- items:
			return
		default:
		}
		// replace the snapshot nobody read yet
		select {
		case <-s.updates:
		default:
		}
	}
}

// Updates is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan []T {
	return s.updates
}

// Err reports why the subscription ended. It is nil while running and after
// a Close.
func (s *Subscription[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops the listener and waits for it to exit. Safe to call twice.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
