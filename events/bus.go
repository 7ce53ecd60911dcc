package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Handler reacts to a published event.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the narrow handle producers depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus fans events out to subscribers. With zero workers dispatch happens on the
// publisher's goroutine; otherwise events are queued and drained by workers.
type Bus struct {
	log      *zap.Logger
	mu       sync.RWMutex
	handlers map[Kind][]Handler

	queue   chan Event
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// NewBus creates a bus. queueSize is ignored when workers is 0.
func NewBus(log *zap.Logger, workers, queueSize int) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{
		log:      log,
		handlers: map[Kind][]Handler{},
	}
	if workers > 0 {
		if queueSize <= 0 {
			queueSize = 1024
		}
		b.queue = make(chan Event, queueSize)
		for i := 0; i < workers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
	}
	return b
}

// Subscribe registers h for events of the given kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], h)
	b.mu.Unlock()
}

// Publish delivers ev to its subscribers. In async mode it blocks only while the
// queue is full, or until ctx is done.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return ErrBusClosed
	}
	if b.queue == nil {
		b.closeMu.RUnlock()
		b.dispatch(ctx, ev)
		return nil
	}
	defer b.closeMu.RUnlock()
	select {
	case b.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until queued ones are handled.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.closeMu.Unlock()
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for ev := range b.queue {
		// queued events outlive the publishing request
		b.dispatch(context.Background(), ev)
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	hs := b.handlers[ev.Kind]
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			b.log.Warn("event handler failed",
				zap.String("event_id", ev.ID),
				zap.String("kind", string(ev.Kind)),
				zap.Uint("user_id", ev.UserID),
				zap.Error(err))
		}
	}
}
