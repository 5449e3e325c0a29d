package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryBus dispatches events in process. Each handler runs in its own
// goroutine, detached from the publisher's cancellation.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler), logger: logger}
}

func (b *MemoryBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	detached := context.WithoutCancel(ctx)
	for _, h := range b.handlers[e.Name] {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			dispatch(detached, b.logger, h, e)
		}(h)
	}
	return nil
}

// Close rejects further events and waits for running handlers.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func dispatch(ctx context.Context, logger zerolog.Logger, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("event", e.Name).Msg("event handler panicked")
		}
	}()
	if err := h(ctx, e); err != nil {
		logger.Error().Err(err).Str("event", e.Name).Str("event_id", e.ID.String()).Msg("event handler failed")
	}
}
