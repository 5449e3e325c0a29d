package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "medeasy:events:"

func channel(name string) string {
	return channelPrefix + name
}

// RedisBus publishes events on Redis pub/sub so services running in
// different processes receive them. Handlers run once Run is started.
type RedisBus struct {
	client   redis.UniversalClient
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

func NewRedisBus(client redis.UniversalClient, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, handlers: make(map[string][]Handler), logger: logger}
}

func (b *RedisBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	if err := b.client.Publish(ctx, channel(e.Name), payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Name, err)
	}
	return nil
}

// Run listens on the channels of every subscribed event until ctx ends.
func (b *RedisBus) Run(ctx context.Context) error {
	b.mu.RLock()
	channels := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		channels = append(channels, channel(name))
	}
	b.mu.RUnlock()
	if len(channels) == 0 {
		<-ctx.Done()
		return nil
	}

	sub := b.client.Subscribe(ctx, channels...)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handle(ctx, msg)
		}
	}
}

func (b *RedisBus) handle(ctx context.Context, msg *redis.Message) {
	var e Event
	if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
		b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("discarding malformed event")
		return
	}
	if e.Name == "" {
		e.Name = strings.TrimPrefix(msg.Channel, channelPrefix)
	}

	b.mu.RLock()
	handlers := b.handlers[e.Name]
	b.mu.RUnlock()
	for _, h := range handlers {
		dispatch(ctx, b.logger, h, e)
	}
}
