// Package events fans sync hints out across server instances through Redis
// pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-notify/internal/types"
	"github.com/redis/go-redis/v9"
)

const HintChannel = "gonotify:sync-hints"

// Publisher delivers a sync hint to the connections of the hint's users.
type Publisher interface {
	Publish(ctx context.Context, hint types.SyncHint) error
}

type RedisBus struct {
	client  *redis.Client
	channel string
	log     *log.Logger
}

func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBusWithClient(client, logger), nil
}

func NewRedisBusWithClient(client *redis.Client, logger *log.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: HintChannel,
		log:     logger,
	}
}

func (b *RedisBus) Publish(ctx context.Context, hint types.SyncHint) error {
	payload, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("marshal sync hint: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish sync hint: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server, so hints
// published afterwards are not missed.
func (b *RedisBus) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	return &Subscription{sub: sub, log: b.log}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type Subscription struct {
	sub *redis.PubSub
	log *log.Logger
}

// Relay forwards every hint received on the subscription to local until ctx is
// done or the subscription is closed.
func (s *Subscription) Relay(ctx context.Context, local Publisher) {
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var hint types.SyncHint
			if err := json.Unmarshal([]byte(msg.Payload), &hint); err != nil {
				s.log.Printf("discarding malformed sync hint: %v", err)
				continue
			}
			if err := local.Publish(ctx, hint); err != nil {
				s.log.Printf("relay sync hint for channel %d: %v", hint.ChannelId, err)
			}
		}
	}
}

func (s *Subscription) Close() error {
	return s.sub.Close()
}
