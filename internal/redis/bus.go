package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pscheid92/presencepulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func chatChannel(chat domain.ChatID) string {
	return fmt.Sprintf("chat:%d", chat)
}

// Bus implements domain.Bus on Redis Pub/Sub, one channel per chat.
type Bus struct {
	rdb *goredis.Client
}

func NewBus(rdb *goredis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish sends a payload to every process subscribed to the chat's channel,
// including this one.
func (b *Bus) Publish(ctx context.Context, chat domain.ChatID, payload []byte) error {
	if err := b.rdb.Publish(ctx, chatChannel(chat), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", chatChannel(chat), err)
	}
	return nil
}

// busSubscription keeps the receive goroutine alive until closed.
type busSubscription struct {
	sub    *goredis.PubSub
	cancel context.CancelFunc
}

func (s *busSubscription) Close() error {
	s.cancel()
	return s.sub.Close()
}

// Subscribe opens the chat's channel and blocks until Redis confirms the
// subscription. This confirmation is what lets the gateway order the
// subscribed-ack before any later delivery.
func (b *Bus) Subscribe(ctx context.Context, chat domain.ChatID, deliver func(payload []byte)) (io.Closer, error) {
	channel := chatChannel(chat)
	sub := b.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation from Redis.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to confirm subscription to %s: %w", channel, err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	go func() {
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			case <-recvCtx.Done():
				return
			}
		}
	}()

	slog.Debug("Bus channel subscribed", "channel", channel)
	return &busSubscription{sub: sub, cancel: cancel}, nil
}
