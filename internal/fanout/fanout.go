package fanout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/pscheid92/presencepulse/internal/metrics"
)

// busTimeout bounds the subscription round trip against the bus. Publishes
// are bounded by the caller's context.
const busTimeout = 5 * time.Second

// Delivery receives decoded bus payloads for local fanout.
type Delivery interface {
	DeliverLocal(chat domain.ChatID, payload []byte)
}

// DeliveryFunc adapts a plain function to the Delivery interface.
type DeliveryFunc func(chat domain.ChatID, payload []byte)

func (f DeliveryFunc) DeliverLocal(chat domain.ChatID, payload []byte) { f(chat, payload) }

// chatRef is one refcounted bus subscription. ready is closed once the open
// attempt finished; err and closer are immutable after that.
type chatRef struct {
	refs   int
	ready  chan struct{}
	err    error
	closer io.Closer
}

// Fanout owns the per-chat bus subscriptions of this process. Each chat's
// channel is opened when the first local connection subscribes and closed
// when the last reference is released. Subscribe blocks until the bus has
// confirmed the channel, which is what allows the gateway to send the
// subscribed ack strictly before any delivered event.
type Fanout struct {
	bus      domain.Bus
	delivery Delivery

	mu    sync.Mutex
	chats map[domain.ChatID]*chatRef
}

func New(bus domain.Bus, delivery Delivery) *Fanout {
	return &Fanout{
		bus:      bus,
		delivery: delivery,
		chats:    make(map[domain.ChatID]*chatRef),
	}
}

// Subscribe takes a reference on the chat's bus channel, opening it if this
// is the first reference, and blocks until the subscription is confirmed.
// Every successful call must be paired with a Release.
func (f *Fanout) Subscribe(ctx context.Context, chat domain.ChatID) error {
	f.mu.Lock()
	ref, ok := f.chats[chat]
	if !ok {
		ref = &chatRef{ready: make(chan struct{})}
		f.chats[chat] = ref
		go f.open(chat, ref)
	}
	ref.refs++
	f.mu.Unlock()

	select {
	case <-ref.ready:
	case <-ctx.Done():
		f.Release(chat)
		return ctx.Err()
	}

	if ref.err != nil {
		f.Release(chat)
		return ref.err
	}
	return nil
}

// open performs the bus round trip outside the lock.
func (f *Fanout) open(chat domain.ChatID, ref *chatRef) {
	ctx, cancel := context.WithTimeout(context.Background(), busTimeout)
	defer cancel()

	closer, err := f.bus.Subscribe(ctx, chat, func(payload []byte) {
		f.delivery.DeliverLocal(chat, payload)
	})

	f.mu.Lock()
	ref.closer = closer
	ref.err = err
	switch {
	case err != nil:
		// Drop the failed ref so a later subscribe retries from scratch.
		// Guard against a fresh ref that already replaced this one.
		if f.chats[chat] == ref {
			delete(f.chats, chat)
		}
	case ref.refs == 0:
		// Every waiter gave up while we were opening.
		if f.chats[chat] == ref {
			delete(f.chats, chat)
		}
		_ = closer.Close()
	default:
		metrics.BusSubscriptionsActive.Inc()
	}
	f.mu.Unlock()

	close(ref.ready)
}

// Release drops one reference on the chat's bus channel, closing it when the
// last local subscriber is gone.
func (f *Fanout) Release(chat domain.ChatID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref, ok := f.chats[chat]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs > 0 {
		return
	}
	delete(f.chats, chat)
	if ref.closer != nil {
		_ = ref.closer.Close()
		metrics.BusSubscriptionsActive.Dec()
	}
	// A still-pending open() sees refs == 0 and closes the channel itself.
}

// Publish marshals the event and sends it to the chat's channel. Best-effort:
// a bus failure degrades presence delivery only, so it is logged and
// swallowed rather than surfaced to the caller.
func (f *Fanout) Publish(ctx context.Context, chat domain.ChatID, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal fanout event", "chat_id", int64(chat), "error", err)
		return
	}
	if err := f.bus.Publish(ctx, chat, payload); err != nil {
		metrics.BusPublishFailuresTotal.Inc()
		slog.Warn("Bus publish failed, event dropped", "chat_id", int64(chat), "error", err)
	}
}

// Subscribed reports whether this process currently holds an open or pending
// bus subscription for chat.
func (f *Fanout) Subscribed(chat domain.ChatID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.chats[chat]
	return ok
}
