package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBus is an in-memory domain.Bus with self-delivery, standing in for the
// Redis substrate.
type memBus struct {
	mu         sync.Mutex
	handlers   map[domain.ChatID][]func([]byte)
	publishErr error
	subErr     error
	subs       int
}

func newMemBus() *memBus {
	return &memBus{handlers: make(map[domain.ChatID][]func([]byte))}
}

func (b *memBus) Publish(_ context.Context, chat domain.ChatID, payload []byte) error {
	b.mu.Lock()
	if b.publishErr != nil {
		defer b.mu.Unlock()
		return b.publishErr
	}
	handlers := append(([]func([]byte))(nil), b.handlers[chat]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

type memSub struct {
	close func()
}

func (s *memSub) Close() error {
	s.close()
	return nil
}

func (b *memBus) Subscribe(_ context.Context, chat domain.ChatID, deliver func([]byte)) (io.Closer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.handlers[chat] = append(b.handlers[chat], deliver)
	b.subs++
	return &memSub{close: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[chat] = nil
		b.subs--
	}}, nil
}

func (b *memBus) openSubs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

type recordingDelivery struct {
	mu       sync.Mutex
	payloads map[domain.ChatID][][]byte
}

func newRecordingDelivery() *recordingDelivery {
	return &recordingDelivery{payloads: make(map[domain.ChatID][][]byte)}
}

func (r *recordingDelivery) DeliverLocal(chat domain.ChatID, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[chat] = append(r.payloads[chat], payload)
}

func (r *recordingDelivery) count(chat domain.ChatID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads[chat])
}

func TestSubscribeAndSelfDelivery(t *testing.T) {
	bus := newMemBus()
	delivery := newRecordingDelivery()
	f := New(bus, delivery)
	ctx := context.Background()

	require.NoError(t, f.Subscribe(ctx, 42))

	f.Publish(ctx, 42, domain.NewTypingEvent(42, 7))

	require.Equal(t, 1, delivery.count(42))

	var event domain.TypingEvent
	delivery.mu.Lock()
	payload := delivery.payloads[42][0]
	delivery.mu.Unlock()
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, domain.UserID(7), event.UserID)
}

func TestSubscribe_RefcountSharesOneBusSubscription(t *testing.T) {
	bus := newMemBus()
	f := New(bus, newRecordingDelivery())
	ctx := context.Background()

	require.NoError(t, f.Subscribe(ctx, 42))
	require.NoError(t, f.Subscribe(ctx, 42))
	assert.Equal(t, 1, bus.openSubs())

	f.Release(42)
	assert.Equal(t, 1, bus.openSubs(), "first release keeps the channel open")
	assert.True(t, f.Subscribed(42))

	f.Release(42)
	assert.Equal(t, 0, bus.openSubs(), "last release closes the channel")
	assert.False(t, f.Subscribed(42))
}

func TestSubscribe_FailureIsRetriable(t *testing.T) {
	bus := newMemBus()
	f := New(bus, newRecordingDelivery())
	ctx := context.Background()

	bus.subErr = errors.New("bus unavailable")
	err := f.Subscribe(ctx, 42)
	require.Error(t, err)
	assert.False(t, f.Subscribed(42))

	bus.subErr = nil
	require.NoError(t, f.Subscribe(ctx, 42))
	assert.Equal(t, 1, bus.openSubs())
}

func TestPublish_BusErrorIsSwallowed(t *testing.T) {
	bus := newMemBus()
	f := New(bus, newRecordingDelivery())

	bus.publishErr = errors.New("bus unavailable")
	// Must not panic or propagate; presence is best-effort.
	f.Publish(context.Background(), 42, domain.NewPresenceEvent(7, domain.StatusOnline))
}

func TestRelease_UnknownChatIsNoop(t *testing.T) {
	f := New(newMemBus(), newRecordingDelivery())
	f.Release(999)
}

func TestPublish_NoDeliveryWithoutSubscription(t *testing.T) {
	bus := newMemBus()
	delivery := newRecordingDelivery()
	f := New(bus, delivery)

	f.Publish(context.Background(), 42, domain.NewPresenceEvent(7, domain.StatusOnline))

	assert.Equal(t, 0, delivery.count(42))
}
