package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/pscheid92/presencepulse/internal/metrics"
)

// Sink is the outbound side of a connection. Enqueue must not block; it
// reports false when the payload was dropped because the buffer was full.
type Sink interface {
	Enqueue(payload []byte) bool
}

// Notifier receives the post-operation global count and the direction of the
// mutation after every counter update, so the aggregator can detect the
// atomic 0→1 and 1→0 edges.
type Notifier interface {
	Recompute(ctx context.Context, user domain.UserID, count int64, delta int)
}

// Connection is one live transport session. All mutable fields are guarded
// by the owning Registry's lock.
type Connection struct {
	id        uuid.UUID
	userID    domain.UserID
	sink      Sink
	createdAt time.Time

	active bool
	closed bool
	subs   map[domain.ChatID]struct{}
}

func (c *Connection) ID() uuid.UUID         { return c.id }
func (c *Connection) UserID() domain.UserID { return c.userID }

// Registry is the authoritative per-process map from live connections to
// their owning user, active flag, and chat subscriptions.
type Registry struct {
	mu      sync.Mutex
	conns   map[uuid.UUID]*Connection
	chats   map[domain.ChatID]map[uuid.UUID]*Connection
	counter domain.PresenceCounter
	clock   clockwork.Clock

	notifier Notifier
}

func New(counter domain.PresenceCounter, notifier Notifier, clock clockwork.Clock) *Registry {
	return &Registry{
		conns:    make(map[uuid.UUID]*Connection),
		chats:    make(map[domain.ChatID]map[uuid.UUID]*Connection),
		counter:  counter,
		clock:    clock,
		notifier: notifier,
	}
}

// Register adds a new connection for user. If active, the global counter is
// incremented and the aggregator recomputes.
func (r *Registry) Register(ctx context.Context, user domain.UserID, active bool, sink Sink) *Connection {
	conn := &Connection{
		id:        uuid.New(),
		userID:    user,
		sink:      sink,
		createdAt: r.clock.Now(),
		active:    active,
		subs:      make(map[domain.ChatID]struct{}),
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()

	if active {
		r.bumpCounter(ctx, user, +1)
	}
	return conn
}

// SetActive records an explicit active/away intent. Repeated updates with the
// same flag are no-ops; this is the dedup boundary for presence_update frames.
func (r *Registry) SetActive(ctx context.Context, conn *Connection, active bool) {
	r.mu.Lock()
	if conn.closed || conn.active == active {
		r.mu.Unlock()
		return
	}
	conn.active = active
	r.mu.Unlock()

	delta := -1
	if active {
		delta = +1
	}
	r.bumpCounter(ctx, conn.userID, delta)
}

// Subscribe adds chat to the connection's subscription set. Returns true when
// this actually added a subscription; re-subscribing is idempotent and
// returns false. The caller holds the matching bus subscription reference for
// every true return.
func (r *Registry) Subscribe(conn *Connection, chat domain.ChatID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.closed {
		return false, domain.ErrConnectionClosed
	}
	if _, ok := conn.subs[chat]; ok {
		return false, nil
	}
	conn.subs[chat] = struct{}{}

	local, ok := r.chats[chat]
	if !ok {
		local = make(map[uuid.UUID]*Connection)
		r.chats[chat] = local
	}
	local[conn.id] = conn
	return true, nil
}

// Subscribed reports whether the connection currently subscribes to chat.
func (r *Registry) Subscribed(conn *Connection, chat domain.ChatID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := conn.subs[chat]
	return ok
}

// Unregister removes the connection, decrementing the counter exactly once if
// it was active. Safe to call from both the transport close path and an
// explicit disconnect; the second call is a no-op. Returns the chats the
// connection was subscribed to so the caller can release its bus references.
func (r *Registry) Unregister(ctx context.Context, conn *Connection) ([]domain.ChatID, bool) {
	r.mu.Lock()
	if conn.closed {
		r.mu.Unlock()
		return nil, false
	}
	conn.closed = true
	wasActive := conn.active
	conn.active = false

	chats := make([]domain.ChatID, 0, len(conn.subs))
	for chat := range conn.subs {
		chats = append(chats, chat)
		r.dropFromChat(conn, chat)
	}
	conn.subs = nil
	delete(r.conns, conn.id)
	r.mu.Unlock()

	metrics.ConnectionsActive.Dec()

	if wasActive {
		r.bumpCounter(ctx, conn.userID, -1)
	}
	return chats, true
}

// DeliverLocal fans a bus payload out to every local connection subscribed to
// chat. Slow clients have the payload dropped instead of blocking the fanout.
func (r *Registry) DeliverLocal(chat domain.ChatID, payload []byte) {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.chats[chat]))
	for _, conn := range r.chats[chat] {
		sinks = append(sinks, conn.sink)
	}
	r.mu.Unlock()

	for _, sink := range sinks {
		if !sink.Enqueue(payload) {
			metrics.DroppedDeliveriesTotal.Inc()
			slog.Warn("Dropped delivery to slow client", "chat_id", int64(chat))
		}
	}
}

// Len returns the number of live connections on this instance.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// LocalSubscribers returns the number of local connections subscribed to chat.
func (r *Registry) LocalSubscribers(chat domain.ChatID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats[chat])
}

// dropFromChat removes conn from the chat's local subscriber set.
// Caller holds r.mu.
func (r *Registry) dropFromChat(conn *Connection, chat domain.ChatID) {
	local, ok := r.chats[chat]
	if !ok {
		return
	}
	delete(local, conn.id)
	if len(local) == 0 {
		delete(r.chats, chat)
	}
}

// bumpCounter mutates the global counter and feeds the post-operation count
// plus the mutation direction to the aggregator. A counter failure is logged
// and swallowed: presence is ephemeral and self-heals on the next reconnect.
func (r *Registry) bumpCounter(ctx context.Context, user domain.UserID, delta int) {
	var (
		count int64
		err   error
	)
	if delta > 0 {
		count, err = r.counter.Incr(ctx, user)
	} else {
		count, err = r.counter.Decr(ctx, user)
	}
	if err != nil {
		metrics.CounterErrorsTotal.Inc()
		slog.Error("Presence counter update failed", "user_id", int64(user), "delta", delta, "error", err)
		return
	}
	r.notifier.Recompute(ctx, user, count, delta)
}
