package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/pscheid92/presencepulse/internal/metrics"
)

// Publisher is the fanout side the aggregator emits into. Publish is
// best-effort; failures are absorbed downstream.
type Publisher interface {
	Publish(ctx context.Context, chat domain.ChatID, event any)
}

// Aggregator maintains the logical two-state machine per user: Offline
// (initial) and Online. A user is online iff their global active-connection
// count is at least one. Transitions are the atomic counter edges themselves:
// an increment returning exactly 1 is Offline→Online, a decrement returning
// exactly 0 is Online→Offline. The counter is shared, so exactly one process
// in the cluster observes each edge; the edge, not any process-local state,
// is what gates a broadcast.
type Aggregator struct {
	mu   sync.Mutex
	last map[domain.UserID]domain.Status

	// lookups collapses concurrent visibility/membership reads for the
	// same user into one collaborator round trip.
	lookups singleflight.Group

	filter     *Filter
	membership domain.MembershipStore
	publisher  Publisher
}

func NewAggregator(publisher Publisher, filter *Filter, membership domain.MembershipStore) *Aggregator {
	return &Aggregator{
		last:       make(map[domain.UserID]domain.Status),
		filter:     filter,
		membership: membership,
		publisher:  publisher,
	}
}

// Recompute inspects the post-operation global count together with the
// mutation direction and broadcasts only on a genuine edge: an increment that
// returned exactly 1, or a decrement that returned exactly 0. Intermediate
// counts (a second device while one is already active, one of several devices
// leaving) and clamped decrements (count already zero, reported as -1) carry
// no transition and are suppressed. A nobody/approx_only visibility
// suppresses the broadcast but the status record still advances.
func (a *Aggregator) Recompute(ctx context.Context, user domain.UserID, count int64, delta int) {
	var status domain.Status
	switch {
	case delta > 0 && count == 1:
		status = domain.StatusOnline
	case delta < 0 && count == 0:
		status = domain.StatusOffline
	default:
		metrics.PresenceSuppressedTotal.WithLabelValues("no_transition").Inc()
		return
	}

	// The edge alone is authoritative. The local record only answers
	// Status queries; another process may have observed the opposite edge
	// in between, so it must never veto a broadcast.
	a.mu.Lock()
	a.last[user] = status
	a.mu.Unlock()

	vis, err := a.visibilityOf(ctx, user)
	if err != nil {
		// Fail closed: better to miss a transition than leak one.
		slog.Error("Visibility lookup failed, suppressing broadcast", "user_id", int64(user), "error", err)
		metrics.PresenceSuppressedTotal.WithLabelValues("privacy").Inc()
		return
	}
	if !vis.Broadcastable() {
		metrics.PresenceSuppressedTotal.WithLabelValues("privacy").Inc()
		return
	}

	// Presence goes to observers: every chat the subject is a member of,
	// not only the chats the subject itself subscribed to.
	chats, err := a.chatsOf(ctx, user)
	if err != nil {
		slog.Error("Membership enumeration failed, presence transition not broadcast", "user_id", int64(user), "error", err)
		return
	}

	event := domain.NewPresenceEvent(user, status)
	for _, chat := range chats {
		a.publisher.Publish(ctx, chat, event)
	}
	metrics.PresenceBroadcastsTotal.WithLabelValues(string(status)).Inc()
	slog.Info("Presence transition broadcast", "user_id", int64(user), "status", string(status), "chats", len(chats))
}

func (a *Aggregator) visibilityOf(ctx context.Context, user domain.UserID) (domain.Visibility, error) {
	v, err, _ := a.lookups.Do(fmt.Sprintf("vis:%d", user), func() (any, error) {
		return a.filter.VisibilityOf(ctx, user)
	})
	if err != nil {
		return "", err
	}
	return v.(domain.Visibility), nil
}

func (a *Aggregator) chatsOf(ctx context.Context, user domain.UserID) ([]domain.ChatID, error) {
	v, err, _ := a.lookups.Do(fmt.Sprintf("chats:%d", user), func() (any, error) {
		return a.membership.ChatsOf(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ChatID), nil
}

// Status returns the last status this process observed an edge for,
// defaulting to offline.
func (a *Aggregator) Status(user domain.UserID) domain.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.last[user]; ok {
		return s
	}
	return domain.StatusOffline
}
