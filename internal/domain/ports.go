package domain

import (
	"context"
	"io"
)

// TokenVerifier authenticates an inbound connection from a bearer token.
// Backed by the external identity collaborator.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (UserID, error)
}

// MembershipStore answers chat-membership questions. Read-only; ownership
// lives with the chat CRUD collaborator.
type MembershipStore interface {
	// IsMember reports whether user may subscribe to chat.
	IsMember(ctx context.Context, chat ChatID, user UserID) (bool, error)
	// ChatsOf enumerates the chats whose members should observe the user's
	// presence transitions.
	ChatsOf(ctx context.Context, user UserID) ([]ChatID, error)
}

// SettingsStore reads the per-user presence visibility setting. Read-only;
// ownership lives with the settings collaborator.
type SettingsStore interface {
	VisibilityOf(ctx context.Context, user UserID) (Visibility, error)
}

// PresenceCounter is the authoritative, process-spanning count of a user's
// active connections. Mutations are atomic on the shared substrate; the
// returned value is the count immediately after the operation, which is the
// only place a 0→1 or 1→0 transition can be observed race-free.
type PresenceCounter interface {
	// Incr returns the count after the increment. A return of exactly 1 is
	// the Offline→Online edge.
	Incr(ctx context.Context, user UserID) (int64, error)
	// Decr returns the count after the decrement, or -1 when the count was
	// already zero and left unchanged. A return of exactly 0 is the
	// Online→Offline edge; -1 is drift, not a transition.
	Decr(ctx context.Context, user UserID) (int64, error)
}

// Bus is the cross-process publish/subscribe substrate, keyed by chat.
// Delivery is best-effort and at-most-once; the publishing process receives
// its own publications if subscribed.
type Bus interface {
	Publish(ctx context.Context, chat ChatID, payload []byte) error
	// Subscribe opens a channel subscription and returns only after the
	// substrate has confirmed it. deliver is invoked for every subsequent
	// payload on the channel until the returned closer is closed.
	Subscribe(ctx context.Context, chat ChatID, deliver func(payload []byte)) (io.Closer, error)
}
