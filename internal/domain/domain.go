package domain

// UserID identifies a user across the whole system. Issued by the external
// identity collaborator; this subsystem never creates or validates them.
type UserID int64

// ChatID identifies a conversation. Membership is owned by an external
// collaborator and only read here.
type ChatID int64

// Status is the broadcast-visible aggregate per-user presence, derived from
// the global active-connection count.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Visibility is the per-user privacy policy gating live presence disclosure.
// ApproxOnly and Nobody both suppress live broadcasts; the coarse "last seen"
// signal for ApproxOnly is owned by an external collaborator.
type Visibility string

const (
	VisibilityEveryone   Visibility = "everyone"
	VisibilityApproxOnly Visibility = "approx_only"
	VisibilityNobody     Visibility = "nobody"
)

// Broadcastable reports whether live presence events may be published for a
// user with this visibility.
func (v Visibility) Broadcastable() bool {
	return v == VisibilityEveryone
}

// PresenceEvent is the bus payload for an online/offline transition.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID UserID `json:"user_id"`
	Status Status `json:"status"`
}

func NewPresenceEvent(user UserID, status Status) PresenceEvent {
	return PresenceEvent{Type: "presence", UserID: user, Status: status}
}

// TypingEvent is the bus payload for a pass-through typing notification.
type TypingEvent struct {
	Type   string `json:"type"`
	ChatID ChatID `json:"chat_id"`
	UserID UserID `json:"user_id"`
}

func NewTypingEvent(chat ChatID, user UserID) TypingEvent {
	return TypingEvent{Type: "typing", ChatID: chat, UserID: user}
}
