package gateway

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types.
const (
	frameAuth           = "auth"
	frameSubscribe      = "subscribe"
	framePresenceUpdate = "presence_update"
	frameTyping         = "typing"
	framePing           = "ping"
)

// inboundFrame is the union of all client commands, discriminated by Type.
type inboundFrame struct {
	Type   string `json:"type"`
	Token  string `json:"token,omitempty"`
	Active *bool  `json:"active,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
	Status string `json:"status,omitempty"`
}

func parseFrame(raw []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return inboundFrame{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if frame.Type == "" {
		return inboundFrame{}, fmt.Errorf("missing type field")
	}
	return frame, nil
}

type authOKFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

type subscribedFrame struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}

func newAuthOK(userID int64) authOKFrame    { return authOKFrame{Type: "auth_ok", UserID: userID} }
func newSubscribed(chat int64) subscribedFrame {
	return subscribedFrame{Type: "subscribed", ChatID: chat}
}
func newError(message string) errorFrame { return errorFrame{Type: "error", Message: message} }
func newPong() pongFrame                 { return pongFrame{Type: "pong"} }
