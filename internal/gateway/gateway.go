package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/pscheid92/presencepulse/internal/fanout"
	"github.com/pscheid92/presencepulse/internal/logging"
	"github.com/pscheid92/presencepulse/internal/metrics"
	"github.com/pscheid92/presencepulse/internal/registry"
)

// opTimeout bounds every collaborator/bus round trip made on behalf of a
// single inbound frame.
const opTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Tokens authenticate the socket, not cookies, so cross-origin
		// upgrades carry no ambient authority.
		return true
	},
}

// Gateway terminates client connections: it parses inbound frames into typed
// commands, drives the registry and fanout, and serializes outbound events.
type Gateway struct {
	registry    *registry.Registry
	fanout      *fanout.Fanout
	verifier    domain.TokenVerifier
	membership  domain.MembershipStore
	authTimeout time.Duration
	clock       clockwork.Clock
}

func New(reg *registry.Registry, fan *fanout.Fanout, verifier domain.TokenVerifier, membership domain.MembershipStore, authTimeout time.Duration, clock clockwork.Clock) *Gateway {
	return &Gateway{
		registry:    reg,
		fanout:      fan,
		verifier:    verifier,
		membership:  membership,
		authTimeout: authTimeout,
		clock:       clock,
	}
}

// Handle upgrades the request and serves the connection until it closes.
func (g *Gateway) Handle(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}
	g.serve(ws)
	return nil
}

func (g *Gateway) serve(ws *websocket.Conn) {
	writer := newClientWriter(ws, g.clock)
	defer writer.stop()

	conn, ok := g.authenticate(ws, writer)
	if !ok {
		return
	}

	log := logging.WithUser(conn.UserID()).With("connection_id", conn.ID().String())
	log.Info("Connection authenticated")

	g.readLoop(ws, writer, conn, log)
	g.teardown(conn)
	log.Info("Connection closed")
}

// authenticate runs the Unauthenticated phase: exactly one valid auth frame
// within the auth window, anything else closes the connection.
func (g *Gateway) authenticate(ws *websocket.Conn, writer *clientWriter) (*registry.Connection, bool) {
	_ = ws.SetReadDeadline(g.clock.Now().Add(g.authTimeout))

	_, raw, err := ws.ReadMessage()
	if err != nil {
		return nil, false
	}

	frame, err := parseFrame(raw)
	if err != nil || frame.Type != frameAuth {
		metrics.AuthFailuresTotal.Inc()
		g.send(writer, newError(domain.ErrNotAuthenticated.Error()))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	user, err := g.verifier.Verify(ctx, frame.Token)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
		slog.Info("Authentication rejected", "error", err)
		g.send(writer, newError(domain.ErrTokenInvalid.Error()))
		return nil, false
	}

	// Authenticated: lift the read deadline, commands now flow freely.
	_ = ws.SetReadDeadline(time.Time{})

	active := true
	if frame.Active != nil {
		active = *frame.Active
	}
	conn := g.registry.Register(ctx, user, active, writer)

	g.send(writer, newAuthOK(int64(user)))
	return conn, true
}

func (g *Gateway) readLoop(ws *websocket.Conn, writer *clientWriter, conn *registry.Connection, log *slog.Logger) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		frame, err := parseFrame(raw)
		if err != nil {
			// Malformed input after auth is ignored, not fatal.
			metrics.FramesTotal.WithLabelValues("unknown", "malformed").Inc()
			log.Debug("Ignoring malformed frame", "error", err)
			continue
		}

		g.dispatch(writer, conn, frame, log)
	}
}

func (g *Gateway) dispatch(writer *clientWriter, conn *registry.Connection, frame inboundFrame, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch frame.Type {
	case frameSubscribe:
		g.handleSubscribe(ctx, writer, conn, frame.ChatID, log)
	case framePresenceUpdate:
		g.handlePresenceUpdate(ctx, writer, conn, frame.Status, log)
	case frameTyping:
		g.handleTyping(ctx, writer, conn, frame.ChatID)
	case framePing:
		metrics.FramesTotal.WithLabelValues(framePing, "ok").Inc()
		g.send(writer, newPong())
	case frameAuth:
		metrics.FramesTotal.WithLabelValues(frameAuth, "rejected").Inc()
		g.send(writer, newError("already authenticated"))
	default:
		metrics.FramesTotal.WithLabelValues("unknown", "rejected").Inc()
		g.send(writer, newError("unknown message type: "+frame.Type))
	}
}

// handleSubscribe orders the steps so the subscribed ack is enqueued before
// the connection joins the local delivery set: the bus subscription is
// confirmed first, then the ack, then delivery membership. Anything delivered
// to this connection was therefore published after the ack was already ahead
// of it in the write queue.
func (g *Gateway) handleSubscribe(ctx context.Context, writer *clientWriter, conn *registry.Connection, chatID int64, log *slog.Logger) {
	if chatID <= 0 {
		metrics.FramesTotal.WithLabelValues(frameSubscribe, "rejected").Inc()
		g.send(writer, newError("invalid chat_id"))
		return
	}
	chat := domain.ChatID(chatID)

	if g.registry.Subscribed(conn, chat) {
		// Idempotent re-subscribe: just re-ack.
		metrics.FramesTotal.WithLabelValues(frameSubscribe, "ok").Inc()
		g.send(writer, newSubscribed(chatID))
		return
	}

	member, err := g.membership.IsMember(ctx, chat, conn.UserID())
	if err != nil {
		metrics.FramesTotal.WithLabelValues(frameSubscribe, "error").Inc()
		log.Error("Membership check failed", "chat_id", chatID, "error", err)
		g.send(writer, newError("internal error"))
		return
	}
	if !member {
		metrics.FramesTotal.WithLabelValues(frameSubscribe, "rejected").Inc()
		g.send(writer, newError(domain.ErrNotChatMember.Error()))
		return
	}

	if err := g.fanout.Subscribe(ctx, chat); err != nil {
		metrics.FramesTotal.WithLabelValues(frameSubscribe, "error").Inc()
		log.Warn("Bus subscription failed", "chat_id", chatID, "error", err)
		g.send(writer, newError("subscription unavailable"))
		return
	}

	g.send(writer, newSubscribed(chatID))

	if _, err := g.registry.Subscribe(conn, chat); err != nil {
		// Connection closed while we were confirming the bus channel.
		g.fanout.Release(chat)
		return
	}
	metrics.FramesTotal.WithLabelValues(frameSubscribe, "ok").Inc()
	log.Info("Subscribed to chat", "chat_id", chatID)
}

func (g *Gateway) handlePresenceUpdate(ctx context.Context, writer *clientWriter, conn *registry.Connection, status string, log *slog.Logger) {
	switch status {
	case "active":
		g.registry.SetActive(ctx, conn, true)
	case "away":
		g.registry.SetActive(ctx, conn, false)
	default:
		metrics.FramesTotal.WithLabelValues(framePresenceUpdate, "malformed").Inc()
		log.Debug("Ignoring presence_update with unknown status", "status", status)
		return
	}
	metrics.FramesTotal.WithLabelValues(framePresenceUpdate, "ok").Inc()
}

// handleTyping forwards the event to the chat's channel without touching
// presence state.
func (g *Gateway) handleTyping(ctx context.Context, writer *clientWriter, conn *registry.Connection, chatID int64) {
	if chatID <= 0 {
		metrics.FramesTotal.WithLabelValues(frameTyping, "rejected").Inc()
		g.send(writer, newError("invalid chat_id"))
		return
	}
	metrics.FramesTotal.WithLabelValues(frameTyping, "ok").Inc()
	g.fanout.Publish(ctx, domain.ChatID(chatID), domain.NewTypingEvent(domain.ChatID(chatID), conn.UserID()))
}

func (g *Gateway) teardown(conn *registry.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	chats, ok := g.registry.Unregister(ctx, conn)
	if !ok {
		return
	}
	for _, chat := range chats {
		g.fanout.Release(chat)
	}
}

func (g *Gateway) send(writer *clientWriter, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "error", err)
		return
	}
	if !writer.Enqueue(payload) {
		slog.Warn("Dropped outbound frame to slow client")
	}
}
