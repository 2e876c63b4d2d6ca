package ws

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"amici-chat/internal/auth"
	"amici-chat/internal/config"
	"amici-chat/internal/logging"
	"amici-chat/internal/messaging"
	"amici-chat/internal/models"
	"amici-chat/internal/observability"
	"amici-chat/internal/presence"
	"amici-chat/internal/registry"
	"amici-chat/internal/repositories"
)

// Sender is the messaging entry point used by sessions.
type Sender interface {
	SendDirect(ctx context.Context, req messaging.SendRequest) (models.Message, error)
	SendChannel(ctx context.Context, req messaging.SendRequest) (models.Message, error)
}

// Handler upgrades authenticated requests and runs their sessions.
type Handler struct {
	registry *registry.Registry
	hub      *Hub
	channels repositories.MembershipReader
	sender   Sender
	tokens   auth.TokenValidator
	presence presence.Tracker
	log      logging.Logger
	cfg      config.WSConfig
	upgrader websocket.Upgrader

	// presenceLocks order Online/Offline calls per user against registry
	// changes on this instance.
	presenceLocks [presenceStripes]sync.Mutex
}

const presenceStripes = 64

// NewHandler constructs a Handler.
func NewHandler(
	reg *registry.Registry,
	hub *Hub,
	channels repositories.MembershipReader,
	sender Sender,
	tokens auth.TokenValidator,
	tracker presence.Tracker,
	log logging.Logger,
	cfg config.WSConfig,
) *Handler {
	return &Handler{
		registry: reg,
		hub:      hub,
		channels: channels,
		sender:   sender,
		tokens:   tokens,
		presence: tracker,
		log:      log,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates the handshake, upgrades and starts the pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := observability.Tracer("ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.tokens.ValidateToken(ctx, auth.TokenFromRequest(c.Request))
	if err != nil {
		observability.IncWSEvent("ws_unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		ClientMeta:  observability.ClientMetaFromRequest(c.Request),
		TraceID:     observability.TraceID(ctx),
		ConnectedAt: time.Now(),
	}
	s := newSession(conn, info, h.cfg.SendBuffer)
	s.authenticate(userID)

	// The session outlives the request.
	sessionCtx := context.WithoutCancel(ctx)
	h.open(sessionCtx, s)

	go s.writePump(h.cfg.WriteWait, pingPeriod(h.cfg.PongWait))
	go h.readPump(sessionCtx, s)
}

func pingPeriod(pongWait time.Duration) time.Duration {
	return pongWait * 9 / 10
}

func (h *Handler) open(ctx context.Context, s *Session) {
	userID := s.UserID()
	mu := h.presenceLock(userID)
	mu.Lock()
	if first := h.registry.Register(userID, s); first {
		if err := h.presence.Online(ctx, userID); err != nil {
			h.log.Warn(ctx, "presence online", "user_id", userID, "error", err)
		}
	}
	mu.Unlock()
	observability.IncWSActive()
	observability.PublishWSEvent(ctx, h.wsEvent("ws_connect", s, ""), observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
	h.log.Info(ctx, "websocket connected", "user_id", userID, "conn_id", s.ID())
}

// finish runs once per session after the read pump stops.
func (h *Handler) finish(ctx context.Context, s *Session, reason string) {
	if !s.closeWithReason(reason) {
		reason = s.closeReason()
	}
	h.hub.LeaveAll(s)
	if userID, last := h.registry.Unregister(s); userID != "" {
		h.Evicted(ctx, userID, last)
	}
	observability.DecWSActive()
	observability.PublishWSEvent(ctx, h.wsEvent("ws_disconnect", s, reason), observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
	h.log.Info(ctx, "websocket disconnected", "user_id", s.UserID(), "conn_id", s.ID(), "reason", reason)
}

// Evicted marks a user offline once their last connection is gone. It is
// also installed as the router's eviction hook. The registry is re-read
// under the user's presence lock so a connection registered in the meantime
// keeps the user online.
func (h *Handler) Evicted(ctx context.Context, userID string, last bool) {
	if !last {
		return
	}
	mu := h.presenceLock(userID)
	mu.Lock()
	defer mu.Unlock()
	if h.registry.Online(userID) {
		return
	}
	if err := h.presence.Offline(ctx, userID); err != nil {
		h.log.Warn(ctx, "presence offline", "user_id", userID, "error", err)
	}
}

func (h *Handler) presenceLock(userID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return &h.presenceLocks[f.Sum32()%presenceStripes]
}

func (h *Handler) wsEvent(name string, s *Session, reason string) observability.WSEvent {
	return observability.WSEvent{
		Event:       name,
		ConnID:      s.ID(),
		UserID:      s.UserID(),
		DeviceID:    s.info.DeviceID,
		IP:          s.info.IP,
		ConnectedAt: s.info.ConnectedAt,
		Reason:      reason,
	}
}

func (h *Handler) readPump(ctx context.Context, s *Session) {
	reason := "client closed"
	defer func() {
		h.finish(ctx, s, reason)
	}()

	s.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.State() != StateClosed {
				observability.PublishWSEvent(ctx, h.wsEvent("ws_error", s, reason), observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var ev models.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			h.reply(ctx, s, models.ServerEvent{
				Type:  models.EventTypeError,
				Error: &models.EventError{Code: models.ErrorCodeValidation, Message: "malformed event"},
			})
			continue
		}
		h.dispatch(ctx, s, ev)
	}
}

func (h *Handler) dispatch(ctx context.Context, s *Session, ev models.ClientEvent) {
	observability.IncWSEvent(ev.Type)
	switch ev.Type {
	case models.EventSendDirectMessage:
		msg, err := h.sender.SendDirect(ctx, messaging.SendRequest{
			SenderID:     s.UserID(),
			TargetID:     ev.RecipientID,
			Payload:      ev.Payload(),
			OriginConnID: s.ID(),
		})
		h.ackOrError(ctx, s, ev.Ref, &msg, err)
	case models.EventSendChannelMessage:
		msg, err := h.sender.SendChannel(ctx, messaging.SendRequest{
			SenderID:     s.UserID(),
			TargetID:     ev.ChannelID,
			Payload:      ev.Payload(),
			OriginConnID: s.ID(),
		})
		h.ackOrError(ctx, s, ev.Ref, &msg, err)
	case models.EventJoinChannel:
		h.ackOrError(ctx, s, ev.Ref, nil, h.join(ctx, s, ev.ChannelID))
	case models.EventLeaveChannel:
		h.hub.Leave(ev.ChannelID, s)
		h.ackOrError(ctx, s, ev.Ref, nil, nil)
	default:
		h.reply(ctx, s, models.ServerEvent{
			Type:  models.EventTypeError,
			Ref:   ev.Ref,
			Error: &models.EventError{Code: models.ErrorCodeValidation, Message: "unknown event type"},
		})
	}
}

func (h *Handler) join(ctx context.Context, s *Session, channelID string) error {
	if channelID == "" {
		return repositories.ErrValidation
	}
	ok, err := h.channels.IsMember(ctx, channelID, s.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return repositories.ErrForbidden
	}
	h.hub.Join(channelID, s)
	return nil
}

func (h *Handler) ackOrError(ctx context.Context, s *Session, ref string, msg *models.Message, err error) {
	if err != nil {
		ee := eventError(err)
		if ee.Code == models.ErrorCodeInternal {
			h.log.Error(ctx, "websocket action failed", "user_id", s.UserID(), "conn_id", s.ID(), "ref", ref, "error", err)
		}
		h.reply(ctx, s, models.ServerEvent{Type: models.EventTypeError, Ref: ref, Error: ee})
		return
	}
	h.reply(ctx, s, models.ServerEvent{Type: models.EventAck, Ref: ref, Message: msg})
}

// reply sends an event to the origin session only. A session that cannot
// take it is closed.
func (h *Handler) reply(ctx context.Context, s *Session, ev models.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error(ctx, "encode reply", "type", ev.Type, "error", err)
		return
	}
	if err := s.Send(data); err != nil && !errors.Is(err, ErrSessionClosed) {
		h.log.Warn(ctx, "reply dropped, closing session", "conn_id", s.ID(), "error", err)
		s.closeWithReason(err.Error())
	}
}
