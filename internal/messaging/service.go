// Package messaging ties validation, persistence and fan-out together for
// every send path (websocket and HTTP).
package messaging

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"amici-chat/internal/delivery"
	"amici-chat/internal/logging"
	"amici-chat/internal/models"
	"amici-chat/internal/observability"
	"amici-chat/internal/repositories"
	"amici-chat/internal/streaming"
)

// Deliverer fans a persisted message out.
type Deliverer interface {
	Deliver(ctx context.Context, msg models.Message, originConnID string) delivery.Report
}

// SendRequest is one send attempt. OriginConnID is empty for HTTP sends.
type SendRequest struct {
	SenderID     string
	TargetID     string
	Payload      models.Payload
	OriginConnID string
}

// Service implements direct and channel sends.
type Service struct {
	messages repositories.MessageRepository
	channels repositories.MembershipReader
	users    repositories.UserRepository
	router   Deliverer
	stream   streaming.MessageLog
	log      logging.Logger
}

// NewService constructs a Service. A nil stream disables the message log.
func NewService(
	messages repositories.MessageRepository,
	channels repositories.MembershipReader,
	users repositories.UserRepository,
	router Deliverer,
	stream streaming.MessageLog,
	log logging.Logger,
) *Service {
	if stream == nil {
		stream = streaming.Noop{}
	}
	return &Service{
		messages: messages,
		channels: channels,
		users:    users,
		router:   router,
		stream:   stream,
		log:      log,
	}
}

// SendDirect persists a direct message and pushes it to both parties. The
// recipient does not need to be online.
func (s *Service) SendDirect(ctx context.Context, req SendRequest) (models.Message, error) {
	ctx, span := observability.Tracer("messaging").Start(ctx, "messaging.send_direct")
	defer span.End()
	span.SetAttributes(attribute.String("sender.id", req.SenderID), attribute.String("recipient.id", req.TargetID))

	payload, err := repositories.ValidateSend(req.SenderID, req.TargetID, req.Payload)
	if err != nil {
		return models.Message{}, err
	}
	exists, err := s.users.Exists(ctx, req.TargetID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, fmt.Errorf("lookup recipient: %w", err)
	}
	if !exists {
		return models.Message{}, repositories.ErrUserNotFound
	}

	msg, err := s.messages.CreateDirectMessage(ctx, req.SenderID, req.TargetID, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, err
	}
	s.afterPersist(ctx, "direct", msg, req.OriginConnID)
	return msg, nil
}

// SendChannel persists a channel message from a member and pushes it to the
// channel's current participants.
func (s *Service) SendChannel(ctx context.Context, req SendRequest) (models.Message, error) {
	ctx, span := observability.Tracer("messaging").Start(ctx, "messaging.send_channel")
	defer span.End()
	span.SetAttributes(attribute.String("sender.id", req.SenderID), attribute.String("channel.id", req.TargetID))

	payload, err := repositories.ValidateSend(req.SenderID, req.TargetID, req.Payload)
	if err != nil {
		return models.Message{}, err
	}
	members, err := s.channels.MembersOf(ctx, req.TargetID)
	if err != nil {
		return models.Message{}, err
	}
	if !contains(members, req.SenderID) {
		return models.Message{}, repositories.ErrForbidden
	}

	msg, err := s.messages.CreateChannelMessage(ctx, req.SenderID, req.TargetID, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, err
	}
	s.afterPersist(ctx, "channel", msg, req.OriginConnID)
	return msg, nil
}

func (s *Service) afterPersist(ctx context.Context, kind string, msg models.Message, originConnID string) {
	observability.IncMessagePersisted(kind, string(msg.Type))
	if err := s.stream.Append(ctx, msg); err != nil {
		s.log.Warn(ctx, "append to message log", "message_id", msg.ID, "error", err)
	}
	s.router.Deliver(ctx, msg, originConnID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
