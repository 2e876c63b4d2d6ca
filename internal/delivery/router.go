// Package delivery fans persisted messages out to live connections.
package delivery

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"amici-chat/internal/logging"
	"amici-chat/internal/models"
	"amici-chat/internal/observability"
	"amici-chat/internal/registry"
	"amici-chat/internal/repositories"
)

// EvictFunc is called after a connection was dropped because a push to it
// failed. last reports whether the user has no connections left.
type EvictFunc func(ctx context.Context, userID string, last bool)

// Report summarises one fan-out. Delivered and Failed hold connection IDs,
// Offline holds target users without a live connection.
type Report struct {
	Targets   []string
	Delivered []string
	Failed    []string
	Offline   []string
}

// Router resolves recipients and pushes events to their connections.
type Router struct {
	registry     *registry.Registry
	members      repositories.MembershipReader
	log          logging.Logger
	echoToOrigin bool
	onEvict      EvictFunc
}

// NewRouter constructs a Router. With echoToOrigin false the connection a
// message was sent from does not receive it back.
func NewRouter(reg *registry.Registry, members repositories.MembershipReader, log logging.Logger, echoToOrigin bool) *Router {
	return &Router{registry: reg, members: members, log: log, echoToOrigin: echoToOrigin}
}

// OnEvict sets the hook run after a failed connection is unregistered.
func (r *Router) OnEvict(fn EvictFunc) {
	r.onEvict = fn
}

// Deliver pushes msg to every live connection of its participants. For a
// channel message the member list is read fresh from the store. Errors are
// logged, never returned: the message is already persisted.
func (r *Router) Deliver(ctx context.Context, msg models.Message, originConnID string) Report {
	ctx, span := observability.Tracer("delivery").Start(ctx, "delivery.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", msg.ID))

	kind := "direct"
	var targets []string
	if msg.IsChannel() {
		kind = "channel"
		members, err := r.members.MembersOf(ctx, msg.Channel())
		if errors.Is(err, repositories.ErrChannelNotFound) {
			r.log.Info(ctx, "channel gone before fan-out", "channel_id", msg.Channel(), "message_id", msg.ID)
			return Report{}
		}
		if err != nil {
			r.log.Error(ctx, "resolve channel members", "channel_id", msg.Channel(), "message_id", msg.ID, "error", err)
			span.RecordError(err)
			return Report{}
		}
		targets = members
	} else {
		targets = []string{msg.Recipient(), msg.SenderID}
	}

	data, err := json.Marshal(models.ServerEvent{Type: models.EventMessageReceived, Message: &msg})
	if err != nil {
		r.log.Error(ctx, "encode message event", "message_id", msg.ID, "error", err)
		return Report{}
	}

	skip := ""
	if !r.echoToOrigin {
		skip = originConnID
	}
	report := r.push(ctx, targets, data, skip)
	observability.AddDeliveries(kind, len(report.Delivered), len(report.Failed), len(report.Offline))
	span.SetAttributes(
		attribute.Int("delivery.delivered", len(report.Delivered)),
		attribute.Int("delivery.failed", len(report.Failed)),
		attribute.Int("delivery.offline", len(report.Offline)),
	)
	r.log.Debug(ctx, "message routed", "message_id", msg.ID, "kind", kind,
		"targets", len(report.Targets), "delivered", len(report.Delivered), "failed", len(report.Failed), "offline", len(report.Offline))
	return report
}

// Notify pushes a non-message event to every live connection of userIDs.
func (r *Router) Notify(ctx context.Context, userIDs []string, event models.ServerEvent) Report {
	data, err := json.Marshal(event)
	if err != nil {
		r.log.Error(ctx, "encode event", "type", event.Type, "error", err)
		return Report{}
	}
	return r.push(ctx, userIDs, data, "")
}

func (r *Router) push(ctx context.Context, userIDs []string, data []byte, skipConnID string) Report {
	report := Report{Targets: unique(userIDs)}
	for _, userID := range report.Targets {
		conns := r.registry.ConnectionsFor(userID)
		if len(conns) == 0 {
			report.Offline = append(report.Offline, userID)
			continue
		}
		for _, conn := range conns {
			if skipConnID != "" && conn.ID() == skipConnID {
				continue
			}
			if err := conn.Send(data); err != nil {
				report.Failed = append(report.Failed, conn.ID())
				r.evict(ctx, conn, userID, err)
				continue
			}
			report.Delivered = append(report.Delivered, conn.ID())
		}
	}
	return report
}

func (r *Router) evict(ctx context.Context, conn registry.Conn, userID string, cause error) {
	r.log.Warn(ctx, "push failed, dropping connection", "user_id", userID, "conn_id", conn.ID(), "error", cause)
	owner, last := r.registry.Unregister(conn)
	_ = conn.Close()
	if owner != "" && r.onEvict != nil {
		r.onEvict(ctx, owner, last)
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
