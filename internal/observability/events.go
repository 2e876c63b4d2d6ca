package observability

import (
	"context"
	"time"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// EventPublisher is satisfied by the rabbitmq publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher EventPublisher

func SetPublisher(publisher EventPublisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an event through the configured publisher. It is a
// no-op until SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSEvent describes a websocket lifecycle transition.
type WSEvent struct {
	Event       string
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	ConnectedAt time.Time
	Reason      string
}

// WSRoutingKey is the routing key for websocket lifecycle events.
const WSRoutingKey = "ws_events.connections"

// PublishWSEvent counts the event and publishes its envelope.
func PublishWSEvent(ctx context.Context, ev WSEvent, headers map[string]string) {
	IncWSEvent(ev.Event)
	var duration int64
	if !ev.ConnectedAt.IsZero() {
		duration = time.Since(ev.ConnectedAt).Milliseconds()
	}
	_ = PublishEvent(ctx, WSRoutingKey, EventEnvelope{
		EventType: "ws_events",
		EventName: ev.Event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       ev.Event,
				"conn_id":     ev.ConnID,
				"duration_ms": duration,
				"reason":      ev.Reason,
			},
			"identity": map[string]interface{}{
				"user_id":   ev.UserID,
				"device_id": ev.DeviceID,
				"ip":        ev.IP,
			},
		},
	}, headers)
}
