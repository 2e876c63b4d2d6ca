// Package streaming appends persisted messages to an external log for
// downstream consumers.
package streaming

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"amici-chat/internal/logging"
	"amici-chat/internal/models"
)

// MessageLog receives every persisted message.
type MessageLog interface {
	Append(ctx context.Context, msg models.Message) error
	Close() error
}

// Writer is the subset of *kafka.Writer used by KafkaLog.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaLog writes messages to a Kafka topic. Writes are asynchronous; delivery
// errors are logged from the writer's completion callback.
type KafkaLog struct {
	w   Writer
	log logging.Logger
}

// NewKafkaLog builds an async writer for topic.
func NewKafkaLog(brokers []string, topic string, log logging.Logger) *KafkaLog {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn(context.Background(), "kafka write failed", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
	return NewKafkaLogWithWriter(w, log)
}

// NewKafkaLogWithWriter wraps an existing writer.
func NewKafkaLogWithWriter(w Writer, log logging.Logger) *KafkaLog {
	return &KafkaLog{w: w, log: log}
}

// Append encodes msg and hands it to the writer. Messages of one
// conversation share a key and therefore a partition.
func (k *KafkaLog) Append(ctx context.Context, msg models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ConversationKey(msg)),
		Value: body,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "message_type", Value: []byte(msg.Type)},
		},
	})
}

func (k *KafkaLog) Close() error {
	return k.w.Close()
}

// ConversationKey is "channel:<id>" for channel messages and
// "direct:<lo>:<hi>" for direct ones, independent of direction.
func ConversationKey(msg models.Message) string {
	if msg.IsChannel() {
		return "channel:" + msg.Channel()
	}
	a, b := msg.SenderID, msg.Recipient()
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// Noop discards messages.
type Noop struct{}

func (Noop) Append(context.Context, models.Message) error { return nil }
func (Noop) Close() error                                 { return nil }
