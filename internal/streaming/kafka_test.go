package streaming

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/logging"
	"amici-chat/internal/models"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func strPtr(s string) *string { return &s }

func TestConversationKeyIgnoresDirection(t *testing.T) {
	ab := models.Message{SenderID: "a", RecipientID: strPtr("b")}
	ba := models.Message{SenderID: "b", RecipientID: strPtr("a")}
	assert.Equal(t, ConversationKey(ab), ConversationKey(ba))
	assert.Equal(t, "direct:a:b", ConversationKey(ab))

	ch := models.Message{SenderID: "a", ChannelID: strPtr("c1")}
	assert.Equal(t, "channel:c1", ConversationKey(ch))
}

func TestKafkaLogAppend(t *testing.T) {
	w := &captureWriter{}
	l := NewKafkaLogWithWriter(w, logging.Discard())
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := models.Message{ID: "m1", SenderID: "a", ChannelID: strPtr("c1"), Type: models.MessageTypeText, Content: "hi", CreatedAt: created}

	require.NoError(t, l.Append(context.Background(), msg))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "channel:c1", string(w.msgs[0].Key))
	assert.Equal(t, created, w.msgs[0].Time)

	var decoded models.Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "m1", decoded.ID)
	assert.Equal(t, "hi", decoded.Content)

	require.NoError(t, l.Close())
	assert.True(t, w.closed)
}
