package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/registry"
)

type conn string

func (c conn) ID() string      { return string(c) }
func (conn) Send([]byte) error { return nil }
func (conn) Close() error      { return nil }

func TestLocalTrackerReadsRegistry(t *testing.T) {
	reg := registry.New(2)
	reg.Register("alice", conn("c1"))
	tracker := NewLocalTracker(reg)

	require.NoError(t, tracker.Online(context.Background(), "alice"))
	statuses, err := tracker.Statuses(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false}, statuses)
}

func TestRedisTrackerEmptyQuery(t *testing.T) {
	tracker := NewRedisTracker("127.0.0.1:0")
	defer tracker.Close()

	statuses, err := tracker.Statuses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
