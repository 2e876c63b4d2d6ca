package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/models"
)

func testSession(id, userID string) *Session {
	s := newSession(nil, ConnInfo{ConnID: id}, 4)
	s.authenticate(userID)
	return s
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub()
	s := testSession("c1", "alice")

	hub.Join("ch1", s)
	hub.Join("ch2", s)
	assert.Equal(t, []string{"ch1", "ch2"}, hub.RoomsOf(s))
	assert.Len(t, hub.Subscribers("ch1"), 1)

	hub.Leave("ch1", s)
	assert.Empty(t, hub.Subscribers("ch1"))
	assert.Len(t, hub.rooms, 1)

	hub.LeaveAll(s)
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.bySession)
}

func TestHubEvictUserAndCloseRoom(t *testing.T) {
	hub := NewHub()
	a1 := testSession("a1", "alice")
	a2 := testSession("a2", "alice")
	b1 := testSession("b1", "bob")

	for _, s := range []*Session{a1, a2, b1} {
		hub.Join("ch", s)
	}
	hub.EvictUser("ch", "alice")
	subs := hub.Subscribers("ch")
	assert.Len(t, subs, 1)
	assert.Equal(t, "b1", subs[0].ID())
	assert.Empty(t, hub.RoomsOf(a1))

	hub.CloseRoom("ch")
	assert.Empty(t, hub.Subscribers("ch"))
	assert.Empty(t, hub.RoomsOf(b1))
}

func queued(t *testing.T, s *Session) []models.ServerEvent {
	t.Helper()
	var out []models.ServerEvent
	for {
		select {
		case data := <-s.send:
			var ev models.ServerEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubTellsSubscribedSessionsTheyLeft(t *testing.T) {
	hub := NewHub()
	a1 := testSession("a1", "alice")
	a2 := testSession("a2", "alice")
	b1 := testSession("b1", "bob")
	hub.Join("ch", a1)
	hub.Join("ch", b1)

	hub.EvictUser("ch", "alice")

	evs := queued(t, a1)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventRoomLeft, evs[0].Type)
	assert.Equal(t, "ch", evs[0].Channel.ChannelID)
	assert.Equal(t, models.RoomEvicted, evs[0].Channel.Action)
	assert.Empty(t, queued(t, a2), "alice's unsubscribed device is not in the room")
	assert.Empty(t, queued(t, b1))

	hub.CloseRoom("ch")

	evs = queued(t, b1)
	require.Len(t, evs, 1)
	assert.Equal(t, models.RoomClosed, evs[0].Channel.Action)
	assert.Empty(t, queued(t, a1))

	hub.CloseRoom("ch")
	assert.Empty(t, queued(t, b1))
}

func TestHubClosesSlowSubscriber(t *testing.T) {
	hub := NewHub()
	s := newSession(nil, ConnInfo{ConnID: "c1"}, 1)
	s.authenticate("alice")
	require.NoError(t, s.Send([]byte("backlog")))
	hub.Join("ch", s)

	hub.CloseRoom("ch")

	assert.Equal(t, StateClosed, s.State())
}

func TestSessionStateMachine(t *testing.T) {
	s := newSession(nil, ConnInfo{ConnID: "c1"}, 1)
	assert.Equal(t, StateUnauthenticated, s.State())

	assert.True(t, s.authenticate("alice"))
	assert.False(t, s.authenticate("bob"))
	assert.Equal(t, "alice", s.UserID())
	assert.Equal(t, StateAuthenticated, s.State())

	assert.NoError(t, s.Send([]byte("one")))
	assert.ErrorIs(t, s.Send([]byte("two")), ErrSlowConsumer)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Send([]byte("three")), ErrSessionClosed)
	assert.False(t, s.authenticate("alice"))
}
