package ws

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"amici-chat/internal/models"
)

// Hub indexes channel room subscriptions of live sessions. A session whose
// subscription is revoked by the server is told so with a room_left event.
// Message fan-out never reads the hub; it goes through the registry and the
// channel store.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Session]struct{}
	bySession map[*Session]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Session]struct{}),
		bySession: make(map[*Session]map[string]struct{}),
	}
}

// Join subscribes s to a channel room.
func (h *Hub) Join(channelID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[channelID]; !ok {
		h.rooms[channelID] = make(map[*Session]struct{})
	}
	h.rooms[channelID][s] = struct{}{}
	if _, ok := h.bySession[s]; !ok {
		h.bySession[s] = make(map[string]struct{})
	}
	h.bySession[s][channelID] = struct{}{}
}

// Leave unsubscribes s from a channel room.
func (h *Hub) Leave(channelID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(channelID, s)
}

func (h *Hub) leaveLocked(channelID string, s *Session) {
	if sessions, ok := h.rooms[channelID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.rooms, channelID)
		}
	}
	if rooms, ok := h.bySession[s]; ok {
		delete(rooms, channelID)
		if len(rooms) == 0 {
			delete(h.bySession, s)
		}
	}
}

// LeaveAll drops every subscription of s.
func (h *Hub) LeaveAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channelID := range h.bySession[s] {
		h.leaveLocked(channelID, s)
	}
}

// EvictUser unsubscribes every session of userID from a room and sends
// each of them room_left.
func (h *Hub) EvictUser(channelID, userID string) {
	h.mu.Lock()
	var evicted []*Session
	for s := range h.rooms[channelID] {
		if s.UserID() == userID {
			h.leaveLocked(channelID, s)
			evicted = append(evicted, s)
		}
	}
	h.mu.Unlock()
	announceLeft(evicted, channelID, models.RoomEvicted)
}

// CloseRoom removes a room, sending room_left to every session that was
// subscribed.
func (h *Hub) CloseRoom(channelID string) {
	h.mu.Lock()
	subscribed := make([]*Session, 0, len(h.rooms[channelID]))
	for s := range h.rooms[channelID] {
		h.leaveLocked(channelID, s)
		subscribed = append(subscribed, s)
	}
	h.mu.Unlock()
	announceLeft(subscribed, channelID, models.RoomClosed)
}

// announceLeft runs outside the hub lock. A session that cannot take the
// frame is closed, as on any other failed push.
func announceLeft(sessions []*Session, channelID, reason string) {
	if len(sessions) == 0 {
		return
	}
	data, err := json.Marshal(models.ServerEvent{
		Type:    models.EventRoomLeft,
		Channel: &models.ChannelUpdate{ChannelID: channelID, Action: reason},
	})
	if err != nil {
		return
	}
	for _, s := range sessions {
		if err := s.Send(data); errors.Is(err, ErrSlowConsumer) {
			s.closeWithReason(err.Error())
		}
	}
}

// Subscribers returns the sessions subscribed to a room.
func (h *Hub) Subscribers(channelID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.rooms[channelID]))
	for s := range h.rooms[channelID] {
		out = append(out, s)
	}
	return out
}

// RoomsOf lists the rooms s is subscribed to, sorted.
func (h *Hub) RoomsOf(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.bySession[s]))
	for channelID := range h.bySession[s] {
		out = append(out, channelID)
	}
	sort.Strings(out)
	return out
}
