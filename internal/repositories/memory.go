package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"amici-chat/internal/models"
)

// MemoryStore keeps users, channels and messages in process memory. It
// implements ChannelRepository, MessageRepository and UserRepository and is
// used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      int64
	users    map[string]models.User
	channels map[string]*memChannel
	messages []models.Message
}

type memChannel struct {
	channel models.Channel
	// members in insertion order; admin excluded.
	members []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		users:    make(map[string]models.User),
		channels: make(map[string]*memChannel),
	}
}

// AddUser seeds a profile. An empty ID is replaced with a fresh one.
func (s *MemoryStore) AddUser(u models.User) models.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

func (m *memChannel) snapshot() models.Channel {
	c := m.channel
	c.Members = append([]string{}, m.members...)
	return c
}

func (m *memChannel) participants() []string {
	out := make([]string, 0, len(m.members)+1)
	out = append(out, m.channel.AdminID)
	return append(out, m.members...)
}

func (m *memChannel) hasMember(userID string) bool {
	for _, id := range m.members {
		if id == userID {
			return true
		}
	}
	return false
}

// Users

func (s *MemoryStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *MemoryStore) GetUsers(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []models.User{}
	for _, id := range dedupe(ids, "") {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *MemoryStore) SearchUsers(_ context.Context, query string, excludeIDs []string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	skip := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}

	users := []models.User{}
	for _, u := range s.users {
		if _, ok := skip[u.ID]; ok {
			continue
		}
		if strings.Contains(strings.ToLower(u.FirstName), q) ||
			strings.Contains(strings.ToLower(u.LastName), q) ||
			strings.Contains(strings.ToLower(u.Email), q) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.Email < b.Email
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// Channels

func (s *MemoryStore) CreateChannel(_ context.Context, adminID string, name string, memberIDs []string) (models.Channel, error) {
	if adminID == "" {
		return models.Channel{}, ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ch := &memChannel{
		channel: models.Channel{
			ID:        uuid.NewString(),
			Name:      name,
			AdminID:   adminID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		members: dedupe(memberIDs, adminID),
	}
	s.channels[ch.channel.ID] = ch
	return ch.snapshot(), nil
}

func (s *MemoryStore) GetChannel(_ context.Context, channelID string) (models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return models.Channel{}, ErrChannelNotFound
	}
	return ch.snapshot(), nil
}

func (s *MemoryStore) ListChannelsForUser(_ context.Context, userID string) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := []models.Channel{}
	for _, ch := range s.channels {
		if ch.channel.AdminID == userID || ch.hasMember(userID) {
			channels = append(channels, ch.snapshot())
		}
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].UpdatedAt.After(channels[j].UpdatedAt)
	})
	return channels, nil
}

func (s *MemoryStore) MembersOf(_ context.Context, channelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return dedupe(ch.participants(), ""), nil
}

func (s *MemoryStore) IsMember(_ context.Context, channelID string, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return false, nil
	}
	return ch.channel.AdminID == userID || ch.hasMember(userID), nil
}

func (s *MemoryStore) AddMembers(_ context.Context, channelID string, memberIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	var added []string
	for _, id := range dedupe(memberIDs, ch.channel.AdminID) {
		if ch.hasMember(id) {
			continue
		}
		ch.members = append(ch.members, id)
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil, ErrNoNewMembers
	}
	ch.channel.UpdatedAt = s.now()
	return added, nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, channelID string, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return ErrChannelNotFound
	}
	if !ch.hasMember(memberID) {
		return ErrMemberNotFound
	}
	ch.members = without(ch.members, memberID)
	ch.channel.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) LeaveChannel(_ context.Context, channelID string, userID string) (models.LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return models.LeaveResult{}, ErrChannelNotFound
	}

	var result models.LeaveResult
	switch {
	case ch.channel.AdminID != userID:
		if !ch.hasMember(userID) {
			return models.LeaveResult{}, ErrForbidden
		}
		ch.members = without(ch.members, userID)
		result.Outcome = models.LeaveRemoved
	case len(ch.members) == 0:
		s.deleteChannelLocked(channelID)
		return models.LeaveResult{Outcome: models.LeaveChannelDeleted}, nil
	default:
		successor := ch.members[0]
		ch.channel.AdminID = successor
		ch.members = ch.members[1:]
		result.Outcome = models.LeaveAdminTransferred
		result.NewAdmin = successor
	}
	ch.channel.UpdatedAt = s.now()
	result.Remaining = ch.participants()
	return result, nil
}

func (s *MemoryStore) DeleteChannel(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	s.deleteChannelLocked(channelID)
	return nil
}

func (s *MemoryStore) deleteChannelLocked(channelID string) {
	delete(s.channels, channelID)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Channel() != channelID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// Messages

func (s *MemoryStore) CreateDirectMessage(_ context.Context, senderID string, recipientID string, payload models.Payload) (models.Message, error) {
	payload, err := ValidateSend(senderID, recipientID, payload)
	if err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recipient := recipientID
	return s.appendLocked(senderID, &recipient, nil, payload), nil
}

func (s *MemoryStore) CreateChannelMessage(_ context.Context, senderID string, channelID string, payload models.Payload) (models.Message, error) {
	payload, err := ValidateSend(senderID, channelID, payload)
	if err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return models.Message{}, ErrChannelNotFound
	}
	channel := channelID
	msg := s.appendLocked(senderID, nil, &channel, payload)
	ch.channel.UpdatedAt = msg.CreatedAt
	return msg, nil
}

func (s *MemoryStore) appendLocked(senderID string, recipientID, channelID *string, payload models.Payload) models.Message {
	s.seq++
	msg := models.Message{
		ID:          uuid.NewString(),
		Seq:         s.seq,
		SenderID:    senderID,
		RecipientID: recipientID,
		ChannelID:   channelID,
		Type:        payload.Type,
		Content:     payload.Content,
		FileURL:     payload.FileURL,
		CreatedAt:   s.now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *MemoryStore) History(_ context.Context, userA string, userB string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := []models.Message{}
	for _, m := range s.messages {
		if m.IsChannel() {
			continue
		}
		r := m.Recipient()
		if (m.SenderID == userA && r == userB) || (m.SenderID == userB && r == userA) {
			msgs = append(msgs, m)
		}
	}
	sortMessages(msgs)
	return msgs, nil
}

func (s *MemoryStore) MessagesOf(_ context.Context, channelID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.channels[channelID]; !ok {
		return nil, ErrChannelNotFound
	}
	msgs := []models.Message{}
	for _, m := range s.messages {
		if m.Channel() == channelID {
			msgs = append(msgs, m)
		}
	}
	sortMessages(msgs)
	return msgs, nil
}

func (s *MemoryStore) ListDirectContacts(_ context.Context, userID string) ([]models.DirectContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := make(map[string]time.Time)
	for _, m := range s.messages {
		if m.IsChannel() {
			continue
		}
		var other string
		switch userID {
		case m.SenderID:
			other = m.Recipient()
		case m.Recipient():
			other = m.SenderID
		default:
			continue
		}
		if t, ok := last[other]; !ok || m.CreatedAt.After(t) {
			last[other] = m.CreatedAt
		}
	}

	contacts := []models.DirectContact{}
	for id, at := range last {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		contacts = append(contacts, models.DirectContact{User: u, LastMessageAt: at})
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].LastMessageAt.After(contacts[j].LastMessageAt)
	})
	return contacts, nil
}

func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var (
	_ ChannelRepository = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
	_ UserRepository    = (*MemoryStore)(nil)
	_ ChannelRepository = (*ChannelRepo)(nil)
	_ MessageRepository = (*MessageRepo)(nil)
	_ UserRepository    = (*UserRepo)(nil)
)

// String is used in log lines.
func (s *MemoryStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory(users=%d channels=%d messages=%d)", len(s.users), len(s.channels), len(s.messages))
}
