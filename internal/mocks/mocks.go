package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"amici-chat/internal/delivery"
	"amici-chat/internal/messaging"
	"amici-chat/internal/models"
)

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	args := m.Called(ctx, channelID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ChannelRepositoryMock) IsMember(ctx context.Context, channelID string, userID string) (bool, error) {
	args := m.Called(ctx, channelID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChannelRepositoryMock) CreateChannel(ctx context.Context, adminID string, name string, memberIDs []string) (models.Channel, error) {
	args := m.Called(ctx, adminID, name, memberIDs)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) GetChannel(ctx context.Context, channelID string) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) ListChannelsForUser(ctx context.Context, userID string) ([]models.Channel, error) {
	args := m.Called(ctx, userID)
	var list []models.Channel
	if val := args.Get(0); val != nil {
		list = val.([]models.Channel)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) AddMembers(ctx context.Context, channelID string, memberIDs []string) ([]string, error) {
	args := m.Called(ctx, channelID, memberIDs)
	var added []string
	if val := args.Get(0); val != nil {
		added = val.([]string)
	}
	return added, args.Error(1)
}

func (m *ChannelRepositoryMock) RemoveMember(ctx context.Context, channelID string, memberID string) error {
	args := m.Called(ctx, channelID, memberID)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) LeaveChannel(ctx context.Context, channelID string, userID string) (models.LeaveResult, error) {
	args := m.Called(ctx, channelID, userID)
	var res models.LeaveResult
	if val := args.Get(0); val != nil {
		res = val.(models.LeaveResult)
	}
	return res, args.Error(1)
}

func (m *ChannelRepositoryMock) DeleteChannel(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateDirectMessage(ctx context.Context, senderID string, recipientID string, payload models.Payload) (models.Message, error) {
	args := m.Called(ctx, senderID, recipientID, payload)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateChannelMessage(ctx context.Context, senderID string, channelID string, payload models.Payload) (models.Message, error) {
	args := m.Called(ctx, senderID, channelID, payload)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) History(ctx context.Context, userA string, userB string) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MessagesOf(ctx context.Context, channelID string) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListDirectContacts(ctx context.Context, userID string) ([]models.DirectContact, error) {
	args := m.Called(ctx, userID)
	var list []models.DirectContact
	if val := args.Get(0); val != nil {
		list = val.([]models.DirectContact)
	}
	return list, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, query string, excludeIDs []string, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, excludeIDs, limit)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) SendDirect(ctx context.Context, req messaging.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *SenderMock) SendChannel(ctx context.Context, req messaging.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, userIDs []string, event models.ServerEvent) delivery.Report {
	args := m.Called(ctx, userIDs, event)
	var report delivery.Report
	if val := args.Get(0); val != nil {
		report = val.(delivery.Report)
	}
	return report
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (string, error) {
	args := m.Called(ctx, userID, filename, contentType, body, size)
	return args.String(0), args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) Online(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) Offline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) Statuses(ctx context.Context, userIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userIDs)
	var out map[string]bool
	if val := args.Get(0); val != nil {
		out = val.(map[string]bool)
	}
	return out, args.Error(1)
}

// PublisherMock stands in for the AMQP publisher behind audit and lifecycle
// events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}
