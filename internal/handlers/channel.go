package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"amici-chat/internal/delivery"
	"amici-chat/internal/models"
	"amici-chat/internal/repositories"
	"amici-chat/internal/telemetry"
)

const searchLimit = 10

// notifier pushes channel lifecycle events to live connections.
type notifier interface {
	Notify(ctx context.Context, userIDs []string, event models.ServerEvent) delivery.Report
}

// roomIndex drops websocket room subscriptions that are no longer valid.
type roomIndex interface {
	EvictUser(channelID, userID string)
	CloseRoom(channelID string)
}

// ChannelHandler manages channel endpoints.
type ChannelHandler struct {
	channels repositories.ChannelRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	notifier notifier
	rooms    roomIndex
	audit    *telemetry.AuditEmitter
}

// NewChannelHandler constructs a ChannelHandler.
func NewChannelHandler(
	channels repositories.ChannelRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	notifier notifier,
	rooms roomIndex,
	audit *telemetry.AuditEmitter,
) *ChannelHandler {
	return &ChannelHandler{
		channels: channels,
		messages: messages,
		users:    users,
		notifier: notifier,
		rooms:    rooms,
		audit:    audit,
	}
}

// CreateChannel handles POST /api/channel/create-channel.
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Name    string   `json:"name" binding:"required"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if ok := h.validateUsers(c, req.Members, "Some members are not valid users"); !ok {
		return
	}

	channel, err := h.channels.CreateChannel(c.Request.Context(), userID, req.Name, req.Members)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.emitAudit(c, "ERROR", "internal error")
		}
		c.JSON(status, gin.H{"error": errorText(err, "could not create channel")})
		return
	}

	h.notify(c, channel.Participants(), models.ChannelUpdate{
		ChannelID: channel.ID,
		Action:    models.ChannelCreated,
		Name:      channel.Name,
		AdminID:   channel.AdminID,
		UserIDs:   channel.Members,
	})
	h.emitAudit(c, "INFO", "Channel created")
	c.JSON(http.StatusCreated, gin.H{"channel": channel})
}

// GetUserChannels returns channels the caller administers or belongs to.
func (h *ChannelHandler) GetUserChannels(c *gin.Context) {
	channels, err := h.channels.ListChannelsForUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// GetChannelMessages returns the channel history with sender profiles.
func (h *ChannelHandler) GetChannelMessages(c *gin.Context) {
	channel, ok := h.loadChannel(c, false)
	if !ok {
		return
	}

	msgs, err := h.messages.MessagesOf(c.Request.Context(), channel.ID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "failed to load messages")})
		return
	}

	senderIDs := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	senders := map[string]models.User{}
	if len(senderIDs) > 0 {
		users, err := h.users.GetUsers(c.Request.Context(), senderIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
			return
		}
		for _, u := range users {
			senders[u.ID] = u
		}
	}

	type messageResponse struct {
		models.Message
		Sender *models.User `json:"sender,omitempty"`
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		item := messageResponse{Message: m}
		if u, ok := senders[m.SenderID]; ok {
			item.Sender = &u
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// GetChannelMembers returns the admin and member profiles.
func (h *ChannelHandler) GetChannelMembers(c *gin.Context) {
	channel, ok := h.loadChannel(c, false)
	if !ok {
		return
	}

	users, err := h.users.GetUsers(c.Request.Context(), channel.Participants())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	var admin *models.User
	members := make([]models.User, 0, len(users))
	for i := range users {
		if users[i].ID == channel.AdminID {
			admin = &users[i]
			continue
		}
		members = append(members, users[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"admin":       admin,
		"members":     members,
		"channelId":   channel.ID,
		"channelName": channel.Name,
	})
}

// LeaveChannel removes the caller. An admin hands over to the earliest
// member; a lone admin deletes the channel.
func (h *ChannelHandler) LeaveChannel(c *gin.Context) {
	userID := c.GetString("userID")
	channelID := c.Param("channelId")

	res, err := h.channels.LeaveChannel(c.Request.Context(), channelID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a member of this channel"})
			return
		}
		h.emitAudit(c, "ERROR", "leave channel failed")
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not leave channel")})
		return
	}

	h.rooms.EvictUser(channelID, userID)
	var message string
	switch res.Outcome {
	case models.LeaveChannelDeleted:
		h.rooms.CloseRoom(channelID)
		h.notify(c, []string{userID}, models.ChannelUpdate{ChannelID: channelID, Action: models.ChannelDeleted})
		message = "Channel deleted as you were the only member"
	case models.LeaveAdminTransferred:
		h.notify(c, append(res.Remaining, userID), models.ChannelUpdate{
			ChannelID: channelID,
			Action:    models.ChannelAdminChanged,
			AdminID:   res.NewAdmin,
			UserIDs:   []string{userID},
		})
		message = "You have left the channel and a new admin has been assigned"
	default:
		h.notify(c, append(res.Remaining, userID), models.ChannelUpdate{
			ChannelID: channelID,
			Action:    models.ChannelMemberLeft,
			UserIDs:   []string{userID},
		})
		message = "You have left the channel"
	}

	h.emitAudit(c, "INFO", "Channel left")
	c.JSON(http.StatusOK, gin.H{"message": message, "outcome": res.Outcome})
}

// DeleteChannel deletes the channel and its messages. Admin only.
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	channel, ok := h.loadChannel(c, true)
	if !ok {
		return
	}

	if err := h.channels.DeleteChannel(c.Request.Context(), channel.ID); err != nil {
		h.emitAudit(c, "ERROR", "delete channel failed")
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not delete channel")})
		return
	}

	h.rooms.CloseRoom(channel.ID)
	h.notify(c, channel.Participants(), models.ChannelUpdate{ChannelID: channel.ID, Action: models.ChannelDeleted})
	h.emitAudit(c, "INFO", "Channel deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Channel deleted successfully"})
}

// RemoveMember drops a member from the channel. Admin only.
func (h *ChannelHandler) RemoveMember(c *gin.Context) {
	var req struct {
		ChannelID string `json:"channelId" binding:"required"`
		MemberID  string `json:"memberId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel, ok := h.loadChannelByID(c, req.ChannelID, true)
	if !ok {
		return
	}

	if err := h.channels.RemoveMember(c.Request.Context(), channel.ID, req.MemberID); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found in this channel"})
			return
		}
		h.emitAudit(c, "ERROR", "remove member failed")
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not remove member")})
		return
	}

	h.rooms.EvictUser(channel.ID, req.MemberID)
	h.notify(c, channel.Participants(), models.ChannelUpdate{
		ChannelID: channel.ID,
		Action:    models.ChannelMemberRemoved,
		UserIDs:   []string{req.MemberID},
	})
	h.emitAudit(c, "INFO", "Channel member removed")
	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

// AddMembers adds users who are not yet part of the channel. Admin only.
func (h *ChannelHandler) AddMembers(c *gin.Context) {
	var req struct {
		ChannelID string   `json:"channelId" binding:"required"`
		MemberIDs []string `json:"memberIds" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel ID and member IDs are required"})
		return
	}

	channel, ok := h.loadChannelByID(c, req.ChannelID, true)
	if !ok {
		return
	}
	if ok := h.validateUsers(c, req.MemberIDs, "Some users do not exist"); !ok {
		return
	}

	added, err := h.channels.AddMembers(c.Request.Context(), channel.ID, req.MemberIDs)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not add members")})
		return
	}

	updated, err := h.channels.GetChannel(c.Request.Context(), channel.ID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not load channel")})
		return
	}

	h.notify(c, updated.Participants(), models.ChannelUpdate{
		ChannelID: updated.ID,
		Action:    models.ChannelMembersAdded,
		Name:      updated.Name,
		AdminID:   updated.AdminID,
		UserIDs:   added,
	})
	h.emitAudit(c, "INFO", "Channel members added")
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d new member(s) added to the channel", len(added)),
		"channel": updated,
	})
}

// SearchUsers finds users that could be added to the channel. Admin only.
func (h *ChannelHandler) SearchUsers(c *gin.Context) {
	channelID := c.Query("channelId")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel ID is required"})
		return
	}

	channel, ok := h.loadChannelByID(c, channelID, true)
	if !ok {
		return
	}

	users, err := h.users.SearchUsers(c.Request.Context(), c.Query("query"), channel.Participants(), searchLimit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "search failed")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *ChannelHandler) loadChannel(c *gin.Context, adminOnly bool) (models.Channel, bool) {
	return h.loadChannelByID(c, c.Param("channelId"), adminOnly)
}

// loadChannelByID fetches the channel and checks the caller's role. It
// writes the error response itself.
func (h *ChannelHandler) loadChannelByID(c *gin.Context, channelID string, adminOnly bool) (models.Channel, bool) {
	userID := c.GetString("userID")
	channel, err := h.channels.GetChannel(c.Request.Context(), channelID)
	if err != nil {
		if errors.Is(err, repositories.ErrChannelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
			return models.Channel{}, false
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return models.Channel{}, false
	}
	if adminOnly && !channel.IsAdmin(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the admin can manage this channel"})
		return models.Channel{}, false
	}
	if !channel.HasParticipant(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return models.Channel{}, false
	}
	return channel, true
}

func (h *ChannelHandler) validateUsers(c *gin.Context, ids []string, message string) bool {
	if len(ids) == 0 {
		return true
	}
	unique := map[string]struct{}{}
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	users, err := h.users.GetUsers(c.Request.Context(), ids)
	if err != nil && !errors.Is(err, repositories.ErrValidation) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate members"})
		return false
	}
	if err != nil || len(users) != len(unique) {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return false
	}
	return true
}

func (h *ChannelHandler) notify(c *gin.Context, userIDs []string, update models.ChannelUpdate) {
	if h.notifier == nil {
		return
	}
	h.notifier.Notify(c.Request.Context(), userIDs, models.ServerEvent{
		Type:    models.EventChannelUpdated,
		Channel: &update,
	})
}

func (h *ChannelHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
