package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"amici-chat/internal/messaging"
	"amici-chat/internal/models"
	"amici-chat/internal/repositories"
	"amici-chat/internal/storage"
	"amici-chat/internal/telemetry"
)

// sender is the send path shared with the websocket handler.
type sender interface {
	SendDirect(ctx context.Context, req messaging.SendRequest) (models.Message, error)
	SendChannel(ctx context.Context, req messaging.SendRequest) (models.Message, error)
}

// MessageHandler manages direct history, HTTP sends and uploads.
type MessageHandler struct {
	messages repositories.MessageRepository
	sender   sender
	uploader storage.Uploader
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler. A nil uploader disables
// file uploads.
func NewMessageHandler(
	messages repositories.MessageRepository,
	sender sender,
	uploader storage.Uploader,
	audit *telemetry.AuditEmitter,
) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		sender:   sender,
		uploader: uploader,
		audit:    audit,
	}
}

// GetMessages returns the direct history between the caller and another user.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Both user IDs are required"})
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), c.GetString("userID"), req.ID)
	if err != nil {
		h.emitAudit(c, "ERROR", "load history failed")
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "failed to load messages")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage sends a message without a websocket. Exactly one of
// recipient_id and channel_id must be set.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id"`
		ChannelID   string `json:"channel_id"`
		models.Payload
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.RecipientID == "") == (req.ChannelID == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of recipient_id and channel_id is required"})
		return
	}

	send := messaging.SendRequest{SenderID: c.GetString("userID"), Payload: req.Payload}
	var (
		msg models.Message
		err error
	)
	if req.ChannelID != "" {
		send.TargetID = req.ChannelID
		msg, err = h.sender.SendChannel(c.Request.Context(), send)
	} else {
		send.TargetID = req.RecipientID
		msg, err = h.sender.SendDirect(c.Request.Context(), send)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrForbidden) {
			h.emitAudit(c, "ERROR", "not allowed")
		}
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "could not send message")})
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// UploadFile stores an attachment and returns its public URL. The caller
// sends the URL in a file message afterwards.
func (h *MessageHandler) UploadFile(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file uploads are not configured"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required."})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required."})
		return
	}
	defer file.Close()

	url, err := h.uploader.Upload(
		c.Request.Context(),
		c.GetString("userID"),
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
		header.Size,
	)
	if err != nil {
		h.emitAudit(c, "ERROR", "upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not upload file"})
		return
	}

	h.emitAudit(c, "INFO", "File uploaded")
	c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully.", "fileUrl": url})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
