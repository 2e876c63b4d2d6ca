package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"amici-chat/internal/presence"
	"amici-chat/internal/repositories"
)

// ContactsHandler serves the DM contact list and presence lookups.
type ContactsHandler struct {
	messages repositories.MessageRepository
	presence presence.Tracker
}

func NewContactsHandler(messages repositories.MessageRepository, tracker presence.Tracker) *ContactsHandler {
	return &ContactsHandler{messages: messages, presence: tracker}
}

// GetContactsForDM lists direct conversation partners, most recent first.
func (h *ContactsHandler) GetContactsForDM(c *gin.Context) {
	contacts, err := h.messages.ListDirectContacts(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": errorText(err, "failed to load contacts")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// Presence reports online flags for ?ids=a,b.
func (h *ContactsHandler) Presence(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	statuses, err := h.presence.Statuses(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": statuses})
}
