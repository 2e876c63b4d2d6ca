package repositories

import (
	"fmt"

	"amici-chat/internal/models"
)

// ValidateSend applies the payload and addressing rules shared by every
// message store implementation.
func ValidateSend(senderID, target string, payload models.Payload) (models.Payload, error) {
	if senderID == "" {
		return payload, fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if target == "" {
		return payload, fmt.Errorf("%w: recipient or channel is required", ErrValidation)
	}
	normalized, ok := payload.Normalize()
	if !ok {
		return payload, fmt.Errorf("%w: message needs content or a file url", ErrValidation)
	}
	return normalized, nil
}
