package ws

import (
	"errors"

	"github.com/google/uuid"

	"amici-chat/internal/models"
	"amici-chat/internal/repositories"
)

func newConnID() string {
	return uuid.NewString()
}

// eventError maps a service error to the code reported to the client.
func eventError(err error) *models.EventError {
	switch {
	case errors.Is(err, repositories.ErrValidation):
		return &models.EventError{Code: models.ErrorCodeValidation, Message: err.Error()}
	case errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrChannelNotFound):
		return &models.EventError{Code: models.ErrorCodeNotFound, Message: err.Error()}
	case errors.Is(err, repositories.ErrForbidden):
		return &models.EventError{Code: models.ErrorCodeForbidden, Message: err.Error()}
	default:
		return &models.EventError{Code: models.ErrorCodeInternal, Message: "internal error"}
	}
}
