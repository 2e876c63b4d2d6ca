package handlers

import (
	"errors"
	"net/http"

	"amici-chat/internal/repositories"
)

// statusFor maps repository and service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrValidation),
		errors.Is(err, repositories.ErrNoNewMembers):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrChannelNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorText hides internal error details from clients.
func errorText(err error, fallback string) string {
	if statusFor(err) == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
