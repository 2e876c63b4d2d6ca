package repositories

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrChannelNotFound = errors.New("channel not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMemberNotFound  = errors.New("member not found in channel")
	ErrNoNewMembers    = errors.New("all users are already members of this channel")
	ErrForbidden       = errors.New("not allowed")
)
