package repository

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrUserNotFound   = errors.New("user not found")
	ErrPostNotFound   = errors.New("post not found")
	ErrNotFound       = errors.New("record not found")
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
)
