package domain

import "errors"

var (
	ErrTokenInvalid     = errors.New("invalid or expired access token")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotChatMember    = errors.New("not a member of this chat")
	ErrConnectionClosed = errors.New("connection closed")
)
