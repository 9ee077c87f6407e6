package session

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrProjectSessionExists = errors.New("project already has a live session")
	ErrMemberNotFound       = errors.New("member not found")
	ErrClockNotFound        = errors.New("clock not found")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrTokenNotFound        = errors.New("connect token not found")
)
