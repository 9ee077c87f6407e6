package session

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("project already has a live session")
	ErrMemberNotFound       = errors.New("member not found")
	ErrMembersLimitReached  = errors.New("members limit reached")
	ErrForbidden            = errors.New("forbidden")
	ErrRoleDenied           = errors.New("requested role exceeds granted role")
	ErrNotHost              = errors.New("sender is not the host")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrTokenNotFound        = errors.New("connect token not found")
)
