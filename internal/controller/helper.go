package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tabsync/server/internal/service/session"
)

const headerPrefix = "Ts-"

func (c controller) mustHeader(r *http.Request, key string) (string, error) {
	value := r.Header.Get(headerPrefix + key)
	if value == "" {
		return "", fmt.Errorf("%s was not provided", key)
	}

	return value, nil
}

func (c controller) generateTimeBasedId() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMicro(), c.randstr.GenerateRandomString(4))
}

// statusForError maps service errors to http statuses for the REST surface.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrMemberNotFound),
		errors.Is(err, session.ErrCommentNotFound),
		errors.Is(err, session.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrForbidden),
		errors.Is(err, session.ErrRoleDenied),
		errors.Is(err, session.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, session.ErrMembersLimitReached),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
