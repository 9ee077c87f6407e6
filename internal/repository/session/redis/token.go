package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/tabsync/server/internal/repository/session"
)

const tokenExpireDuration = 5 * time.Minute

func (r repo) getCreateSessionKey(token string) string {
	return "create-session:" + token
}

func (r repo) getJoinSessionKey(token string) string {
	return "join-session:" + token
}

func (r repo) SetCreateSession(ctx context.Context, params *session.SetCreateSessionParams) error {
	createSession := session.CreateSession{
		ProjectId:   params.ProjectId,
		MemberId:    params.MemberId,
		DisplayName: params.DisplayName,
	}
	key := r.getCreateSessionKey(params.Token)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, key, createSession)
	pipe.Expire(ctx, key, tokenExpireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set create session: %w", err)
	}

	return nil
}

// GetCreateSession consumes the token: it is deleted on first read.
func (r repo) GetCreateSession(ctx context.Context, token string) (session.CreateSession, error) {
	key := r.getCreateSessionKey(token)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.CreateSession{}, session.ErrTokenNotFound
	}

	var createSession session.CreateSession
	if err := r.rc.HGetAll(ctx, key).Scan(&createSession); err != nil {
		return session.CreateSession{}, fmt.Errorf("failed to get create session: %w", err)
	}
	r.rc.Del(ctx, key)

	return createSession, nil
}

func (r repo) SetJoinSession(ctx context.Context, params *session.SetJoinSessionParams) error {
	joinSession := session.JoinSession{
		SessionId:   params.SessionId,
		MemberId:    params.MemberId,
		DisplayName: params.DisplayName,
		GrantedRole: params.GrantedRole,
	}
	key := r.getJoinSessionKey(params.Token)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, key, joinSession)
	pipe.Expire(ctx, key, tokenExpireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set join session: %w", err)
	}

	return nil
}

// GetJoinSession consumes the token: it is deleted on first read.
func (r repo) GetJoinSession(ctx context.Context, token string) (session.JoinSession, error) {
	key := r.getJoinSessionKey(token)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.JoinSession{}, session.ErrTokenNotFound
	}

	var joinSession session.JoinSession
	if err := r.rc.HGetAll(ctx, key).Scan(&joinSession); err != nil {
		return session.JoinSession{}, fmt.Errorf("failed to get join session: %w", err)
	}
	r.rc.Del(ctx, key)

	return joinSession, nil
}
