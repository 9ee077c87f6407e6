package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tabsync/server/internal/repository/session"
)

func (r repo) getSessionKey(sessionId string) string {
	return "session:" + sessionId
}

func (r repo) getProjectSessionKey(projectId string) string {
	return "project:" + projectId + ":session"
}

// SetSession reserves the project guard key first so that a project can
// never have two live sessions.
func (r repo) SetSession(ctx context.Context, params *session.SetSessionParams) error {
	ok, err := r.rc.SetNX(ctx, r.getProjectSessionKey(params.ProjectId), params.SessionId, r.expireDuration).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve project session: %w", err)
	}
	if !ok {
		return session.ErrProjectSessionExists
	}

	sess := session.Session{
		ProjectId: params.ProjectId,
		HostId:    params.HostId,
		CreatedAt: params.CreatedAt,
	}
	sessionKey := r.getSessionKey(params.SessionId)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, sessionKey, sess)
	pipe.Expire(ctx, sessionKey, r.expireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (r repo) GetSession(ctx context.Context, sessionId string) (session.Session, error) {
	sessionKey := r.getSessionKey(sessionId)
	if r.rc.Exists(ctx, sessionKey).Val() == 0 {
		return session.Session{}, session.ErrSessionNotFound
	}

	var sess session.Session
	if err := r.rc.HGetAll(ctx, sessionKey).Scan(&sess); err != nil {
		return session.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

func (r repo) GetSessionIdByProjectId(ctx context.Context, projectId string) (string, error) {
	sessionId, err := r.rc.Get(ctx, r.getProjectSessionKey(projectId)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", session.ErrSessionNotFound
		}

		return "", fmt.Errorf("failed to get session id by project id: %w", err)
	}

	return sessionId, nil
}

func (r repo) UpdateSessionHost(ctx context.Context, sessionId, hostId string) error {
	sessionKey := r.getSessionKey(sessionId)
	if r.rc.Exists(ctx, sessionKey).Val() == 0 {
		return session.ErrSessionNotFound
	}

	return r.rc.HSet(ctx, sessionKey, "host_id", hostId).Err()
}

// RemoveSession deletes every key owned by the session, including the
// project guard so a new session can be created for the same project.
func (r repo) RemoveSession(ctx context.Context, sessionId string) error {
	sess, err := r.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}

	memberIds, err := r.GetMemberIds(ctx, sessionId)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	for _, memberId := range memberIds {
		pipe.Del(ctx, r.getMemberKey(sessionId, memberId))
	}
	commentIds, err := r.GetCommentIds(ctx, sessionId)
	if err != nil {
		return err
	}
	for _, commentId := range commentIds {
		pipe.Del(ctx, r.getCommentKey(sessionId, commentId))
	}
	pipe.Del(ctx,
		r.getSessionKey(sessionId),
		r.getMemberListKey(sessionId),
		r.getClockKey(sessionId),
		r.getEventsKey(sessionId),
		r.getCommentListKey(sessionId),
		r.getEditsKey(sessionId),
		r.getProjectSessionKey(sess.ProjectId),
	)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	return nil
}
