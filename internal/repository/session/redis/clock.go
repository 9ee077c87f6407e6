package redis

import (
	"context"
	"fmt"

	"github.com/tabsync/server/internal/repository/session"
)

func (r repo) getClockKey(sessionId string) string {
	return "session:" + sessionId + ":clock"
}

func (r repo) SetClock(ctx context.Context, params *session.SetClockParams) error {
	clock := session.Clock{
		Position:  params.Position,
		IsPlaying: params.IsPlaying,
		UpdatedAt: params.UpdatedAt,
	}
	clockKey := r.getClockKey(params.SessionId)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, clockKey, clock)
	pipe.Expire(ctx, clockKey, r.expireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set clock: %w", err)
	}

	return nil
}

func (r repo) GetClock(ctx context.Context, sessionId string) (session.Clock, error) {
	clockKey := r.getClockKey(sessionId)
	if r.rc.Exists(ctx, clockKey).Val() == 0 {
		return session.Clock{}, session.ErrClockNotFound
	}

	var clock session.Clock
	if err := r.rc.HGetAll(ctx, clockKey).Scan(&clock); err != nil {
		return session.Clock{}, fmt.Errorf("failed to get clock: %w", err)
	}

	return clock, nil
}

func (r repo) UpdateClock(ctx context.Context, params *session.UpdateClockParams) error {
	clockKey := r.getClockKey(params.SessionId)
	if r.rc.Exists(ctx, clockKey).Val() == 0 {
		return session.ErrClockNotFound
	}

	return r.rc.HSet(ctx, clockKey,
		"position", params.Position,
		"is_playing", params.IsPlaying,
		"updated_at", params.UpdatedAt,
	).Err()
}
