package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tabsync/server/internal/repository/session"
)

func (r repo) getEventsKey(sessionId string) string {
	return "session:" + sessionId + ":events"
}

// AppendEvent stores the serialized event under the next sequence number
// and returns it. Sequence assignment is atomic per session because the
// script reads the current max score and adds in one call.
func (r repo) AppendEvent(ctx context.Context, sessionId string, data []byte) (int64, error) {
	eventsKey := r.getEventsKey(sessionId)
	seq, err := r.addWithIncrement(ctx, eventsKey, data)
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}
	r.rc.Expire(ctx, eventsKey, r.expireDuration)

	return seq, nil
}

// GetEventsFrom returns the persisted events with sequence >= from, in
// sequence order.
func (r repo) GetEventsFrom(ctx context.Context, sessionId string, from int64) ([]session.EventRecord, error) {
	entries, err := r.rc.ZRangeByScoreWithScores(ctx, r.getEventsKey(sessionId), &goredis.ZRangeBy{
		Min: strconv.FormatInt(from, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	records := make([]session.EventRecord, 0, len(entries))
	for _, entry := range entries {
		data, ok := entry.Member.(string)
		if !ok {
			continue
		}

		records = append(records, session.EventRecord{
			Sequence: int64(entry.Score),
			Data:     json.RawMessage(data),
		})
	}

	return records, nil
}

func (r repo) GetLastSequence(ctx context.Context, sessionId string) (int64, error) {
	entries, err := r.rc.ZRevRangeWithScores(ctx, r.getEventsKey(sessionId), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}

	if len(entries) == 0 {
		return 0, nil
	}

	return int64(entries[0].Score), nil
}
