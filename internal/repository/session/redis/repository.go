package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc              *redis.Client
	nextScoreScript string
	expireDuration  time.Duration
}

// NewRepo loads the sequence-assignment script once and reuses it for every
// append. The script keeps sequence numbers gap-free and strictly
// increasing per key without a round trip per read-modify-write.
func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc: rc,
		nextScoreScript: rc.ScriptLoad(context.Background(), `
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`).Val(),
		expireDuration: expireDuration,
	}
}
