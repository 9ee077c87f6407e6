package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func (r repo) addWithIncrement(ctx context.Context, key string, value any) (int64, error) {
	return r.rc.EvalSha(ctx, r.nextScoreScript, []string{key}, value).Int64()
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
