package redis

import (
	"context"
	"fmt"

	"github.com/pscheid92/presencepulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// decrFloorScript atomically decrements the active-connection count and clamps
// at zero. A decrement against an already-zero count (counter drift after a
// crashed instance or a flushed key) must never leave a negative residue, and
// must be distinguishable from a genuine 1→0 edge: the clamped case returns
// -1, a real decrement returns the new count.
var decrFloorScript = goredis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('SET', KEYS[1], '0')
  return -1
end
return v
`)

func presenceKey(user domain.UserID) string {
	return fmt.Sprintf("presence:conns:%d", user)
}

// Counter implements domain.PresenceCounter on Redis. The INCR/DECR return
// value is the authoritative post-operation count, so exactly one process in
// the cluster observes each 0→1 and 1→0 edge: the one whose command
// performed it.
type Counter struct {
	rdb *goredis.Client
}

func NewCounter(rdb *goredis.Client) *Counter {
	return &Counter{rdb: rdb}
}

func (c *Counter) Incr(ctx context.Context, user domain.UserID) (int64, error) {
	n, err := c.rdb.Incr(ctx, presenceKey(user)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment presence counter: %w", err)
	}
	return n, nil
}

// Decr returns the count after the decrement, or -1 when the count was
// already zero and left unchanged.
func (c *Counter) Decr(ctx context.Context, user domain.UserID) (int64, error) {
	result, err := decrFloorScript.Run(ctx, c.rdb, []string{presenceKey(user)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement presence counter: %w", err)
	}
	return result, nil
}
