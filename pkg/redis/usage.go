package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Month buckets outlive their month so late reads still see the final count
const usageTTL = 40 * 24 * time.Hour

// incrementWithCeilingScript returns {incremented, count}
var incrementWithCeilingScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {0, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, current}
`)

// UsageCounter stores monthly message counts in Redis
type UsageCounter struct {
	client *redis.Client
	prefix string
}

// NewUsageCounter creates a counter. Keys are "{prefix}:usage:{uid}:{month}".
func NewUsageCounter(client *redis.Client, prefix string) *UsageCounter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "blendar"
	}
	return &UsageCounter{client: client, prefix: prefix}
}

func (c *UsageCounter) key(userID, month string) string {
	return fmt.Sprintf("%s:usage:%s:%s", c.prefix, userID, month)
}

// MonthlyCount returns the count for a month, zero when unset
func (c *UsageCounter) MonthlyCount(ctx context.Context, userID, month string) (int, error) {
	n, err := c.client.Get(ctx, c.key(userID, month)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return n, nil
}

// IncrementWithCeiling atomically increments the month's count if it is
// below ceiling
func (c *UsageCounter) IncrementWithCeiling(ctx context.Context, userID, month string, ceiling int) (int, bool, error) {
	res, err := incrementWithCeilingScript.Run(ctx, c.client, []string{c.key(userID, month)}, ceiling, usageTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected usage script result %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}
