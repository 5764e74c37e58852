package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix       = "user:%d"
	defaultUserCacheTTL = 5 * time.Minute
)

// UserTTL is the lifetime of cached user records; configurable at startup.
// Follow edges, rosters and chats are never cached: their checks must see
// the persisted state.
var UserTTL = defaultUserCacheTTL

// SetUserTTL overrides UserTTL; non-positive values restore the default.
func SetUserTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	UserTTL = ttl
}

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
