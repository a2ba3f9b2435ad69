package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	UserKeyPrefix    = "user:%d"
	TileKeyPrefix    = "tile:%s"
	StoreListingKey  = "store:listing"
	UserDashboardKey = "user:%d:dashboard"
	SettingKeyPrefix = "setting:%s"
)

const (
	UserTTL         = 5 * time.Minute
	TileTTL         = 10 * time.Minute
	StoreListingTTL = 2 * time.Minute
	SettingTTL      = time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func TileKey(identifier string) string {
	return fmt.Sprintf(TileKeyPrefix, identifier)
}

func DashboardKey(userID uint) string {
	return fmt.Sprintf(UserDashboardKey, userID)
}

func SettingKey(key string) string {
	return fmt.Sprintf(SettingKeyPrefix, key)
}

// GetJSON reads a cached JSON value into dest, reporting whether it was found.
func GetJSON(ctx context.Context, key string, dest any) bool {
	if client == nil {
		return false
	}
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// SetJSON caches a value as JSON with the given TTL. Failures are ignored;
// the cache is strictly best effort.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	client.Set(ctx, key, raw, ttl)
}

// Aside tries the cache first and on miss calls fetch, which must write into
// dest, then stores the result with the given TTL.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if GetJSON(ctx, key, dest) {
		return nil
	}
	if err := fetch(); err != nil {
		return err
	}
	SetJSON(ctx, key, dest, ttl)
	return nil
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
	Invalidate(ctx, DashboardKey(userID))
}

func InvalidateTile(ctx context.Context, identifier string) {
	Invalidate(ctx, TileKey(identifier))
	Invalidate(ctx, StoreListingKey)
}

// InvalidateStoreListing drops the shared store listing. Called after any
// bulk catalog change such as a sync run.
func InvalidateStoreListing(ctx context.Context) {
	Invalidate(ctx, StoreListingKey)
}

func InvalidateSetting(ctx context.Context, key string) {
	Invalidate(ctx, SettingKey(key))
}
