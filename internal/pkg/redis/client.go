package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisClient 实时层与用户目录依赖的 Redis 能力
type RedisClient interface {
	Close() error
	Ping(ctx context.Context) error
	JoinPresence(ctx context.Context, roomID, userID string) (first bool, err error)
	LeavePresence(ctx context.Context, roomID, userID string) (last bool, err error)
	OnlineUsers(ctx context.Context, roomID string) ([]string, error)
	CacheDisplayName(ctx context.Context, userID, name string, ttl time.Duration) error
	CachedDisplayName(ctx context.Context, userID string) (string, bool, error)
	InvalidateUser(ctx context.Context, userID string) error
}

type Client struct {
	client *redis.Client
}

// NewClient wraps an already connected go-redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func presenceKey(roomID string) string {
	return fmt.Sprintf("room:%s:online", roomID)
}

func userKey(userID string) string {
	return fmt.Sprintf("user:%s:name", userID)
}

// 每个用户按连接数计数，归零时移除字段
var leaveScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// JoinPresence 记录用户在房间内的一条连接，返回是否为该用户的首条连接
func (c *Client) JoinPresence(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := c.client.HIncrBy(ctx, presenceKey(roomID), userID, 1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark user %s online in room %s: %w", userID, roomID, err)
	}
	return n == 1, nil
}

// LeavePresence 移除一条连接，返回用户是否已完全离线
func (c *Client) LeavePresence(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := leaveScript.Run(ctx, c.client, []string{presenceKey(roomID)}, userID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to mark user %s offline in room %s: %w", userID, roomID, err)
	}
	return n == 1, nil
}

func (c *Client) OnlineUsers(ctx context.Context, roomID string) ([]string, error) {
	users, err := c.client.HKeys(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users of room %s: %w", roomID, err)
	}
	return users, nil
}

func (c *Client) CacheDisplayName(ctx context.Context, userID, name string, ttl time.Duration) error {
	return c.client.Set(ctx, userKey(userID), name, ttl).Err()
}

func (c *Client) CachedDisplayName(ctx context.Context, userID string) (string, bool, error) {
	name, err := c.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (c *Client) InvalidateUser(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userKey(userID)).Err()
}
