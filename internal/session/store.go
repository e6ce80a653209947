package session

import (
	"context"
	"fmt"
	"time"

	"quince/internal/pkg/cache"
)

// ErrNoValue 会话变量不存在
var ErrNoValue = cache.ErrNotFound

// Store 服务端会话变量存储。
// Cookie 只携带会话ID，变量本体全部存在 Redis，key 级别独立过期。
type Store struct {
	cache *cache.RedisCache
}

// NewStore 创建会话变量存储
func NewStore(c *cache.RedisCache) *Store {
	return &Store{cache: c}
}

func key(sessionID, name string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, name)
}

// SetVar 写入会话变量，expiration 为 0 表示不过期
func (s *Store) SetVar(ctx context.Context, sessionID, name string, value any, expiration time.Duration) error {
	return s.cache.Set(ctx, key(sessionID, name), value, expiration)
}

// GetVar 读取会话变量，不存在时返回 ErrNoValue
func (s *Store) GetVar(ctx context.Context, sessionID, name string, dest any) error {
	return s.cache.Get(ctx, key(sessionID, name), dest)
}

// DeleteVar 删除会话变量
func (s *Store) DeleteVar(ctx context.Context, sessionID string, names ...string) error {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = key(sessionID, name)
	}
	return s.cache.Delete(ctx, keys...)
}
