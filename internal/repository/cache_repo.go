package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"quince/internal/pkg/sqlite"
)

// CacheRepo 持久化键值缓存（cache 表）数据访问。
// 用户资料等需要跨重启保留的配置存放在这里。
type CacheRepo struct {
	client *sqlite.Client
}

// NewCacheRepo 创建缓存仓库
func NewCacheRepo(client *sqlite.Client) *CacheRepo {
	return &CacheRepo{client: client}
}

// Set 写入键值，旧值先删除再插入
func (r *CacheRepo) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cache (key, value, unix_timestamp) VALUES (?, ?, ?)`,
			key, string(data), time.Now().Unix())
		return err
	})
}

// Get 读取键值并反序列化到 dest。
// expireIn 大于零时，写入时间早于该窗口的条目视为不存在。
func (r *CacheRepo) Get(ctx context.Context, key string, dest any, expireIn time.Duration) error {
	var value string
	var ts int64
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT value, unix_timestamp FROM cache WHERE key = ?`, key).Scan(&value, &ts)
	if err != nil {
		return notFound(err)
	}
	if expireIn > 0 && time.Since(time.Unix(ts, 0)) > expireIn {
		return ErrNotFound
	}
	return json.Unmarshal([]byte(value), dest)
}

// Delete 删除键值
func (r *CacheRepo) Delete(ctx context.Context, key string) error {
	_, err := r.client.DB().ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	return err
}
