package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"quince/internal/config"
)

// Client SQLite 客户端封装
type Client struct {
	db *sql.DB
}

// New 打开数据库并确保数据目录存在
func New(cfg *config.DatabaseConfig) (*Client, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, "database.db")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return Open(path)
}

// Open 打开指定路径的数据库（测试可传 file::memory:?cache=shared）
// message -> dialog 的级联删除依赖外键约束，而外键是连接级开关，
// 通过 DSN pragma 让连接池里的每个连接打开它
func Open(path string) (*Client, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_pragma=foreign_keys(1)"
	} else {
		dsn += "?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db}, nil
}

// DB 获取原始 *sql.DB
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close 关闭数据库
func (c *Client) Close() error {
	return c.db.Close()
}

// WithTx 在一个短事务中执行 fn，出错回滚
// 事务不跨越流式响应，持有时间很短
func (c *Client) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
