package repository

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// sqliteTimeFormat CURRENT_TIMESTAMP 写入的格式（UTC）
const sqliteTimeFormat = "2006-01-02 15:04:05"

// parseTime 解析 SQLite TEXT 时间戳
func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeFormat, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// notFound 把 sql.ErrNoRows 转为包级 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
