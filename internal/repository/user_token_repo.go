package repository

import (
	"context"

	"quince/internal/pkg/sqlite"
)

// UserTokenRepo 登录会话令牌数据访问。
// 每次登录插入一条记录，服务端登出时删除，使旧会话立即失效。
type UserTokenRepo struct {
	client *sqlite.Client
}

// NewUserTokenRepo 创建会话令牌仓库
func NewUserTokenRepo(client *sqlite.Client) *UserTokenRepo {
	return &UserTokenRepo{client: client}
}

// Insert 记录一次新登录
func (r *UserTokenRepo) Insert(ctx context.Context, userID int64, token string) error {
	_, err := r.client.DB().ExecContext(ctx,
		`INSERT INTO user_token (user_id, token) VALUES (?, ?)`, userID, token)
	return err
}

// Exists 检查会话令牌是否仍然有效
func (r *UserTokenRepo) Exists(ctx context.Context, userID int64, token string) (bool, error) {
	var n int
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_token WHERE user_id = ? AND token = ?`,
		userID, token).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete 使单个会话失效
func (r *UserTokenRepo) Delete(ctx context.Context, userID int64, token string) error {
	_, err := r.client.DB().ExecContext(ctx,
		`DELETE FROM user_token WHERE user_id = ? AND token = ?`, userID, token)
	return err
}

// DeleteAll 使该用户的全部会话失效
func (r *UserTokenRepo) DeleteAll(ctx context.Context, userID int64) error {
	_, err := r.client.DB().ExecContext(ctx,
		`DELETE FROM user_token WHERE user_id = ?`, userID)
	return err
}
