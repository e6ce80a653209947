package repository

import (
	"context"
	"database/sql"

	"quince/internal/model"
	"quince/internal/pkg/sqlite"
)

// UserRepo 用户表数据访问
type UserRepo struct {
	client *sqlite.Client
}

// NewUserRepo 创建用户仓库
func NewUserRepo(client *sqlite.Client) *UserRepo {
	return &UserRepo{client: client}
}

// Create 插入新用户，返回自增的 user_id
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, random string) (int64, error) {
	res, err := r.client.DB().ExecContext(ctx,
		`INSERT INTO users (email, password_hash, random) VALUES (?, ?, ?)`,
		email, passwordHash, random)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindByEmail 按邮箱查找用户
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.client.DB().QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, created, verified, random, locked
		 FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// FindByRandom 按验证令牌查找用户
func (r *UserRepo) FindByRandom(ctx context.Context, random string) (*model.User, error) {
	row := r.client.DB().QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, created, verified, random, locked
		 FROM users WHERE random = ?`, random)
	return scanUser(row)
}

// ExistsByEmail 检查邮箱是否已注册
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetVerified 标记用户已完成邮箱验证
func (r *UserRepo) SetVerified(ctx context.Context, userID int64) error {
	_, err := r.client.DB().ExecContext(ctx,
		`UPDATE users SET verified = 1 WHERE user_id = ?`, userID)
	return err
}

// UpdatePassword 更新密码哈希并轮换验证令牌
func (r *UserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash, newRandom string) error {
	_, err := r.client.DB().ExecContext(ctx,
		`UPDATE users SET password_hash = ?, random = ? WHERE user_id = ?`,
		passwordHash, newRandom, userID)
	return err
}

// UpdateRandom 轮换用户的验证令牌
func (r *UserRepo) UpdateRandom(ctx context.Context, userID int64, random string) error {
	_, err := r.client.DB().ExecContext(ctx,
		`UPDATE users SET random = ? WHERE user_id = ?`, random, userID)
	return err
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var created string
	if err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &created, &u.Verified, &u.Random, &u.Locked); err != nil {
		return nil, notFound(err)
	}
	u.Created = parseTime(created)
	return &u, nil
}
