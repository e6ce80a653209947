package repository

import (
	"context"
	"errors"
	"time"

	"quince/internal/model"
	"quince/internal/pkg/id"
	"quince/internal/pkg/sqlite"
)

// tokenTTL 一次性令牌有效期
const tokenTTL = 10 * time.Minute

// TokenRepo 一次性令牌（邮箱验证、密码重置）数据访问
type TokenRepo struct {
	client *sqlite.Client
}

// NewTokenRepo 创建令牌仓库
func NewTokenRepo(client *sqlite.Client) *TokenRepo {
	return &TokenRepo{client: client}
}

// Create 生成并保存一个指定类型的一次性令牌
func (r *TokenRepo) Create(ctx context.Context, typ model.TokenType) (string, error) {
	token := id.Token()
	_, err := r.client.DB().ExecContext(ctx,
		`INSERT INTO token (token, type) VALUES (?, ?)`, token, string(typ))
	if err != nil {
		return "", err
	}
	return token, nil
}

// Validate 校验令牌存在、类型匹配且未过期
func (r *TokenRepo) Validate(ctx context.Context, token string, typ model.TokenType) (bool, error) {
	var created string
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT created FROM token WHERE token = ? AND type = ?`, token, string(typ)).Scan(&created)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return time.Since(parseTime(created)) < tokenTTL, nil
}
