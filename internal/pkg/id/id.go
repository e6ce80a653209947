package id

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// New 生成新的UUID（string格式）
func New() string {
	return uuid.New().String()
}

// IsValid 验证UUID格式是否有效
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Token 生成 URL 安全的随机 token（会话/验证/重置使用）
func Token() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}
