package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// 与旧版数据库中的哈希保持一致的 cost
const hashCost = 12

var (
	ErrTooShort = errors.New("Password is too short")
	ErrMismatch = errors.New("Passwords do not match")
)

// Hash 加密密码
func Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify 验证密码
func Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Validate 校验新密码是否满足规则（两次输入一致，至少8位）
func Validate(password, password2 string) error {
	if password != password2 {
		return ErrMismatch
	}
	if len(password) < 8 {
		return ErrTooShort
	}
	return nil
}
