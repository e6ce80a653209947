package model

import "time"

// User 用户实体（users 表）
type User struct {
	UserID       int64     `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
	Verified     bool      `json:"verified"`
	Random       string    `json:"-"` // 当前验证/重置 token
	Locked       bool      `json:"locked"`
}

// Profile 用户资料（cache 表中以 user_<id> 为 key 的 JSON）
type Profile struct {
	Username      string `json:"username,omitempty"`
	DarkTheme     bool   `json:"dark_theme,omitempty"`
	SystemMessage string `json:"system_message,omitempty"`
}

// TokenType 一次性 token 的用途
type TokenType string

const (
	TokenTypeVerify TokenType = "VERIFY"
	TokenTypeReset  TokenType = "RESET"
)
