package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims 会话 Cookie 的 JWT Claims
// Cookie 只携带不透明的会话ID，会话变量存在服务端
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWT 会话 Cookie 签名工具
type JWT struct {
	secret     []byte
	expiration time.Duration
}

// NewJWT 创建JWT工具实例
func NewJWT(secret string, expiration time.Duration) *JWT {
	return &JWT{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Sign 为会话ID签发 Cookie 值
func (j *JWT) Sign(sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// GetExpiration 获取过期时间
func (j *JWT) GetExpiration() time.Duration {
	return j.expiration
}

// Parse 验证 Cookie 值并返回会话ID
func (j *JWT) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})

	if err != nil {
		// jwt/v5 使用 errors.Is 来检查错误类型
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims.SessionID, nil
	}

	return "", ErrInvalidToken
}
