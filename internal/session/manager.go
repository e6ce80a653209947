package session

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quince/internal/config"
	"quince/internal/pkg/id"
	"quince/internal/pkg/jwt"
	"quince/internal/repository"
)

// 会话变量名
const (
	varUserID  = "user_id"
	varToken   = "token"
	varCaptcha = "captcha"
)

// ctxSessionID gin.Context 中缓存的会话ID key
const ctxSessionID = "session_id"

// Manager 会话管理。
// 登录状态由两部分组成：Redis 里的会话变量（user_id + token），
// 以及 SQLite user_token 表里的登录记录。服务端登出删除表记录后，
// 即使 Cookie 和 Redis 变量还在，IsLoggedIn 也立即返回未登录。
type Manager struct {
	jwt        *jwt.JWT
	store      *Store
	userTokens *repository.UserTokenRepo
	cfg        *config.SessionConfig
}

// NewManager 创建会话管理器
func NewManager(j *jwt.JWT, store *Store, userTokens *repository.UserTokenRepo, cfg *config.SessionConfig) *Manager {
	return &Manager{jwt: j, store: store, userTokens: userTokens, cfg: cfg}
}

// SessionID 取出请求的会话ID，没有有效 Cookie 时创建新会话并下发 Cookie
func (m *Manager) SessionID(c *gin.Context) string {
	if sid, ok := c.Get(ctxSessionID); ok {
		return sid.(string)
	}

	var sessionID string
	cookie, err := c.Cookie(m.cfg.CookieName)
	if err == nil {
		sessionID, err = m.jwt.Parse(cookie)
	}
	if err != nil || sessionID == "" {
		sessionID = id.New()
		m.writeCookie(c, sessionID)
	}

	c.Set(ctxSessionID, sessionID)
	return sessionID
}

func (m *Manager) writeCookie(c *gin.Context, sessionID string) {
	signed, err := m.jwt.Sign(sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign session cookie")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cfg.CookieName, signed, int(m.jwt.GetExpiration().Seconds()), "/", "", m.cfg.Secure, true)
}

// SetUserSession 登录成功后绑定用户与本次登录令牌
func (m *Manager) SetUserSession(c *gin.Context, userID int64, token string) error {
	sid := m.SessionID(c)
	ctx := c.Request.Context()
	if err := m.store.SetVar(ctx, sid, varUserID, userID, m.cfg.Expiry); err != nil {
		return err
	}
	return m.store.SetVar(ctx, sid, varToken, token, m.cfg.Expiry)
}

// IsLoggedIn 返回当前登录用户的 user_id，未登录返回 0。
// 会话变量必须和 user_token 表中的登录记录同时有效。
func (m *Manager) IsLoggedIn(c *gin.Context) int64 {
	sid := m.SessionID(c)
	ctx := c.Request.Context()

	var userID int64
	if err := m.store.GetVar(ctx, sid, varUserID, &userID); err != nil {
		return 0
	}
	var token string
	if err := m.store.GetVar(ctx, sid, varToken, &token); err != nil {
		return 0
	}

	ok, err := m.userTokens.Exists(ctx, userID, token)
	if err != nil {
		log.Error().Err(err).Msg("failed to check login token")
		return 0
	}
	if !ok {
		// 登录记录已被服务端删除，清掉残留的会话变量
		_ = m.store.DeleteVar(ctx, sid, varUserID, varToken)
		return 0
	}
	return userID
}

// Logout 登出。all 为真时使该用户所有设备的登录都失效。
func (m *Manager) Logout(c *gin.Context, all bool) error {
	sid := m.SessionID(c)
	ctx := c.Request.Context()

	var userID int64
	var token string
	errUID := m.store.GetVar(ctx, sid, varUserID, &userID)
	errTok := m.store.GetVar(ctx, sid, varToken, &token)

	if errUID == nil && userID != 0 {
		if all {
			if err := m.userTokens.DeleteAll(ctx, userID); err != nil {
				return err
			}
		} else if errTok == nil {
			if err := m.userTokens.Delete(ctx, userID, token); err != nil {
				return err
			}
		}
	}

	if err := m.store.DeleteVar(ctx, sid, varUserID, varToken, varCaptcha); err != nil &&
		!errors.Is(err, ErrNoValue) {
		return err
	}
	return nil
}

// SetCaptchaID 保存注册页下发的验证码ID
func (m *Manager) SetCaptchaID(c *gin.Context, captchaID string) error {
	return m.store.SetVar(c.Request.Context(), m.SessionID(c), varCaptcha, captchaID, m.cfg.Expiry)
}

// CaptchaID 取出当前会话的验证码ID，没有返回空串
func (m *Manager) CaptchaID(c *gin.Context) string {
	var captchaID string
	if err := m.store.GetVar(c.Request.Context(), m.SessionID(c), varCaptcha, &captchaID); err != nil {
		return ""
	}
	return captchaID
}

// ClearCaptcha 验证码消费后清除
func (m *Manager) ClearCaptcha(c *gin.Context) {
	_ = m.store.DeleteVar(c.Request.Context(), m.SessionID(c), varCaptcha)
}
