package handler

import (
	"errors"
	"net/http"

	"github.com/dchest/captcha"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	httppkg "quince/internal/pkg/http"
	"quince/internal/service"
	"quince/internal/session"
)

// UserHandler 用户账户处理器
type UserHandler struct {
	auth     *service.AuthService
	sessions *session.Manager
}

// NewUserHandler 创建用户账户处理器
func NewUserHandler(auth *service.AuthService, sessions *session.Manager) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

// userError 把校验错误转成 {error:true, message} 返回，其它错误一律兜底文案
func userError(c *gin.Context, err error, fallback string) {
	var uv *service.ErrUserValidate
	if errors.As(err, &uv) {
		c.JSON(http.StatusOK, httppkg.Fail(uv.Message))
		return
	}
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("user request failed")
	c.JSON(http.StatusOK, httppkg.Fail(fallback))
}

// Captcha 下发验证码图片，验证码ID存在会话里
func (h *UserHandler) Captcha(c *gin.Context) {
	captchaID := captcha.New()
	if err := h.sessions.SetCaptchaID(c, captchaID); err != nil {
		log.Error().Err(err).Msg("failed to store captcha id")
		c.JSON(http.StatusInternalServerError, httppkg.NewErrorResponse(50001, "Internal server error"))
		return
	}

	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-store")
	if err := captcha.WriteImage(c.Writer, captchaID, captcha.StdWidth, captcha.StdHeight); err != nil {
		log.Error().Err(err).Msg("failed to write captcha image")
	}
}

// Signup 用户注册
// @Summary      用户注册
// @Description  注册新用户并发送验证邮件，需要先请求 /user/captcha
// @Tags         用户
// @Accept       json
// @Produce      json
// @Param        request  body      service.SignupRequest  true  "注册请求"
// @Success      200      {object}  http.JSONResult
// @Router       /user/signup [post]
func (h *UserHandler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	captchaID := h.sessions.CaptchaID(c)
	if captchaID == "" || !captcha.VerifyString(captchaID, req.Captcha) {
		h.sessions.ClearCaptcha(c)
		c.JSON(http.StatusOK, httppkg.Fail("Invalid CAPTCHA"))
		return
	}
	h.sessions.ClearCaptcha(c)

	if err := h.auth.Signup(c.Request.Context(), &req); err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	c.JSON(http.StatusOK, httppkg.OK("User created. Please check your email to verify your account."))
}

// Verify 邮箱验证
func (h *UserHandler) Verify(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	if err := h.auth.Verify(c.Request.Context(), req.Token); err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	c.JSON(http.StatusOK, httppkg.OK("Your account is verified. You may login."))
}

// Login 用户登录
// @Summary      用户登录
// @Tags         用户
// @Accept       json
// @Produce      json
// @Param        request  body      service.LoginRequest  true  "登录请求"
// @Success      200      {object}  http.JSONResult
// @Router       /user/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	if err := h.sessions.SetUserSession(c, user.UserID, token); err != nil {
		log.Error().Err(err).Int64("user_id", user.UserID).Msg("failed to bind user session")
		c.JSON(http.StatusOK, httppkg.Fail("An unexpected error occurred"))
		return
	}

	log.Info().Int64("user_id", user.UserID).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{"error": false, "message": "You are logged in", "redirect": "/"})
}

// Logout 登出，?logout=1 登出当前会话，?logout_all=1 登出所有设备
func (h *UserHandler) Logout(c *gin.Context) {
	all := c.Query("logout_all") != ""

	if err := h.sessions.Logout(c, all); err != nil {
		log.Error().Err(err).Msg("logout failed")
		c.JSON(http.StatusOK, httppkg.Fail("An unexpected error occurred"))
		return
	}

	message := "You are logged out"
	if all {
		message = "You are logged out of all your devices"
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "message": message, "redirect": "/user/login"})
}

// ResetPassword 请求密码重置邮件
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email   string `json:"email" binding:"required"`
		Captcha string `json:"captcha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	captchaID := h.sessions.CaptchaID(c)
	if captchaID == "" || !captcha.VerifyString(captchaID, req.Captcha) {
		h.sessions.ClearCaptcha(c)
		c.JSON(http.StatusOK, httppkg.Fail("Invalid CAPTCHA"))
		return
	}
	h.sessions.ClearCaptcha(c)

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email); err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	c.JSON(http.StatusOK, httppkg.OK("A reset link has been sent to your email"))
}

// NewPassword 用重置令牌设置新密码
func (h *UserHandler) NewPassword(c *gin.Context) {
	var req struct {
		Token     string `json:"token" binding:"required"`
		Password  string `json:"password" binding:"required"`
		Password2 string `json:"password_2" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	if err := h.auth.NewPassword(c.Request.Context(), req.Token, req.Password, req.Password2); err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	c.JSON(http.StatusOK, httppkg.OK("Your password has been updated. You may login."))
}

// GetProfile 读取用户资料
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to view your profile"))
		return
	}

	profile, err := h.auth.GetProfile(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to get profile")
		c.JSON(http.StatusOK, httppkg.Fail("An unexpected error occurred"))
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateProfile 更新用户资料（username/dark_theme/system_message）
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to update your profile"))
		return
	}

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	if err := h.auth.UpdateProfile(c.Request.Context(), userID, fields); err != nil {
		userError(c, err, "An unexpected error occurred")
		return
	}

	c.JSON(http.StatusOK, httppkg.OK("Profile updated"))
}

// IsLoggedIn 前端探测登录状态
func (h *UserHandler) IsLoggedIn(c *gin.Context) {
	if h.sessions.IsLoggedIn(c) == 0 {
		c.JSON(http.StatusOK, gin.H{"error": true, "redirect": "/user/login"})
		return
	}
	c.JSON(http.StatusOK, httppkg.OK("You are logged in"))
}
