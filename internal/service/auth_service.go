package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"quince/internal/config"
	"quince/internal/model"
	"quince/internal/pkg/id"
	"quince/internal/pkg/mailer"
	"quince/internal/pkg/password"
	"quince/internal/repository"
)

// ErrUserValidate 用户可见的校验错误，HTTP 层原样返回文案
type ErrUserValidate struct {
	Message string
}

func (e *ErrUserValidate) Error() string {
	return e.Message
}

func userValidate(msg string) error {
	return &ErrUserValidate{Message: msg}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignupRequest 注册入参
type SignupRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password_2" binding:"required"`
	Captcha   string `json:"captcha" binding:"required"`
}

// LoginRequest 登录入参
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthService 用户账户服务：注册、验证、登录、密码重置、用户资料
type AuthService struct {
	users      *repository.UserRepo
	tokens     *repository.TokenRepo
	userTokens *repository.UserTokenRepo
	cache      *repository.CacheRepo
	mail       mailer.Sender
	site       *config.SiteConfig
}

// NewAuthService 创建账户服务
func NewAuthService(users *repository.UserRepo, tokens *repository.TokenRepo, userTokens *repository.UserTokenRepo, cache *repository.CacheRepo, mail mailer.Sender, site *config.SiteConfig) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		userTokens: userTokens,
		cache:      cache,
		mail:       mail,
		site:       site,
	}
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return userValidate("Invalid email")
	}
	return nil
}

// Signup 注册新用户并发送验证邮件。
// 验证码由调用方先行校验（验证码ID在会话里）。
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) error {
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if err := password.Validate(req.Password, req.Password2); err != nil {
		return userValidate(err.Error())
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if exists {
		return userValidate("User already exists. Please login or reset your password.")
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return err
	}

	token, err := s.tokens.Create(ctx, model.TokenTypeVerify)
	if err != nil {
		return err
	}

	if _, err := s.users.Create(ctx, req.Email, hash, token); err != nil {
		return err
	}

	if err := s.sendTokenMail(req.Email, "Please verify your account", "verify", token); err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("failed to send verification email")
		return userValidate("Failed to send reset email. Please try and sign up again later.")
	}
	return nil
}

// Verify 用邮件里的令牌完成账号验证。
// 已验证的账号重复验证报错且不做任何修改。
func (s *AuthService) Verify(ctx context.Context, token string) error {
	valid, err := s.tokens.Validate(ctx, token, model.TokenTypeVerify)
	if err != nil {
		return err
	}
	if !valid {
		return userValidate("Token is expired. Please request a new password in order to verify your account.")
	}

	user, err := s.users.FindByRandom(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userValidate("User does not exist")
		}
		return err
	}
	if user.Verified {
		return userValidate("User is already verified")
	}

	return s.users.SetVerified(ctx, user.UserID)
}

// Login 校验邮箱密码，成功后生成本次登录的会话令牌并入库。
// 调用方负责把 user_id 和令牌写进会话。
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*model.User, string, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", userValidate("User does not exist")
		}
		return nil, "", err
	}
	if !user.Verified {
		return nil, "", userValidate(
			"Your account is not verified. In order to verify your account, " +
				"you should reset your password. When this is done, you are verified.")
	}
	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, "", userValidate("Invalid password")
	}

	sessionToken := id.Token()
	if err := s.userTokens.Insert(ctx, user.UserID, sessionToken); err != nil {
		return nil, "", err
	}
	return user, sessionToken, nil
}

// ResetPassword 发送密码重置邮件
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userValidate("User does not exist")
		}
		return err
	}

	token, err := s.tokens.Create(ctx, model.TokenTypeReset)
	if err != nil {
		return err
	}
	if err := s.users.UpdateRandom(ctx, user.UserID, token); err != nil {
		return err
	}

	if err := s.sendTokenMail(email, "Please reset your password", "new-password", token); err != nil {
		log.Error().Err(err).Str("email", email).Msg("failed to send reset email")
		return userValidate("Failed to send reset email. Please try and sign up again later.")
	}
	return nil
}

// NewPassword 用重置令牌设置新密码，同时完成账号验证
func (s *AuthService) NewPassword(ctx context.Context, token, pass, pass2 string) error {
	if err := password.Validate(pass, pass2); err != nil {
		return userValidate(err.Error())
	}

	valid, err := s.tokens.Validate(ctx, token, model.TokenTypeReset)
	if err != nil {
		return err
	}
	if !valid {
		return userValidate("Token is expired. Please request a new password again")
	}

	user, err := s.users.FindByRandom(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userValidate("User does not exist")
		}
		return err
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.UserID, hash, id.Token()); err != nil {
		return err
	}
	return s.users.SetVerified(ctx, user.UserID)
}

func profileKey(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// GetProfile 读取用户资料，没有保存过时返回零值
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	if err := s.cache.Get(ctx, profileKey(userID), &profile, 0); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.Profile{}, nil
		}
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile 更新用户资料，只接受白名单字段
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, fields map[string]any) error {
	allowed := map[string]bool{"username": true, "dark_theme": true, "system_message": true}
	for key := range fields {
		if !allowed[key] {
			return userValidate("Invalid form fields")
		}
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if v, ok := fields["username"].(string); ok {
		profile.Username = v
	}
	if v, ok := fields["dark_theme"].(bool); ok {
		profile.DarkTheme = v
	}
	if v, ok := fields["system_message"].(string); ok {
		profile.SystemMessage = v
	}

	return s.cache.Set(ctx, profileKey(userID), profile)
}

// sendTokenMail 发送带令牌链接的邮件
func (s *AuthService) sendTokenMail(email, subject, page, token string) error {
	link := fmt.Sprintf("%s/user/%s?token=%s", strings.TrimRight(s.site.HostnameWithScheme, "/"), page, token)

	plain := fmt.Sprintf("%s\n\nOpen the following link to continue on %s:\n%s\n", subject, s.site.Name, link)
	html := fmt.Sprintf(
		`<p>%s</p><p>Click the link to continue on %s:</p><p><a href="%s">%s</a></p>`,
		subject, s.site.Name, link, link)

	return s.mail.Send(email, subject, plain, html)
}
