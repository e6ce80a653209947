package service

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"quince/internal/config"
	"quince/internal/model"
	"quince/internal/repository"
)

// stubMailer 把发出的邮件记在内存里
type stubMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *stubMailer) Send(to, subject, plainBody, htmlBody string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: plainBody})
	return nil
}

type authEnv struct {
	svc    *AuthService
	users  *repository.UserRepo
	mail   *stubMailer
	tokens *repository.TokenRepo
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	db := newTestDB(t)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	userTokens := repository.NewUserTokenRepo(db)
	cacheRepo := repository.NewCacheRepo(db)
	mail := &stubMailer{}
	site := &config.SiteConfig{HostnameWithScheme: "http://localhost:8080", Name: "Quince"}

	return &authEnv{
		svc:    NewAuthService(users, tokens, userTokens, cacheRepo, mail, site),
		users:  users,
		mail:   mail,
		tokens: tokens,
	}
}

func signupReq(email string) *SignupRequest {
	return &SignupRequest{Email: email, Password: "secret-pass-1", Password2: "secret-pass-1", Captcha: "123456"}
}

func TestSignup(t *testing.T) {
	Convey("用户注册", t, func() {
		env := newAuthEnv(t)
		ctx := context.Background()

		Convey("注册成功后用户未验证，验证邮件已发出", func() {
			So(env.svc.Signup(ctx, signupReq("a@example.com")), ShouldBeNil)

			user, err := env.users.FindByEmail(ctx, "a@example.com")
			So(err, ShouldBeNil)
			So(user.Verified, ShouldBeFalse)
			So(user.Random, ShouldNotBeEmpty)

			So(env.mail.sent, ShouldHaveLength, 1)
			So(env.mail.sent[0].To, ShouldEqual, "a@example.com")
			So(env.mail.sent[0].Body, ShouldContainSubstring, user.Random)
		})

		Convey("重复注册报错", func() {
			So(env.svc.Signup(ctx, signupReq("a@example.com")), ShouldBeNil)
			err := env.svc.Signup(ctx, signupReq("a@example.com"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "User already exists. Please login or reset your password.")
		})

		Convey("非法邮箱被拒绝", func() {
			err := env.svc.Signup(ctx, signupReq("not-an-email"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "Invalid email")
		})

		Convey("密码太短被拒绝", func() {
			req := signupReq("b@example.com")
			req.Password = "short"
			req.Password2 = "short"
			err := env.svc.Signup(ctx, req)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "Password is too short")
		})

		Convey("两次密码不一致被拒绝", func() {
			req := signupReq("b@example.com")
			req.Password2 = "different-pass-1"
			err := env.svc.Signup(ctx, req)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "Passwords do not match")
		})

		Convey("邮件发送失败时注册报错", func() {
			env.mail.fail = true
			err := env.svc.Signup(ctx, signupReq("c@example.com"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Failed to send")
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("邮箱验证", t, func() {
		env := newAuthEnv(t)
		ctx := context.Background()

		So(env.svc.Signup(ctx, signupReq("a@example.com")), ShouldBeNil)
		user, err := env.users.FindByEmail(ctx, "a@example.com")
		So(err, ShouldBeNil)

		Convey("有效令牌完成验证", func() {
			So(env.svc.Verify(ctx, user.Random), ShouldBeNil)

			verified, err := env.users.FindByEmail(ctx, "a@example.com")
			So(err, ShouldBeNil)
			So(verified.Verified, ShouldBeTrue)

			Convey("重复验证报错且不改状态", func() {
				err := env.svc.Verify(ctx, user.Random)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldEqual, "User is already verified")

				again, err := env.users.FindByEmail(ctx, "a@example.com")
				So(err, ShouldBeNil)
				So(again.Verified, ShouldBeTrue)
			})
		})

		Convey("不存在的令牌报过期", func() {
			err := env.svc.Verify(ctx, "bogus-token")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Token is expired")
		})
	})
}

func TestLogin(t *testing.T) {
	Convey("登录", t, func() {
		env := newAuthEnv(t)
		ctx := context.Background()

		So(env.svc.Signup(ctx, signupReq("a@example.com")), ShouldBeNil)
		user, _ := env.users.FindByEmail(ctx, "a@example.com")

		Convey("未验证的账号不能登录", func() {
			_, _, err := env.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "secret-pass-1"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not verified")
		})

		Convey("验证后登录成功并签发会话令牌", func() {
			So(env.svc.Verify(ctx, user.Random), ShouldBeNil)

			loggedIn, token, err := env.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "secret-pass-1"})
			So(err, ShouldBeNil)
			So(loggedIn.UserID, ShouldEqual, user.UserID)
			So(token, ShouldNotBeEmpty)
		})

		Convey("错误密码被拒绝", func() {
			So(env.svc.Verify(ctx, user.Random), ShouldBeNil)
			_, _, err := env.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "wrong-pass-1"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "Invalid password")
		})

		Convey("不存在的用户被拒绝", func() {
			_, _, err := env.svc.Login(ctx, &LoginRequest{Email: "x@example.com", Password: "secret-pass-1"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "User does not exist")
		})
	})
}

func TestResetPassword(t *testing.T) {
	Convey("密码重置", t, func() {
		env := newAuthEnv(t)
		ctx := context.Background()

		So(env.svc.Signup(ctx, signupReq("a@example.com")), ShouldBeNil)

		Convey("重置邮件携带新令牌，新密码生效且账号转为已验证", func() {
			So(env.svc.ResetPassword(ctx, "a@example.com"), ShouldBeNil)

			user, err := env.users.FindByEmail(ctx, "a@example.com")
			So(err, ShouldBeNil)
			So(env.mail.sent, ShouldHaveLength, 2)
			So(env.mail.sent[1].Body, ShouldContainSubstring, user.Random)

			So(env.svc.NewPassword(ctx, user.Random, "brand-new-pass", "brand-new-pass"), ShouldBeNil)

			loggedIn, token, err := env.svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "brand-new-pass"})
			So(err, ShouldBeNil)
			So(loggedIn.Verified, ShouldBeTrue)
			So(token, ShouldNotBeEmpty)

			Convey("重置令牌已被轮换，不能再次使用", func() {
				err := env.svc.NewPassword(ctx, user.Random, "another-pass-1", "another-pass-1")
				So(err, ShouldNotBeNil)
			})
		})

		Convey("不存在的邮箱报错", func() {
			err := env.svc.ResetPassword(ctx, "x@example.com")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "User does not exist")
		})
	})
}

func TestProfile(t *testing.T) {
	Convey("用户资料", t, func() {
		env := newAuthEnv(t)
		ctx := context.Background()

		Convey("没保存过时返回零值", func() {
			profile, err := env.svc.GetProfile(ctx, 42)
			So(err, ShouldBeNil)
			So(profile, ShouldResemble, &model.Profile{})
		})

		Convey("白名单字段可以更新并读回", func() {
			err := env.svc.UpdateProfile(ctx, 42, map[string]any{
				"username":       "alice",
				"dark_theme":     true,
				"system_message": "Be brief",
			})
			So(err, ShouldBeNil)

			profile, err := env.svc.GetProfile(ctx, 42)
			So(err, ShouldBeNil)
			So(profile.Username, ShouldEqual, "alice")
			So(profile.DarkTheme, ShouldBeTrue)
			So(profile.SystemMessage, ShouldEqual, "Be brief")
		})

		Convey("白名单外的字段被拒绝", func() {
			err := env.svc.UpdateProfile(ctx, 42, map[string]any{"email": "evil@example.com"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "Invalid form fields")
		})

		Convey("部分更新不清掉其它字段", func() {
			So(env.svc.UpdateProfile(ctx, 42, map[string]any{"username": "alice"}), ShouldBeNil)
			So(env.svc.UpdateProfile(ctx, 42, map[string]any{"dark_theme": true}), ShouldBeNil)

			profile, err := env.svc.GetProfile(ctx, 42)
			So(err, ShouldBeNil)
			So(profile.Username, ShouldEqual, "alice")
			So(profile.DarkTheme, ShouldBeTrue)
		})
	})
}
