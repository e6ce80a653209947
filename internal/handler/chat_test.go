package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"quince/internal/config"
	"quince/internal/pkg/cache"
	"quince/internal/pkg/id"
	"quince/internal/pkg/jwt"
	"quince/internal/pkg/sqlite"
	"quince/internal/provider"
	"quince/internal/repository"
	"quince/internal/service"
	"quince/internal/session"
	"quince/internal/tools"
)

// chatTestEnv 一套可发请求的对话中继路由
type chatTestEnv struct {
	engine  *gin.Engine
	cookies []*http.Cookie
}

func newChatTestEnv(t *testing.T, upstream http.HandlerFunc) *chatTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// 模型后端
	backend := httptest.NewServer(upstream)
	t.Cleanup(backend.Close)

	// 存储
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisCacheFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { redisCache.Close() })

	db, err := sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.DB().SetMaxOpenConns(1)
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// 会话
	sessionCfg := &config.SessionConfig{Secret: "test-secret", CookieName: "quince_session", Expiry: time.Hour}
	userTokens := repository.NewUserTokenRepo(db)
	sessions := session.NewManager(
		jwt.NewJWT(sessionCfg.Secret, sessionCfg.Expiry),
		session.NewStore(redisCache),
		userTokens,
		sessionCfg,
	)

	// 登录一个用户
	ctx := context.Background()
	users := repository.NewUserRepo(db)
	userID, err := users.Create(ctx, "a@example.com", "hash", "random")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	token := id.Token()
	if err := userTokens.Insert(ctx, userID, token); err != nil {
		t.Fatalf("failed to insert login token: %v", err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if err := sessions.SetUserSession(c, userID, token); err != nil {
		t.Fatalf("failed to set user session: %v", err)
	}

	// 中继服务
	aiCfg := &config.AIConfig{
		DefaultModel: "llama3.1",
		Providers:    map[string]config.ProviderConfig{"local": {BaseURL: backend.URL}},
		Models:       map[string]string{"llama3.1": "local"},
	}
	toolReg := tools.NewRegistry(nil)
	tools.RegisterBuiltins(toolReg)
	chatSvc := service.NewChatService(provider.NewRegistry(aiCfg), provider.NewClient(0), toolReg, repository.NewCacheRepo(db))

	site := &config.SiteConfig{Name: "Quince"}
	hdl := NewChatHandler(chatSvc, tools.NewCallbackRegistry(&config.ToolsConfig{}), sessions, site)

	engine := gin.New()
	engine.POST("/chat", hdl.Chat)
	engine.GET("/list", hdl.ListModels)
	engine.GET("/config", hdl.Config)

	return &chatTestEnv{engine: engine, cookies: w.Result().Cookies()}
}

func (e *chatTestEnv) do(method, path, body string, withSession bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withSession {
		for _, ck := range e.cookies {
			req.AddCookie(ck)
		}
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestChatEndpoint(t *testing.T) {
	chunk := `{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hi"}}]}`

	Convey("POST /chat", t, func() {
		env := newChatTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			fmt.Fprint(w, "data: [DONE]\n\n")
		})

		body := `{"model": "llama3.1", "messages": [{"role": "user", "content": "hi"}]}`

		Convey("未登录返回 401", func() {
			w := env.do(http.MethodPost, "/chat", body, false)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "You must be logged in to use the chat")
		})

		Convey("登录后返回 SSE 流，分片按 data: 帧下发", func() {
			w := env.do(http.MethodPost, "/chat", body, true)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "text/event-stream")
			So(w.Body.String(), ShouldEqual, "data: "+chunk+"\n\n")
		})

		Convey("未配置的模型在开流前返回 400", func() {
			w := env.do(http.MethodPost, "/chat", `{"model": "nope", "messages": [{"role": "user", "content": "hi"}]}`, true)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "Model is not configured: nope")
		})

		Convey("缺少必填字段返回 400", func() {
			w := env.do(http.MethodPost, "/chat", `{"model": "llama3.1"}`, true)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestListAndConfigEndpoints(t *testing.T) {
	Convey("GET /list 和 GET /config", t, func() {
		env := newChatTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

		Convey("/list 返回模型名", func() {
			w := env.do(http.MethodGet, "/list", "", false)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"model_names":["llama3.1"]`)
		})

		Convey("/config 返回前端配置", func() {
			w := env.do(http.MethodGet, "/config", "", false)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"default_model":"llama3.1"`)
			So(w.Body.String(), ShouldContainSubstring, `"use_mathjax":false`)
		})
	})
}
