package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"quince/internal/ai"
	"quince/internal/config"
	"quince/internal/handler"
	"quince/internal/pkg/cache"
	"quince/internal/pkg/jwt"
	"quince/internal/pkg/mailer"
	"quince/internal/pkg/sqlite"
	"quince/internal/provider"
	"quince/internal/repository"
	"quince/internal/server/middleware"
	"quince/internal/service"
	"quince/internal/session"
	"quince/internal/tools"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	db     *sqlite.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例并完成依赖装配
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// SQLite
	db, err := sqlite.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis（会话变量存储）
	redisCache, err := cache.NewRedisCache(&cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		db:     db,
		redis:  redisCache,
	}

	if err := srv.setupRoutes(); err != nil {
		srv.closeResources()
		return nil, err
	}
	return srv, nil
}

// setupRoutes 装配依赖并注册路由
func (s *Server) setupRoutes() error {
	cfg := s.cfg

	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 仓库
	userRepo := repository.NewUserRepo(s.db)
	tokenRepo := repository.NewTokenRepo(s.db)
	userTokenRepo := repository.NewUserTokenRepo(s.db)
	cacheRepo := repository.NewCacheRepo(s.db)
	dialogRepo := repository.NewDialogRepo(s.db)

	// 会话
	jwtUtil := jwt.NewJWT(cfg.Session.Secret, cfg.Session.Expiry)
	sessionStore := session.NewStore(s.redis)
	sessions := session.NewManager(jwtUtil, sessionStore, userTokenRepo, &cfg.Session)

	// AI
	providers := provider.NewRegistry(&cfg.AI)
	providerClient := provider.NewClient(cfg.AI.StreamTimeout)
	toolRegistry := tools.NewRegistry(cfg.AI.ToolModels)
	tools.RegisterBuiltins(toolRegistry)
	callbacks := tools.NewCallbackRegistry(&cfg.Tools)

	titler, err := ai.NewTitler(&cfg.AI.Title)
	if err != nil {
		return fmt.Errorf("failed to create title generator: %w", err)
	}

	// 服务
	chatSvc := service.NewChatService(providers, providerClient, toolRegistry, cacheRepo)
	authSvc := service.NewAuthService(userRepo, tokenRepo, userTokenRepo, cacheRepo, mailer.New(&cfg.SMTP), &cfg.Site)
	dialogSvc := service.NewDialogService(dialogRepo, titler)

	// 处理器
	chatHdl := handler.NewChatHandler(chatSvc, callbacks, sessions, &cfg.Site)
	dialogHdl := handler.NewDialogHandler(dialogSvc, sessions)
	userHdl := handler.NewUserHandler(authSvc, sessions)
	healthHdl := handler.NewHealthHandler(s.db, s.redis)

	// 健康检查
	s.engine.GET("/health", healthHdl.Health)
	s.engine.GET("/ready", healthHdl.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 前端静态文件
	if cfg.Server.StaticDir != "" {
		s.engine.Static("/static", cfg.Server.StaticDir)
	}

	// 对话中继
	s.engine.POST("/chat", chatHdl.Chat)
	s.engine.GET("/list", chatHdl.ListModels)
	s.engine.GET("/config", chatHdl.Config)
	s.engine.POST("/tools/:tool", chatHdl.ToolCallback)

	// 对话历史
	s.engine.POST("/chat/create-dialog", dialogHdl.CreateDialog)
	s.engine.POST("/chat/create-message/:dialog_id", dialogHdl.CreateMessage)
	s.engine.GET("/chat/get-dialog/:dialog_id", dialogHdl.GetDialog)
	s.engine.GET("/chat/get-messages/:dialog_id", dialogHdl.GetMessages)
	s.engine.POST("/chat/delete-dialog/:dialog_id", dialogHdl.DeleteDialog)

	// 用户账户
	s.engine.GET("/user/captcha", userHdl.Captcha)
	s.engine.POST("/user/signup", userHdl.Signup)
	s.engine.POST("/user/verify", userHdl.Verify)
	s.engine.POST("/user/login", userHdl.Login)
	s.engine.GET("/user/logout", userHdl.Logout)
	s.engine.POST("/user/reset-password", userHdl.ResetPassword)
	s.engine.POST("/user/new-password", userHdl.NewPassword)
	s.engine.GET("/user/profile", userHdl.GetProfile)
	s.engine.POST("/user/profile", userHdl.UpdateProfile)
	s.engine.GET("/user/is-logged-in", userHdl.IsLoggedIn)
	s.engine.GET("/user/dialogs", dialogHdl.ListDialogs)

	return nil
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
		s.closeResources()
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		s.closeResources()
		return err
	}
}

func (s *Server) closeResources() {
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
	if err := s.redis.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close Redis connection")
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
