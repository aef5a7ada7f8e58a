package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexcool68/ST-backend/internal/api/auth"
	"github.com/alexcool68/ST-backend/internal/api/middleware"
	"github.com/alexcool68/ST-backend/internal/config"
	"github.com/alexcool68/ST-backend/internal/model"
	"github.com/alexcool68/ST-backend/internal/pkg/jobs"
	"github.com/alexcool68/ST-backend/internal/pkg/notify"
	"github.com/alexcool68/ST-backend/internal/pkg/queue"
	"github.com/alexcool68/ST-backend/internal/pkg/token"
	"github.com/alexcool68/ST-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装 API 服务的依赖和路由。
//
// 它持有 Mongo 存储、Redis 客户端、会话编解码器、邮件队列
// 和定时任务注册表。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	rdb       *redis.Client
	router    *gin.Engine
	codec     *token.Codec
	auth      *auth.Handler
	mailQueue *queue.Queue
	jobs      *jobs.Registry

	users  UserDirectory
	tokens TokenCounter
}

// UserDirectory 是用户管理接口依赖的存储操作。
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, id string, firstName, lastName *string) (*model.User, error)
	DeleteByID(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	CountActivated(ctx context.Context) (int64, error)
}

// TokenCounter 统计任务需要的令牌账本操作。
type TokenCounter interface {
	CountOutstanding(ctx context.Context) (int64, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MongoDB 并建立索引
// 2. 连接 Redis
// 3. 装配认证服务、邮件队列与定时任务注册表
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	codec := token.NewCodec(cfg.Security.JWTSecret, cfg.App.SessionTTL)
	notifier := notify.NewEmailNotifier(&cfg.Email, logger)

	mailQueue := queue.NewQueue(logger, cfg.App.MailQueueWorkers, cfg.App.MailQueueCapacity)
	mailQueue.SetErrorHandler(func(err error, job queue.Job) {
		logger.Error("mail dispatch failed", slog.String("error", err.Error()))
	})

	forgotTTL := time.Duration(cfg.App.ForgotTokenTTL) * time.Second
	svc := auth.NewService(st.Users, st.Tokens, codec, forgotTTL, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		rdb:       rdb,
		router:    r,
		codec:     codec,
		auth:      auth.NewHandler(svc, mailQueue, notifier, forgotTTL, logger),
		mailQueue: mailQueue,
		jobs:      jobs.NewRegistry(logger),
		users:     st.Users,
		tokens:    st.Tokens,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动邮件队列和定时任务。
func (s *Server) Start(ctx context.Context) error {
	s.mailQueue.Start(ctx)

	if err := s.jobs.Register(statsJobName, s.cfg.App.StatsRule, func() {
		s.runStatsJob(context.Background())
	}); err != nil {
		return err
	}
	s.jobs.Start()
	return nil
}

// Close 停止后台组件并关闭数据库与缓存连接。
func (s *Server) Close(ctx context.Context) error {
	s.jobs.Stop()
	if err := s.mailQueue.ShutdownWithTimeout(10 * time.Second); err != nil {
		s.logger.Warn("mail queue shutdown", slog.String("error", err.Error()))
	}

	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	apiGroup := s.router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", s.auth.Register)
	authGroup.POST("/login", s.auth.Login)
	authGroup.POST("/forgot-password", s.auth.ForgotPassword)
	authGroup.GET("/confirm-email/:token", s.auth.ConfirmEmail)
	authGroup.GET("/reset-password/:token", s.auth.ResetPassword)
	authGroup.PATCH("/update-password",
		middleware.Authenticated(s.codec, s.users), s.auth.UpdatePassword)

	// 用户管理仅限管理员
	usersGroup := apiGroup.Group("/users")
	usersGroup.Use(middleware.Authenticated(s.codec, s.users))
	usersGroup.Use(middleware.RequireRoles(model.RoleAdmin))
	usersGroup.GET("", s.handleListUsers)
	usersGroup.GET("/me", s.handleCurrentUser)
	usersGroup.GET("/:id", s.handleGetUser)
	usersGroup.PATCH("/:id", s.handleUpdateUser)
	usersGroup.DELETE("/:id", s.handleDeleteUser)

	systemGroup := apiGroup.Group("/system")
	systemGroup.GET("/ping", s.handlePing)
	systemGroup.GET("/stats", s.handleStats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
