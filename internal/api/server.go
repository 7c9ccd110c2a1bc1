package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/api/auth"
	"github.com/fatxioken06/Culinary-Canvas/internal/api/middleware"
	"github.com/fatxioken06/Culinary-Canvas/internal/api/sweeper"
	"github.com/fatxioken06/Culinary-Canvas/internal/config"
	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/notify"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/queue"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/ratelimit"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/verifycode"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、后台邮件队列、草稿发布扫描器
// 以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	sweep     *sweeper.Sweeper
	mailQueue *queue.Queue
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（验证码与频控）
// 3. 初始化后台邮件队列与草稿发布扫描器
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Category{}, &model.Recipe{}, &model.Rating{}, &model.Comment{}); err != nil {
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

	metrics.InitMetrics()

	mailer := notify.NewEmailNotifier(&cfg.Email, cfg.App.VerifyCodeTTL, logger)
	mailQueue := queue.New(logger, cfg.App.MailWorkers, cfg.App.MailQueueCapacity)

	codes := verifycode.NewLedger(rdb, cfg.App.VerifyCodeTTL)
	cooldown := ratelimit.NewCooldown(rdb, "culinary_canvas:resend:", cfg.App.ResendCooldown)

	sweep := sweeper.New(db, logger, cfg.App.SweepInterval, cfg.App.DraftMaxAge)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(db, cfg.Security.JWTSecret, codes, cooldown, mailer, mailQueue, logger),
		sweep:     sweep,
		mailQueue: mailQueue,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartBackground 启动后台组件：邮件 worker 池与草稿发布扫描。
func (s *Server) StartBackground(ctx context.Context) {
	s.mailQueue.Start(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in draft sweeper", slog.Any("panic", r))
			}
		}()
		s.sweep.Run(ctx)
	}()
}

// Close 关闭数据库与 Redis 连接，并等待邮件队列清空。
func (s *Server) Close() error {
	var firstErr error
	if s.mailQueue != nil {
		if err := s.mailQueue.ShutdownWithTimeout(10 * time.Second); err != nil {
			firstErr = err
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	secret := s.cfg.Security.JWTSecret

	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/login", s.auth.Login)
	s.router.POST("/verify", s.auth.VerifyEmail)
	s.router.POST("/resend", s.auth.ResendCode)

	// 读接口对匿名开放；带 token 时解析身份以支持草稿可见性与 user_rating
	public := s.router.Group("/")
	public.Use(middleware.AuthOptional(secret))
	public.GET("/recipes", s.handleListRecipes)
	public.GET("/recipes/featured", s.handleFeaturedRecipes)
	public.GET("/recipes/popular", s.handlePopularRecipes)
	public.GET("/recipes/:slug", s.handleGetRecipe)
	public.GET("/categories", s.handleListCategories)
	public.GET("/categories/popular", s.handlePopularCategories)
	public.GET("/categories/:id", s.handleGetCategory)
	public.GET("/categories/:id/recipes", s.handleCategoryRecipes)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthRequired(secret))
	authed.GET("/me", s.auth.Profile)
	authed.PATCH("/me", s.auth.UpdateProfile)
	authed.POST("/me/password", s.auth.ChangePassword)
	authed.GET("/me/recipes", s.handleMyRecipes)
	authed.GET("/me/stats", s.handleMyStats)

	authed.POST("/recipes", s.handleCreateRecipe)
	authed.PATCH("/recipes/:slug", s.handleUpdateRecipe)
	authed.DELETE("/recipes/:slug", s.handleDeleteRecipe)

	authed.GET("/recipes/:slug/ratings", s.handleListRatings)
	authed.POST("/recipes/:slug/ratings", s.handleUpsertRating)
	authed.DELETE("/recipes/:slug/ratings", s.handleDeleteRating)

	authed.GET("/recipes/:slug/comments", s.handleListComments)
	authed.POST("/recipes/:slug/comments", s.handleCreateComment)
	authed.GET("/comments/:id", s.handleGetComment)
	authed.PATCH("/comments/:id", s.handleUpdateComment)
	authed.DELETE("/comments/:id", s.handleDeleteComment)

	authed.POST("/categories", s.handleCreateCategory)
	authed.PATCH("/categories/:id", s.handleUpdateCategory)
	authed.DELETE("/categories/:id", s.handleDeleteCategory)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseQueryInt 解析查询参数中的整数值，非法时返回默认值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

func getUserID(c *gin.Context) uint {
	return c.GetUint("userID")
}

func isStaff(c *gin.Context) bool {
	return c.GetString("role") == model.RoleStaff
}
