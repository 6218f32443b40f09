package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	httpHandler "presence-chat/internal/handler/http"
	wsHandler "presence-chat/internal/handler/websocket"
	"presence-chat/internal/hub"
	natsnotify "presence-chat/internal/infra/notify/nats"
	"presence-chat/internal/infra/persistence/breaker"
	gormpersistence "presence-chat/internal/infra/persistence/gorm"
	"presence-chat/internal/infra/setup"
	redisstate "presence-chat/internal/infra/state/redis"
	"presence-chat/internal/metrics"
	"presence-chat/internal/middleware"
	"presence-chat/internal/service"
	"presence-chat/internal/tasks"
	"presence-chat/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	NATS        *nats.Conn
	Metrics     *metrics.Collector
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewLogger 按配置创建 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 各包使用 logrus 的全局 logger，保持同一格式
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s)", log.GetLevel().String())

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var natsConn *nats.Conn
	var notifier service.PresenceNotifier
	if cfg.NATSURL != "" {
		natsConn, err = natsnotify.Connect(cfg.NATSURL, "presence-chat")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		notifier = natsnotify.NewPresencePublisher(natsConn, natsnotify.DefaultSubject)
		log.WithField("url", cfg.NATSURL).Info("Presence events will be published to NATS")
	}

	collector := metrics.NewCollector("chat")
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	presenceRepo := gormpersistence.NewGormPresenceRepository(db)
	breakerSettings := breaker.DefaultSettings("message_store")
	breakerSettings.OnStateChange = func(name string, _, to gobreaker.State) {
		collector.SetBreakerState(name, int(to))
	}
	messageRepo := breaker.NewMessageRepository(gormpersistence.NewGormMessageRepository(db), breakerSettings)
	limiter := redisstate.NewRateLimiter(redisClient, cfg.KeyPrefix)

	// 5. 初始化 Services
	presenceService := service.NewPresenceService(presenceRepo, notifier, service.PresenceOptions{
		IdleThreshold: cfg.IdleThreshold,
		StoreTimeout:  cfg.StoreTimeout,
	})
	messageLog := service.NewMessageLog(messageRepo, cfg.StoreTimeout)
	authService, err := service.NewAuthService(userRepo, presenceService, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(presenceService, messageLog, hub.Options{
		Metrics:    collector,
		Limiter:    limiter,
		SendLimit:  cfg.MessageRateLimit,
		SendWindow: cfg.MessageRateWindow,
	})

	// 7. 初始化 Handlers
	authHandler := httpHandler.NewAuthHandler(authService)
	chatHandler := httpHandler.NewChatHandler(presenceService, messageLog)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, cfg.AllowedOrigin)

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, presenceService, collector, log)

	// 9. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log, collector))
	router.Use(CORSMiddleware(cfg.AllowedOrigin))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}
	chatRoutes := api.Group("").Use(middleware.Auth(cfg.JWTSecret))
	{
		chatRoutes.GET("/online-users", chatHandler.OnlineUsers)
		chatRoutes.GET("/chat/history", chatHandler.History)
	}
	router.GET("/ws", middleware.Auth(cfg.JWTSecret), websocketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(collector.Handler()))
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		NATS:           natsConn,
		Metrics:        collector,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册在线状态清扫的周期任务
func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{Location: time.UTC})

	interval := a.Config.SweepInterval
	schedule := "@every " + interval.String()
	entryID, err := scheduler.Register(schedule, tasks.NewPresenceSweepTask(interval))
	if err != nil {
		a.Log.Errorf("Could not register presence sweep task: %v", err)
		return
	}
	a.Log.Infof("Presence sweep task registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	a.scheduler = scheduler
	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
		a.Log.Info("Asynq scheduler stopped.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收新请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭所有 WebSocket 连接
	if a.Hub != nil {
		a.Hub.Shutdown()
	}

	// 3. 停止周期任务和 Worker
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭外部连接
	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			a.Log.Errorf("Error draining NATS connection: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			} else {
				a.Log.Info("Database connection closed.")
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 允许配置的前端来源跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志，并上报请求指标
func LoggerMiddleware(log *logrus.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		collector.ObserveHTTP(c.Request.Method, route, statusCode, latency)

		// 查询参数里可能带 token，日志只记录路径
		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
