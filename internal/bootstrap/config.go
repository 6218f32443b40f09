package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string // development/production
	KeyPrefix       string // Redis key 前缀
	RateLimitMax    int
	RateLimitWindow time.Duration

	IdleThreshold     time.Duration // 超过该时长无活动视为离线
	SweepInterval     time.Duration
	StoreTimeout      time.Duration // 单次存储调用的超时
	NATSURL           string        // 为空时不发布在线状态事件
	MessageRateLimit  int           // 每个身份每秒最多发送的消息数，0 表示不限
	MessageRateWindow time.Duration
	AllowedOrigin     string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            envOr("DB_HOST", "127.0.0.1"),
		DBPort:            envOr("DB_PORT", "3306"),
		DBName:            envOr("DB_NAME", "chat_db"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ServerPort:        envOr("SERVER_PORT", "8080"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		AppEnv:            envOr("APP_ENV", "development"),
		KeyPrefix:         envOr("REDIS_KEY_PREFIX", "chat:"),
		NATSURL:           os.Getenv("NATS_URL"),
		AllowedOrigin:     envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RateLimitMax:      100,
		RateLimitWindow:   time.Second,
		MessageRateWindow: time.Second,
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	var err error
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiryHours, err = intEnv("JWT_EXPIRY_HOURS", 24); err != nil {
		return nil, err
	}
	if cfg.MessageRateLimit, err = intEnv("MESSAGE_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.IdleThreshold, err = durationEnv("PRESENCE_IDLE_THRESHOLD", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("PRESENCE_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("environment variable %s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
