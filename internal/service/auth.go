package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ActivityRecorder 记录一次用户活动 (登录即活动)，*PresenceService 满足它
type ActivityRecorder interface {
	SetOnline(ctx context.Context, identity string, now time.Time) error
}

// AuthService 负责用户注册、登录和 token 签发。
type AuthService struct {
	userRepo  repository.UserRepository
	activity  ActivityRecorder
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

// NewAuthService 创建 AuthService 实例。
// jwtExpiryHours <= 0 时默认 24 小时。
func NewAuthService(userRepo repository.UserRepository, activity ActivityRecorder, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if activity == nil {
		panic("ActivityRecorder cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:  userRepo,
		activity:  activity,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
		now:       time.Now,
	}, nil
}

// Register 处理用户注册。新用户注册后即为在线状态。
func (s *AuthService) Register(ctx context.Context, username, password, email string, age int) (*domain.User, error) {
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "email": email})

	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	// 先查重，给出明确的业务错误 (邮箱优先)；并发注册仍由唯一索引兜底
	_, err := s.userRepo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		logCtx.Warn("Registration failed: Email already exists")
		return nil, ErrEmailTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		logCtx.WithError(err).Error("Database error during email check")
		return nil, ErrInternalServer
	}
	_, err = s.userRepo.FindByUsername(ctx, username)
	switch {
	case err == nil:
		logCtx.Warn("Registration failed: Username already exists")
		return nil, ErrUsernameTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		logCtx.WithError(err).Error("Database error during username check")
		return nil, ErrInternalServer
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	now := domain.MessageTime(s.now())
	user := &domain.User{
		Username:     username,
		Password:     hashedPassword,
		Email:        email,
		Age:          age,
		Online:       true,
		LastActivity: &now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: Username or email already exists (repo error)")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	// 返回副本，不改动交给仓库的对象
	out := *user
	out.Password = ""
	return &out, nil
}

// Login 处理用户登录，成功后刷新在线状态并返回 JWT。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.WithError(err).Warn("Login attempt failed: User not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: Error finding user")
		}
		return "", ErrAuthenticationFailed
	}
	if user == nil {
		logCtx.Warn("Login attempt failed: User not found (repo returned nil user without error)")
		return "", ErrAuthenticationFailed
	}

	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return "", ErrAuthenticationFailed
	}

	token, err := s.generateJWT(user.ID, user.Username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", ErrInternalServer
	}

	// 登录本身是一次活动；在线状态写入失败不影响登录
	if err := s.activity.SetOnline(ctx, user.Username, s.now()); err != nil {
		logCtx.WithError(err).Warn("Failed to mark user online after login")
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return token, nil
}

// --- 私有辅助函数 ---

// hashPassword 使用 bcrypt 对密码进行哈希处理
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 验证提供的密码是否与存储的哈希匹配
func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// generateJWT 签发包含 user_id 和 username 的 token
func (s *AuthService) generateJWT(userID uint, username string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      now.Add(s.jwtExpiry).Unix(),
		"iat":      now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
