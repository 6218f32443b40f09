package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence-chat/internal/repository"
)

var (
	ErrUnknownUser          = errors.New("unknown user")
	ErrPeerUnavailable      = errors.New("peer unavailable")
	ErrPersistence          = errors.New("persistence error")
	ErrStoreTimeout         = errors.New("store timeout")
	ErrTransportClosed      = errors.New("transport closed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInternalServer       = errors.New("internal server error")
	ErrInvalidFrame         = errors.New("invalid frame")
	ErrRateLimited          = errors.New("rate limit exceeded")
)

// 注册冲突的具体原因，均可用 errors.Is 匹配 ErrRegistrationFailed
var (
	ErrEmailTaken    = fmt.Errorf("%w: email already exists", ErrRegistrationFailed)
	ErrUsernameTaken = fmt.Errorf("%w: username already exists", ErrRegistrationFailed)
)

// mapRepoError 将仓库层错误映射到服务层错误，保留原始错误链。
// op 用于错误上下文，例如 "presence.get"。
func mapRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrUnknownUser)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}
}

// callStore 在带超时的 context 中执行一次存储调用，并映射其错误。
func callStore(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return mapRepoError(op, fn(ctx))
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(cctx)
	// 有些驱动超时后只返回连接错误，这里补上 DeadlineExceeded
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return mapRepoError(op, err)
}
