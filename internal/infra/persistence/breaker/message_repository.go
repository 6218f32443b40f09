// Package breaker 用熔断器包装存储层，后端不可用时快速失败，而不是在超时上堆积请求。
package breaker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"
)

// Settings 是熔断器配置
type Settings struct {
	Name             string
	MaxRequests      uint32        // 半开状态允许通过的请求数
	Interval         time.Duration // 闭合状态下统计清零的周期
	Timeout          time.Duration // 打开多久后进入半开
	FailureThreshold float64
	MinRequests      uint32
	// OnStateChange 可选，例如用于上报指标
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultSettings 返回消息存储使用的默认配置
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// MessageRepository 是带熔断的 repository.MessageRepository 装饰器
type MessageRepository struct {
	next repository.MessageRepository
	cb   *gobreaker.CircuitBreaker
}

// NewMessageRepository 包装 next
func NewMessageRepository(next repository.MessageRepository, st Settings) *MessageRepository {
	if next == nil {
		panic("MessageRepository cannot be nil for breaker")
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < st.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= st.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("Circuit breaker state changed")
			if st.OnStateChange != nil {
				st.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: isSuccessful,
	})
	return &MessageRepository{next: next, cb: cb}
}

// isSuccessful 调用方主动取消不算后端故障
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, repository.ErrNotFound)
}

// State 返回熔断器当前状态
func (r *MessageRepository) State() gobreaker.State {
	return r.cb.State()
}

// Append 经过熔断器写入消息
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.next.Append(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("breaker %s: %w", r.cb.Name(), err)
	}
	return err
}

// Between 熔断打开时直接返回错误，否则透传到下层。
// 历史查询是流式的，不计入熔断统计。
func (r *MessageRepository) Between(ctx context.Context, a, b string) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		if r.cb.State() == gobreaker.StateOpen {
			yield(domain.Message{}, fmt.Errorf("breaker %s: %w", r.cb.Name(), gobreaker.ErrOpenState))
			return
		}
		for msg, err := range r.next.Between(ctx, a, b) {
			if !yield(msg, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
