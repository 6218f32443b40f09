package service

import (
	"context"
	"sync/atomic"
	"time"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultIdleThreshold    = 5 * time.Minute
	DefaultStoreTimeout     = 5 * time.Second
	defaultSweepParallelism = 8
)

// PresenceNotifier 接收上线/下线的状态变化事件。
type PresenceNotifier interface {
	PublishPresence(ctx context.Context, change domain.PresenceChange) error
}

type nopNotifier struct{}

func (nopNotifier) PublishPresence(context.Context, domain.PresenceChange) error { return nil }

// PresenceOptions 配置 PresenceService，零值字段使用默认值。
type PresenceOptions struct {
	IdleThreshold    time.Duration
	StoreTimeout     time.Duration
	SweepParallelism int
}

// SweepReport 汇总一次清扫的结果。
type SweepReport struct {
	Checked int
	Demoted int
	Failed  int
}

// PresenceService 维护用户的在线状态。
// 同一 identity 的写操作通过 keyLock 串行化；清扫降级在存储层再做一次条件更新，
// 不会覆盖其他实例刚写入的活跃时间。
type PresenceService struct {
	repo        repository.PresenceRepository
	notifier    PresenceNotifier
	locks       *keyLock
	threshold   time.Duration
	timeout     time.Duration
	parallelism int
}

// NewPresenceService 创建 PresenceService 实例。notifier 可以为 nil。
func NewPresenceService(repo repository.PresenceRepository, notifier PresenceNotifier, opts PresenceOptions) *PresenceService {
	if repo == nil {
		panic("PresenceRepository cannot be nil for PresenceService")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = DefaultIdleThreshold
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.SweepParallelism <= 0 {
		opts.SweepParallelism = defaultSweepParallelism
	}
	return &PresenceService{
		repo:        repo,
		notifier:    notifier,
		locks:       newKeyLock(64),
		threshold:   opts.IdleThreshold,
		timeout:     opts.StoreTimeout,
		parallelism: opts.SweepParallelism,
	}
}

// IdleThreshold 返回判定为不活跃的时长。
func (s *PresenceService) IdleThreshold() time.Duration { return s.threshold }

// Get 返回用户的在线状态，用户不存在时返回 ErrUnknownUser。
func (s *PresenceService) Get(ctx context.Context, identity string) (*domain.UserPresence, error) {
	var p *domain.UserPresence
	err := callStore(ctx, s.timeout, "presence.get", func(ctx context.Context) error {
		var err error
		p, err = s.repo.Get(ctx, identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetOnline 将用户标记为在线并刷新 last_activity，可重复调用。
func (s *PresenceService) SetOnline(ctx context.Context, identity string, now time.Time) error {
	unlock := s.locks.Lock(identity)
	defer unlock()

	prev, err := s.Get(ctx, identity)
	if err != nil {
		return err
	}
	err = callStore(ctx, s.timeout, "presence.set_online", func(ctx context.Context) error {
		return s.repo.SetOnline(ctx, identity, now)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"identity": identity, "operation": "set_online"}).WithError(err).Warn("Failed to update presence")
		return err
	}
	if !prev.Online {
		s.publish(ctx, domain.PresenceChange{Identity: identity, Online: true, At: now})
	}
	return nil
}

// SetOffline 将用户标记为离线，last_activity 保持不变。
func (s *PresenceService) SetOffline(ctx context.Context, identity string) error {
	unlock := s.locks.Lock(identity)
	defer unlock()

	prev, err := s.Get(ctx, identity)
	if err != nil {
		return err
	}
	err = callStore(ctx, s.timeout, "presence.set_offline", func(ctx context.Context) error {
		return s.repo.SetOffline(ctx, identity)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"identity": identity, "operation": "set_offline"}).WithError(err).Warn("Failed to update presence")
		return err
	}
	if prev.Online {
		s.publish(ctx, domain.PresenceChange{Identity: identity, Online: false, At: time.Now()})
	}
	return nil
}

// ListOnline 返回所有在线用户，按 identity 排序，不含任何凭据字段。
func (s *PresenceService) ListOnline(ctx context.Context) ([]domain.UserPresence, error) {
	var users []domain.UserPresence
	err := callStore(ctx, s.timeout, "presence.list_online", func(ctx context.Context) error {
		var err error
		users, err = s.repo.ListOnline(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Sweep 把 last_activity 早于 now-threshold 的在线用户降级为离线。
// 它从不写 last_activity，也从不把用户设为在线。单个用户失败只记日志，不影响其他用户。
func (s *PresenceService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	cutoff := now.Add(-s.threshold)
	logCtx := logrus.WithFields(logrus.Fields{"operation": "sweep", "cutoff": cutoff})

	var candidates []domain.UserPresence
	err := callStore(ctx, s.timeout, "presence.list_idle", func(ctx context.Context) error {
		var err error
		candidates, err = s.repo.ListIdleOnline(ctx, cutoff)
		return err
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to list idle users")
		return SweepReport{}, err
	}

	var demoted, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, c := range candidates {
		g.Go(func() error {
			ok, err := s.demoteIfIdle(ctx, c.Identity, cutoff, now)
			if err != nil {
				failed.Add(1)
				logCtx.WithField("identity", c.Identity).WithError(err).Warn("Failed to demote idle user")
				return nil
			}
			if ok {
				demoted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{Checked: len(candidates), Demoted: int(demoted.Load()), Failed: int(failed.Load())}
	logCtx.WithFields(logrus.Fields{"checked": report.Checked, "demoted": report.Demoted, "failed": report.Failed}).Info("Presence sweep finished")
	return report, nil
}

func (s *PresenceService) demoteIfIdle(ctx context.Context, identity string, cutoff, now time.Time) (bool, error) {
	unlock := s.locks.Lock(identity)
	defer unlock()

	var demoted bool
	err := callStore(ctx, s.timeout, "presence.demote", func(ctx context.Context) error {
		var err error
		demoted, err = s.repo.DemoteIfIdle(ctx, identity, cutoff)
		return err
	})
	if err != nil {
		return false, err
	}
	if demoted {
		s.publish(ctx, domain.PresenceChange{Identity: identity, Online: false, At: now})
	}
	return demoted, nil
}

func (s *PresenceService) publish(ctx context.Context, change domain.PresenceChange) {
	if err := s.notifier.PublishPresence(ctx, change); err != nil {
		logrus.WithFields(logrus.Fields{"identity": change.Identity, "online": change.Online}).WithError(err).Warn("Failed to publish presence change")
	}
}
