package tasks

import (
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypePresenceSweep = "presence:sweep" // 在线状态清扫
)

// QueuePresence 是清扫任务使用的队列
const QueuePresence = "critical"

// NewPresenceSweepTask 创建一个清扫任务。
// 同一周期内只允许一个清扫任务入队，多实例部署时不会重复清扫。
// 清扫失败不重试，下一个周期会重新检查所有在线用户。
func NewPresenceSweepTask(interval time.Duration) *asynq.Task {
	opts := []asynq.Option{
		asynq.Queue(QueuePresence),
		asynq.MaxRetry(0),
	}
	if interval > 0 {
		opts = append(opts, asynq.Timeout(interval), asynq.Unique(interval))
	}
	return asynq.NewTask(TypePresenceSweep, nil, opts...)
}
