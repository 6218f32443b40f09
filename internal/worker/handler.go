package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/metrics"
	"presence-chat/internal/service"
)

// Sweeper 执行一次在线状态清扫
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepReport, error)
}

// PresenceSweepHandler 处理在线状态清扫任务
type PresenceSweepHandler struct {
	sweeper Sweeper
	metrics *metrics.Collector
	now     func() time.Time
}

// NewPresenceSweepHandler 创建 Handler 实例，collector 可以为 nil
func NewPresenceSweepHandler(sweeper Sweeper, collector *metrics.Collector) *PresenceSweepHandler {
	return &PresenceSweepHandler{sweeper: sweeper, metrics: collector, now: time.Now}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})

	report, err := h.sweeper.Sweep(ctx, h.now())
	if err != nil {
		logCtx.WithError(err).Error("Presence sweep failed")
		h.metrics.SweepFinished(0, 1)
		return err
	}
	h.metrics.SweepFinished(report.Demoted, report.Failed)

	logCtx.WithFields(logrus.Fields{
		"checked": report.Checked,
		"demoted": report.Demoted,
		"failed":  report.Failed,
	}).Info("Presence sweep finished")
	return nil
}
