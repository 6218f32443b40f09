package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/metrics"
	"presence-chat/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server  *asynq.Server
	log     *logrus.Entry
	sweeper Sweeper
	metrics *metrics.Collector
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, sweeper Sweeper, collector *metrics.Collector, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				tasks.QueuePresence: 6,
				"default":           3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:  server,
		log:     logEntry,
		sweeper: sweeper,
		metrics: collector,
	}
}

// Mux 返回注册了所有任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypePresenceSweep, NewPresenceSweepHandler(ws.sweeper, ws.metrics))
	return mux
}

// Start 运行 Worker Server，阻塞直到关闭。应在单独的 goroutine 中调用
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		}
	}
	ws.log.Info("Worker server stopped.")
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
