package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Job 后台派发任务
type Job func(ctx context.Context)

// Worker 后台派发工作器（fire-and-forget）
// 延迟敏感路径（如 thrown-away / fake-shutdown 上报）把派发任务提交到这里，
// 设备侧的确认响应不等待监护人通知；任务失败只记日志，绝不丢失得无声无息
type Worker struct {
	queue  chan Job
	logger *zap.Logger
}

// NewWorker 创建后台派发工作器
func NewWorker(queueSize int, logger *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		queue:  make(chan Job, queueSize),
		logger: logger,
	}
}

// Enqueue 提交任务（非阻塞）
// 队列满时任务被丢弃并记录错误日志——这是唯一允许丢任务的情况
func (w *Worker) Enqueue(job Job) error {
	select {
	case w.queue <- job:
		return nil
	default:
		w.logger.Error("Dispatch queue full, job dropped")
		return fmt.Errorf("dispatch queue full")
	}
}

// Start 启动工作循环（阻塞直到上下文取消）
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Dispatch worker started",
		zap.Int("queue_size", cap(w.queue)),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Dispatch worker stopped")
			return
		case job := <-w.queue:
			w.run(ctx, job)
		}
	}
}

// run 执行单个任务，带独立的错误边界（只记日志）
func (w *Worker) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic in dispatch job",
				zap.Any("panic", r),
			)
		}
	}()

	job(ctx)
}

// Pending 当前排队的任务数（用于观测）
func (w *Worker) Pending() int {
	return len(w.queue)
}
