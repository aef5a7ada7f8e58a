package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Job 表示一个可执行的异步任务（如发送一封邮件）。
type Job func(ctx context.Context) error

// ErrorHandler 任务失败时的回调。
type ErrorHandler func(err error, job Job)

// Queue 提供带固定 worker 池的内存任务队列。
//
// 控制器把"发完即忘"的工作（邮件发送）丢进队列后立即返回，
// 失败由错误回调记录，不会传播回请求。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg     sync.WaitGroup
	closed atomic.Bool

	stats queueStats
}

// queueStats 队列内部统计（atomic 类型）。
type queueStats struct {
	Enqueued  atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Dropped   atomic.Int64
	Panics    atomic.Int64
}

// Stats 统计信息快照（普通值类型，可安全拷贝）。
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Panics    int64
}

// NewQueue 创建任务队列。workers 与 capacity 至少为 1。
func NewQueue(logger *slog.Logger, workers int, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置任务失败回调。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker 池，直到 ctx 被取消或调用 Shutdown。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("queue worker stopped", slog.Int("worker_id", id))
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if job != nil {
				q.run(ctx, job, id)
			}
		}
	}
}

// run 执行单个任务，带 panic 恢复与错误回调。
func (q *Queue) run(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.stats.Panics.Add(1)
			q.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := job(ctx); err != nil {
		q.stats.Failed.Add(1)
		if q.errorHandler != nil {
			q.errorHandler(err, job)
		}
		return
	}
	q.stats.Succeeded.Add(1)
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false。
func (q *Queue) Enqueue(job Job) bool {
	if job == nil || q.closed.Load() {
		return false
	}

	select {
	case q.jobs <- job:
		q.stats.Enqueued.Add(1)
		return true
	default:
		q.stats.Dropped.Add(1)
		q.logger.Warn("queue full, drop job",
			slog.Int("capacity", cap(q.jobs)),
			slog.Int("pending", len(q.jobs)))
		return false
	}
}

// Shutdown 优雅关闭：拒绝新任务，等待存量任务执行完毕。
func (q *Queue) Shutdown() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.jobs)
		q.wg.Wait()
		q.logger.Info("queue shutdown completed")
	}
}

// ShutdownWithTimeout 带超时的优雅关闭。
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("queue already closed")
	}
	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue shutdown completed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Snapshot 获取统计信息快照。
func (q *Queue) Snapshot() Stats {
	return Stats{
		Enqueued:  q.stats.Enqueued.Load(),
		Succeeded: q.stats.Succeeded.Load(),
		Failed:    q.stats.Failed.Load(),
		Dropped:   q.stats.Dropped.Load(),
		Panics:    q.stats.Panics.Load(),
	}
}

// Len 返回当前待处理任务数。
func (q *Queue) Len() int {
	return len(q.jobs)
}
