// Package jobs 提供基于 cron 表达式的命名定时任务注册表。
package jobs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Registry 管理一组命名的定时任务。
//
// 每个任务以唯一名字注册，可以单独取消。任务回调在 cron
// 自己的 goroutine 中执行，panic 会被捕获并记录，不影响其他任务。
type Registry struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewRegistry 创建任务注册表。标准五段 cron 表达式（分 时 日 月 周）。
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start 启动调度循环。重复调用无副作用。
func (r *Registry) Start() {
	r.cron.Start()
}

// Stop 停止触发新任务，并等待已经开始的任务执行完毕。
func (r *Registry) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Register 以给定名字和 cron 规则注册任务。
//
// 名字重复或规则非法时返回错误。
func (r *Registry) Register(name string, rule string, fn func()) error {
	if name == "" {
		return fmt.Errorf("job name is empty")
	}
	if fn == nil {
		return fmt.Errorf("job %q has no callback", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}

	id, err := r.cron.AddFunc(rule, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("scheduled job panicked",
					slog.String("job", name),
					slog.Any("panic", rec))
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}

	r.entries[name] = id
	r.logger.Info("scheduled job registered",
		slog.String("job", name),
		slog.String("rule", rule))
	return nil
}

// Cancel 取消名字对应的任务，不存在时返回 false。
func (r *Registry) Cancel(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.entries[name]
	if !ok {
		return false
	}
	r.cron.Remove(id)
	delete(r.entries, name)
	r.logger.Info("scheduled job cancelled", slog.String("job", name))
	return true
}

// Exists 判断名字对应的任务是否已注册。
func (r *Registry) Exists(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Names 返回当前注册的所有任务名，顺序不保证。
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
