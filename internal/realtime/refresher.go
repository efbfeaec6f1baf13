package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher 记录集变化通知的节流器。
// 日志消费侧每落一条记录都会触发一次, 直接透传会把客户端打爆;
// 这里把触发合并成至多每 minInterval 一次的通知, 间隔内的触发
// 只保证之后还会有一次通知, 不保证一比一送达。
type Refresher struct {
	minInterval time.Duration
	notify      func()
	logger      *logrus.Logger

	mu        sync.Mutex
	pending   bool
	lastFired time.Time
	kick      chan struct{}
}

// NewRefresher 创建节流器; notify 在通知时点被调用
func NewRefresher(minInterval time.Duration, notify func(), logger *logrus.Logger) *Refresher {
	return &Refresher{
		minInterval: minInterval,
		notify:      notify,
		logger:      logger,
		kick:        make(chan struct{}, 1),
	}
}

// Trigger 标记有变化待通知, 可从任意 goroutine 高频调用
func (r *Refresher) Trigger() {
	r.mu.Lock()
	r.pending = true
	r.mu.Unlock()

	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run 通知循环, 直到 ctx 取消
func (r *Refresher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
		}

		r.mu.Lock()
		wait := r.minInterval - time.Since(r.lastFired)
		r.mu.Unlock()

		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		r.mu.Lock()
		if !r.pending {
			r.mu.Unlock()
			continue
		}
		r.pending = false
		r.lastFired = time.Now()
		r.mu.Unlock()

		r.notify()
	}
}
