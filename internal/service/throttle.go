package service

import (
	"sync"
	"time"
)

// Throttle 手动查询的全局节流：所有用户共享同一个最小间隔，
// 保护上游门户不被连续查询冲击。定时任务不经过该闸门。
type Throttle struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	now      func() time.Time
}

// NewThrottle creates a throttle with the given minimum interval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Throttle{interval: interval, now: time.Now}
}

// Allow 尝试占用一次查询窗口。
// 允许时立即记录本次时间（在网络请求发出之前），并发的
// 手动查询因此在该粒度上被串行化；拒绝时返回剩余等待秒数。
func (t *Throttle) Allow() (remainingSeconds int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := now.Sub(t.last)
	if elapsed < t.interval {
		remaining := t.interval - elapsed
		return int((remaining + time.Second - 1) / time.Second), false
	}
	t.last = now
	return 0, true
}
