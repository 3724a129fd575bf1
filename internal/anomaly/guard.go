// Package anomaly 判断一次查询结果是否可疑、需要触发一次重查。
package anomaly

import (
	"fmt"
	"time"
)

// Guard 按既往记录检查新读数。阈值可配置：
// 0度读数一律可疑；回看窗口内减少量超过maxDrop在本域不可能，
// 多半是门户瞬时故障。
type Guard struct {
	window  time.Duration
	maxDrop float64
}

// NewGuard creates a guard with the given lookback window and
// maximum plausible drop.
func NewGuard(window time.Duration, maxDrop float64) *Guard {
	if window <= 0 {
		window = 30 * time.Minute
	}
	if maxDrop <= 0 {
		maxDrop = 1.0
	}
	return &Guard{window: window, maxDrop: maxDrop}
}

// Window returns the lookback window for locating the prior reading.
func (g *Guard) Window() time.Duration {
	return g.window
}

// ShouldRetry 规则按序判定，先命中者生效：
//  1. 读数为0 → 重查
//  2. 窗口内存在上一条记录且减少量 > maxDrop → 重查
//  3. 其余情况不重查
//
// prior 为回看窗口内最近一条读数，没有时传 nil。
func (g *Guard) ShouldRetry(current float64, prior *float64) bool {
	if current == 0 {
		return true
	}
	if prior != nil && *prior-current > g.maxDrop {
		return true
	}
	return false
}

// Flag 为历史记录做异常标注，规则与 ShouldRetry 一致。
// previous 是该记录之前最近的一条读数，gap 为两者的时间间隔。
func (g *Guard) Flag(current float64, previous *float64, gap time.Duration) (abnormal bool, reason string) {
	if current == 0 {
		return true, "查询结果为0度"
	}
	if previous != nil && gap <= g.window {
		if drop := *previous - current; drop > g.maxDrop {
			return true, fmt.Sprintf("半小时内减少%.2f度", drop)
		}
	}
	return false, ""
}

// RetryPolicy 异常重查策略：等待固定延迟后只重查一次，
// 新值与原值差异超过acceptDiff才替换，否则保留原值入库。
type RetryPolicy struct {
	Delay      time.Duration
	AcceptDiff float64
}

// Accept reports whether the retried value should replace the original.
func (p RetryPolicy) Accept(original, retried float64) bool {
	if retried <= 0 {
		return false
	}
	diff := retried - original
	if diff < 0 {
		diff = -diff
	}
	return diff > p.AcceptDiff
}
