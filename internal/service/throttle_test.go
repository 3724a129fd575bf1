package service

import (
	"testing"
	"time"
)

func TestThrottle_Allow(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	if _, ok := th.Allow(); !ok {
		t.Fatal("first query rejected")
	}

	// 10秒后仍在窗口内，剩余20秒
	now = now.Add(10 * time.Second)
	remaining, ok := th.Allow()
	if ok {
		t.Fatal("query allowed inside throttle window")
	}
	if remaining != 20 {
		t.Errorf("remaining = %d, want 20", remaining)
	}

	// 窗口结束后放行
	now = now.Add(20 * time.Second)
	if _, ok := th.Allow(); !ok {
		t.Error("query rejected after window elapsed")
	}
}

func TestThrottle_StampsBeforeQuery(t *testing.T) {
	// 放行即占用窗口：紧随其后的并发查询必须被拒绝，
	// 不等第一个查询完成
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	if _, ok := th.Allow(); !ok {
		t.Fatal("first query rejected")
	}
	if _, ok := th.Allow(); ok {
		t.Error("concurrent query allowed before first one finished")
	}
}

func TestThrottle_RoundsRemainingUp(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	th.Allow()
	now = now.Add(29*time.Second + 500*time.Millisecond)
	remaining, ok := th.Allow()
	if ok {
		t.Fatal("query allowed 0.5s early")
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1 (rounded up)", remaining)
	}
}

func TestThrottle_DefaultInterval(t *testing.T) {
	th := NewThrottle(0)
	if th.interval != 30*time.Second {
		t.Errorf("default interval = %v", th.interval)
	}
}
