package anomaly

import (
	"testing"
	"time"
)

func TestGuard_ShouldRetry(t *testing.T) {
	g := NewGuard(30*time.Minute, 1.0)
	prior := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		current float64
		prior   *float64
		want    bool
	}{
		{"零度读数一律重查", 0, nil, true},
		{"零度读数有历史也重查", 0, prior(50), true},
		{"降幅超过阈值", 48.5, prior(50), true},
		{"降幅等于阈值不重查", 49.0, prior(50), false},
		{"正常缓慢下降", 49.8, prior(50), false},
		{"充值后上涨", 60, prior(50), false},
		{"没有历史读数", 42, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.ShouldRetry(tt.current, tt.prior); got != tt.want {
				t.Errorf("ShouldRetry(%v, %v) = %v, want %v", tt.current, tt.prior, got, tt.want)
			}
		})
	}
}

func TestGuard_Flag(t *testing.T) {
	g := NewGuard(30*time.Minute, 1.0)
	prev := 50.0

	abnormal, reason := g.Flag(0, nil, 0)
	if !abnormal || reason != "查询结果为0度" {
		t.Errorf("Flag(0) = %v %q", abnormal, reason)
	}

	abnormal, reason = g.Flag(48.5, &prev, 10*time.Minute)
	if !abnormal || reason != "半小时内减少1.50度" {
		t.Errorf("Flag(48.5) = %v %q", abnormal, reason)
	}

	// 窗口外的大降幅不算异常
	abnormal, _ = g.Flag(48.5, &prev, time.Hour)
	if abnormal {
		t.Error("drop outside window flagged abnormal")
	}

	abnormal, _ = g.Flag(49.5, &prev, 10*time.Minute)
	if abnormal {
		t.Error("drop within threshold flagged abnormal")
	}
}

func TestRetryPolicy_Accept(t *testing.T) {
	p := RetryPolicy{Delay: 5 * time.Second, AcceptDiff: 0.1}

	if p.Accept(0, 49.8) != true {
		t.Error("materially different retry not accepted")
	}
	if p.Accept(50, 50.05) {
		t.Error("near-identical retry accepted")
	}
	if p.Accept(0, 0) {
		t.Error("zero retry accepted")
	}
	if p.Accept(50, -1) {
		t.Error("negative retry accepted")
	}
}

func TestNewGuard_Defaults(t *testing.T) {
	g := NewGuard(0, 0)
	if g.Window() != 30*time.Minute {
		t.Errorf("default window = %v", g.Window())
	}
	prior := 50.0
	if !g.ShouldRetry(48.5, &prior) {
		t.Error("default maxDrop not applied")
	}
}
