package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
	"github.com/reeedirect/billing/internal/timeutil"
)

// fakeQuerier 按预设脚本响应探测，记录查询调用
type fakeQuerier struct {
	probeOK map[string]bool
	probed  []string
	queried []string
}

func (f *fakeQuerier) Probe(ctx context.Context, identity string) bool {
	f.probed = append(f.probed, identity)
	return f.probeOK[identity]
}

func (f *fakeQuerier) Query(ctx context.Context, identity string, isAuto bool) (*service.Result, error) {
	f.queried = append(f.queried, identity)
	return &service.Result{RemainingAmount: 42.0, QueryTime: timeutil.NowString()}, nil
}

func newAutoQueryScheduler(q Querier) (*Scheduler, session.Store) {
	store := session.NewMemoryStore(5, time.Hour, zap.NewNop())
	return New(q, nil, store, 14, zap.NewNop()), store
}

func putPasswordUser(store session.Store, identity string) {
	store.PutUser(&session.User{
		Identity:    identity,
		IsLoggedIn:  true,
		LoginMethod: session.MethodPassword,
		Username:    "stu-" + identity,
		Password:    "pw",
	})
}

func at(hour, min, sec int) time.Time {
	return time.Date(2026, 8, 29, hour, min, sec, 0, timeutil.Location())
}

func TestRunAutoQuery_SkipsWhenNoSessionValidates(t *testing.T) {
	// 密码用户在线但认证会话探测不过：清除其登录状态并跳过，
	// 定时路径不发起查询（查询会带着存储的凭据重新认证）
	q := &fakeQuerier{probeOK: map[string]bool{}}
	s, store := newAutoQueryScheduler(q)
	putPasswordUser(store, "1.2.3.4")

	s.runAutoQuery()

	if len(q.queried) != 0 {
		t.Errorf("query issued %d times without a validated session", len(q.queried))
	}
	if len(q.probed) != 1 || q.probed[0] != "1.2.3.4" {
		t.Errorf("probed = %v, want [1.2.3.4]", q.probed)
	}
	if store.GetUser("1.2.3.4") != nil {
		t.Error("login state kept after failed probe")
	}
}

func TestRunAutoQuery_PicksValidatedIdentity(t *testing.T) {
	// a 探测失败被清除，b 通过探测并承担本轮查询
	q := &fakeQuerier{probeOK: map[string]bool{"b": true}}
	s, store := newAutoQueryScheduler(q)
	putPasswordUser(store, "b")
	putPasswordUser(store, "a")
	store.Touch("a") // a 最近活动，先被探测

	s.runAutoQuery()

	if len(q.queried) != 1 || q.queried[0] != "b" {
		t.Errorf("queried = %v, want [b]", q.queried)
	}
	if store.GetUser("a") != nil {
		t.Error("failed identity not cleared")
	}
	if store.GetUser("b") == nil {
		t.Error("validated identity cleared")
	}
}

func TestRunAutoQuery_SkipsWithoutPasswordUser(t *testing.T) {
	q := &fakeQuerier{probeOK: map[string]bool{}}
	s, store := newAutoQueryScheduler(q)
	store.PutUser(&session.User{Identity: "qr", IsLoggedIn: true, LoginMethod: session.MethodQRCode})

	s.runAutoQuery()

	if len(q.probed) != 0 || len(q.queried) != 0 {
		t.Errorf("qrcode-only store triggered probe/query: %v %v", q.probed, q.queried)
	}
}

func TestNextAutoQueryTimes(t *testing.T) {
	got := NextAutoQueryTimes(at(10, 5, 0), 3)
	want := []time.Time{at(10, 30, 0), at(11, 0, 0), at(11, 30, 0)}
	if len(got) != len(want) {
		t.Fatalf("got %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("times[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNextHalfHour(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{at(10, 5, 12), at(10, 30, 0)},
		{at(10, 30, 0), at(11, 0, 0)},
		{at(10, 45, 59), at(11, 0, 0)},
		{at(23, 40, 0), time.Date(2026, 8, 30, 0, 0, 0, 0, timeutil.Location())},
		{at(10, 0, 0), at(10, 30, 0)},
	}
	for _, tt := range tests {
		if got := nextHalfHour(tt.now); !got.Equal(tt.want) {
			t.Errorf("nextHalfHour(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestNextClosing(t *testing.T) {
	if got := nextClosing(at(10, 0, 0)); !got.Equal(at(23, 59, 30)) {
		t.Errorf("nextClosing = %v, want same-day 23:59:30", got)
	}
	// 已过当天触发点则排到次日
	got := nextClosing(at(23, 59, 30))
	want := time.Date(2026, 8, 30, 23, 59, 30, 0, timeutil.Location())
	if !got.Equal(want) {
		t.Errorf("nextClosing = %v, want %v", got, want)
	}
}

func TestNextBackup(t *testing.T) {
	if got := nextBackup(at(1, 0, 0)); !got.Equal(at(2, 0, 0)) {
		t.Errorf("nextBackup = %v, want same-day 02:00", got)
	}
	got := nextBackup(at(3, 0, 0))
	want := time.Date(2026, 8, 30, 2, 0, 0, 0, timeutil.Location())
	if !got.Equal(want) {
		t.Errorf("nextBackup = %v, want %v", got, want)
	}
}
