package session

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/portal"
)

func newTestStore(maxUsers int, expire time.Duration) *MemoryStore {
	return NewMemoryStore(maxUsers, expire, zap.NewNop())
}

func passwordUser(identity string) *User {
	return &User{
		Identity:    identity,
		IsLoggedIn:  true,
		LoginTime:   "2026-08-29 10:00:00",
		LoginMethod: MethodPassword,
		Username:    "stu-" + identity,
		Password:    "pw",
	}
}

func authSession(id string) *portal.Session {
	return &portal.Session{
		Cookies:    map[string]string{"CASTGC": id},
		JSESSIONID: id,
		LastUpdate: time.Now(),
		Valid:      true,
	}
}

func TestPutUser_EvictsOldestWithAuth(t *testing.T) {
	s := newTestStore(2, time.Hour)

	s.PutUser(passwordUser("a"))
	s.SaveAuth("a", authSession("sess-a"))
	s.PutUser(passwordUser("b"))

	// a 最久未活动，放入 c 时应连同其认证会话一起被淘汰
	s.PutUser(passwordUser("c"))

	if s.GetUser("a") != nil {
		t.Error("oldest user not evicted")
	}
	if s.GetAuth("a") != nil {
		t.Error("evicted user's auth session not cascaded")
	}
	if s.GetUser("b") == nil || s.GetUser("c") == nil {
		t.Error("remaining users lost")
	}
}

func TestTouch_ChangesEvictionOrder(t *testing.T) {
	s := newTestStore(2, time.Hour)

	s.PutUser(passwordUser("a"))
	s.PutUser(passwordUser("b"))
	s.Touch("a") // b 变为最久未活动

	s.PutUser(passwordUser("c"))

	if s.GetUser("b") != nil {
		t.Error("touched user evicted instead of oldest")
	}
	if s.GetUser("a") == nil {
		t.Error("recently touched user evicted")
	}
}

func TestExpiry_SweepsInactiveUsers(t *testing.T) {
	s := newTestStore(5, 20*time.Millisecond)

	s.PutUser(passwordUser("a"))
	s.SaveAuth("a", authSession("sess-a"))
	time.Sleep(40 * time.Millisecond)

	if s.GetUser("a") != nil {
		t.Error("expired user still present")
	}
	if s.AnyLoggedIn() {
		t.Error("AnyLoggedIn true after expiry")
	}
}

func TestExpiry_SweepsOrphanAuthEntries(t *testing.T) {
	// 登录中途失败只留下认证会话的条目，同样要过期回收，
	// 不能永久占用用户名额把真实用户挤出去
	s := newTestStore(2, 20*time.Millisecond)

	s.SaveAuth("ghost1", authSession("g1"))
	s.SaveAuth("ghost2", authSession("g2"))
	time.Sleep(40 * time.Millisecond)

	s.PutUser(passwordUser("a"))
	s.PutUser(passwordUser("b"))

	if s.GetUser("a") == nil || s.GetUser("b") == nil {
		t.Error("stale auth-only entries squeezed out real users")
	}
	if s.GetAuth("ghost1") != nil || s.GetAuth("ghost2") != nil {
		t.Error("orphan auth entries survived the sweep")
	}
}

func TestPasswordIdentities(t *testing.T) {
	s := newTestStore(5, time.Hour)

	if ids := s.PasswordIdentities(); len(ids) != 0 {
		t.Errorf("empty store returned %v", ids)
	}

	s.PutUser(&User{Identity: "qr", IsLoggedIn: true, LoginMethod: MethodQRCode})
	s.PutUser(passwordUser("a"))
	s.PutUser(passwordUser("b"))
	s.Touch("a")

	ids := s.PasswordIdentities()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("PasswordIdentities = %v, want [a b]", ids)
	}
}

func TestGetAuth_InvalidatedSessionHidden(t *testing.T) {
	s := newTestStore(5, time.Hour)
	s.PutUser(passwordUser("a"))

	sess := authSession("sess-a")
	s.SaveAuth("a", sess)
	if s.GetAuth("a") == nil {
		t.Fatal("auth session not stored")
	}

	// 标记为失效的会话不对外可见
	dead := authSession("sess-dead")
	dead.Valid = false
	s.SaveAuth("a", dead)
	if s.GetAuth("a") != nil {
		t.Error("invalid session still returned")
	}

	s.SaveAuth("a", authSession("sess-a2"))
	s.InvalidateAuth("a")
	if s.GetAuth("a") != nil {
		t.Error("invalidated session still returned")
	}
	if s.GetUser("a") == nil {
		t.Error("InvalidateAuth removed the user session")
	}
}

func TestGetUser_ReturnsCopy(t *testing.T) {
	s := newTestStore(5, time.Hour)
	s.PutUser(passwordUser("a"))

	u := s.GetUser("a")
	u.Password = "mutated"

	if got := s.GetUser("a"); got.Password != "pw" {
		t.Errorf("stored user mutated through returned copy: %q", got.Password)
	}
}

func TestFindPasswordIdentity(t *testing.T) {
	s := newTestStore(5, time.Hour)

	if id, _ := s.FindPasswordIdentity(); id != "" {
		t.Errorf("empty store returned identity %q", id)
	}

	// 扫码用户没有凭据，不能用于自动查询
	s.PutUser(&User{Identity: "qr", IsLoggedIn: true, LoginMethod: MethodQRCode})
	if id, _ := s.FindPasswordIdentity(); id != "" {
		t.Errorf("qrcode-only store returned identity %q", id)
	}

	s.PutUser(passwordUser("a"))
	s.PutUser(passwordUser("b"))
	s.Touch("a")

	// 返回最近活动的密码用户
	id, u := s.FindPasswordIdentity()
	if id != "a" || u == nil || u.Username != "stu-a" {
		t.Errorf("FindPasswordIdentity = %q %+v, want a", id, u)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(5, time.Hour)
	s.PutUser(passwordUser("a"))
	s.SaveAuth("a", authSession("sess-a"))

	s.Clear()

	if s.GetUser("a") != nil || s.GetAuth("a") != nil || s.AnyLoggedIn() {
		t.Error("store not empty after Clear")
	}
}
