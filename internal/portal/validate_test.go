package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValid_NilSession(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if c.Valid(context.Background(), nil) {
		t.Error("nil session reported valid")
	}
	if c.Valid(context.Background(), &Session{}) {
		t.Error("empty session reported valid")
	}
	if hits != 0 {
		t.Errorf("probe made %d requests for empty sessions, want 0", hits)
	}
}

func TestValid_LiveSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>充值页面</title></head></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	s := &Session{
		Cookies:    map[string]string{"CASTGC": "tgt"},
		JSESSIONID: "EPAY123",
		LastUpdate: time.Now(),
		Valid:      true,
	}
	if !c.Valid(context.Background(), s) {
		t.Error("live session reported invalid")
	}
	if !s.Valid {
		t.Error("session flag flipped on successful probe")
	}
}

func TestValid_RedirectedToLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>统一身份认证登录</title></head></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	s := &Session{Cookies: map[string]string{"CASTGC": "stale"}, Valid: true}
	if c.Valid(context.Background(), s) {
		t.Error("stale session reported valid")
	}
	// 探测只读：失效由调用方经store丢弃记录，共享指针不被改写
	if !s.Valid {
		t.Error("failed probe mutated the shared session")
	}
}

func TestValid_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := newTestClient(t, base)
	s := &Session{Cookies: map[string]string{"CASTGC": "tgt"}, Valid: true}
	if c.Valid(context.Background(), s) {
		t.Error("session reported valid while portal unreachable")
	}
	if !s.Valid {
		t.Error("network failure mutated the shared session")
	}
}
