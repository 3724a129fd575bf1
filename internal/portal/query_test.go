package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func querySession() *Session {
	return &Session{
		Cookies:    map[string]string{"CASTGC": "tgt"},
		JSESSIONID: "EPAY123",
		Valid:      true,
	}
}

func TestQueryBalance_Success(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = map[string]string{
			"sysid":   r.PostForm.Get("sysid"),
			"roomNo":  r.PostForm.Get("roomNo"),
			"elcarea": r.PostForm.Get("elcarea"),
			"elcbuis": r.PostForm.Get("elcbuis"),
		}
		fmt.Fprint(w, `{"retcode":0,"retmsg":"成功","restElecDegree":"123.45"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	amount, err := c.QueryBalance(context.Background(), querySession())
	if err != nil {
		t.Fatalf("QueryBalance: %v", err)
	}
	if amount != 123.45 {
		t.Errorf("amount = %v, want 123.45", amount)
	}
	want := map[string]string{"sysid": "2", "roomNo": "4791", "elcarea": "2", "elcbuis": "4708"}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, gotForm[k], v)
		}
	}
}

func TestQueryBalance_NumericDegree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retcode":"0","restElecDegree":88.5}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	amount, err := c.QueryBalance(context.Background(), querySession())
	if err != nil {
		t.Fatalf("QueryBalance: %v", err)
	}
	if amount != 88.5 {
		t.Errorf("amount = %v, want 88.5", amount)
	}
}

func TestQueryBalance_SessionExpiredMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retcode":1,"retmsg":"请重新登录"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.QueryBalance(context.Background(), querySession())
	if !IsSessionExpired(err) {
		t.Errorf("error %v not classified as session expired", err)
	}
}

func TestQueryBalance_HTMLResponse(t *testing.T) {
	// 门户登出后查询接口返回登录页HTML
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>登录</title></head></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.QueryBalance(context.Background(), querySession())
	if !IsSessionExpired(err) {
		t.Errorf("error %v not classified as session expired", err)
	}
}

func TestQueryBalance_PortalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retcode":2,"retmsg":"房间不存在"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.QueryBalance(context.Background(), querySession())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsSessionExpired(err) {
		t.Errorf("portal business error %v misclassified as session expired", err)
	}
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Kind != KindPortal {
		t.Errorf("error = %v, want KindPortal", err)
	}
}

func TestQueryBalance_MissingDegree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retcode":0,"retmsg":"成功"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.QueryBalance(context.Background(), querySession())
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Kind != KindMalformed {
		t.Errorf("error = %v, want KindMalformed", err)
	}
}

func TestQueryBalance_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := newTestClient(t, base)
	_, err := c.QueryBalance(context.Background(), querySession())
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Kind != KindTransport {
		t.Errorf("error = %v, want KindTransport", err)
	}
}
