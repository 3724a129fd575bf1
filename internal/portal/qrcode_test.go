package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestQRCodeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>
			var qrCodeUrl = "http://ids/cas/generateQRCode?loginLT=LT-12345&size=200";
		</script></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	qr, err := c.QRCodeURL(context.Background())
	if err != nil {
		t.Fatalf("QRCodeURL: %v", err)
	}
	if qr.LoginLT != "LT-12345" {
		t.Errorf("LoginLT = %q, want LT-12345", qr.LoginLT)
	}
	want := srv.URL + "/cas/generateQRCode?loginLT=LT-12345"
	if qr.URL != want {
		t.Errorf("URL = %q, want %q", qr.URL, want)
	}
}

func TestQRCodeURL_TokenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>统一身份认证</title></head></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.QRCodeURL(context.Background())
	if !IsAuthError(err) {
		t.Errorf("error %v is not an AuthError", err)
	}
}

func TestPollQRCode_Waiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fail")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	sess, status, err := c.PollQRCode(context.Background(), "LT-1")
	if err != nil {
		t.Fatalf("PollQRCode: %v", err)
	}
	if status != QRWaiting || sess != nil {
		t.Errorf("status = %v, sess = %v, want waiting and nil", status, sess)
	}
}

func TestPollQRCode_UserLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "userlimit")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, status, err := c.PollQRCode(context.Background(), "LT-1")
	if err != nil {
		t.Fatalf("PollQRCode: %v", err)
	}
	if status != QRLimited {
		t.Errorf("status = %v, want QRLimited", status)
	}
}

func TestPollQRCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/cas/analogLogin"):
			http.SetCookie(w, &http.Cookie{Name: "qrsess", Value: "qr-cookie", Path: "/cas"})
			fmt.Fprint(w, "success")

		case strings.HasPrefix(r.URL.Path, "/cas/login"):
			if strings.Contains(r.Header.Get("Cookie"), "qrsess=qr-cookie") {
				http.Redirect(w, r, "/epay/main;jsessionid=EPAY123?ticket=ST-7", http.StatusFound)
				return
			}
			fmt.Fprint(w, `<html><head><title>统一身份认证</title></head></html>`)

		case strings.HasPrefix(r.URL.Path, "/epay/electric/load4electricbill"):
			if strings.Contains(r.Header.Get("Cookie"), "JSESSIONID=EPAY123") {
				fmt.Fprint(w, `<html><head><title>充值页面</title></head></html>`)
				return
			}
			fmt.Fprint(w, `<html><head><title>登录</title></head></html>`)

		case strings.HasPrefix(r.URL.Path, "/epay/"):
			fmt.Fprint(w, `<html><head><title>一卡通服务平台</title></head></html>`)

		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.qrSyncDelay = 0

	sess, status, err := c.PollQRCode(context.Background(), "LT-7")
	if err != nil {
		t.Fatalf("PollQRCode: %v", err)
	}
	if status != QRSuccess {
		t.Fatalf("status = %v, want QRSuccess", status)
	}
	if sess.JSESSIONID != "EPAY123" {
		t.Errorf("JSESSIONID = %q, want EPAY123", sess.JSESSIONID)
	}
	if sess.Cookies["qrsess"] != "qr-cookie" {
		t.Errorf("qr cookie not carried into session: %v", sess.Cookies)
	}
}

func TestPollQRCode_SessionNotEffectiveYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/cas/analogLogin"):
			fmt.Fprint(w, "success")
		case strings.HasPrefix(r.URL.Path, "/epay/electric/load4electricbill"):
			// CAS状态尚未同步，电费页被打回登录页
			fmt.Fprint(w, `<html><head><title>登录</title></head></html>`)
		default:
			fmt.Fprint(w, `<html><head><title>统一身份认证</title></head></html>`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.qrSyncDelay = 0

	sess, status, err := c.PollQRCode(context.Background(), "LT-7")
	if err != nil {
		t.Fatalf("PollQRCode: %v", err)
	}
	if status != QRWaiting || sess != nil {
		t.Errorf("status = %v, sess = %v, want waiting and nil", status, sess)
	}
}
