package portal

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CAS登录页脚本中携带二维码token：var qrCodeUrl = "...loginLT=XXX..."
var loginLTRe = regexp.MustCompile(`var\s+qrCodeUrl\s*=\s*"[^"]*loginLT=([^"&]+)`)

// QRStatus 扫码登录轮询结果
type QRStatus int

const (
	// QRWaiting 等待扫码确认
	QRWaiting QRStatus = iota
	// QRLimited 用户登录受限
	QRLimited
	// QRSuccess 登录成功
	QRSuccess
)

// QRCode 二维码地址与对应的登录token
type QRCode struct {
	URL     string `json:"qrCodeUrl"`
	LoginLT string `json:"loginLT"`
}

// QRCodeURL 从CAS登录页提取loginLT并拼出二维码图片地址。
func (c *Client) QRCodeURL(ctx context.Context) (*QRCode, error) {
	resp, err := c.fetch(ctx, http.MethodGet, c.cfg.CASLoginURL, nil, nil, true)
	if err != nil {
		return nil, &AuthError{Reason: "fetch cas login page", Err: err}
	}
	m := loginLTRe.FindSubmatch(resp.Body)
	if m == nil {
		return nil, &AuthError{Reason: "login token not found in cas page"}
	}
	loginLT := string(m[1])
	return &QRCode{
		URL:     strings.TrimRight(c.cfg.CASBaseURL, "/") + "/cas/generateQRCode?loginLT=" + loginLT,
		LoginLT: loginLT,
	}, nil
}

// PollQRCode 查询一次扫码登录状态。
// CAS返回"success"后，以扫码得到的cookie补完门户握手；
// 返回302且Location带ticket同样视为成功。其余情况继续等待。
func (c *Client) PollQRCode(ctx context.Context, loginLT string) (*Session, QRStatus, error) {
	checkURL := strings.TrimRight(c.cfg.CASBaseURL, "/") + "/cas/analogLogin?loginLT=" + loginLT
	resp, err := c.fetch(ctx, http.MethodPost, checkURL, nil, map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}, false)
	if err != nil {
		return nil, QRWaiting, &AuthError{Reason: "poll qrcode login", Err: err}
	}

	switch {
	case strings.TrimSpace(string(resp.Body)) == "success":
		// 等待CAS同步扫码登录状态
		select {
		case <-time.After(c.qrSyncDelay):
		case <-ctx.Done():
			return nil, QRWaiting, ctx.Err()
		}
		sess, err := c.finishQRHandshake(ctx, resp.SetCookies)
		if err != nil {
			return nil, QRWaiting, err
		}
		if sess == nil {
			// CAS会话尚未完全生效，让前端稍后再试
			return nil, QRWaiting, nil
		}
		return sess, QRSuccess, nil

	case strings.TrimSpace(string(resp.Body)) == "userlimit":
		return nil, QRLimited, nil

	case resp.Status == http.StatusFound:
		return c.followTicketRedirect(ctx, resp)

	default:
		return nil, QRWaiting, nil
	}
}

// followTicketRedirect 处理analogLogin直接302到带ticket地址的情况。
func (c *Client) followTicketRedirect(ctx context.Context, poll *fetchResult) (*Session, QRStatus, error) {
	loc := poll.Location
	if loc == "" || !(strings.Contains(loc, "ticket=ST-") || strings.Contains(loc, "?ticket=")) {
		return nil, QRWaiting, nil
	}

	redirect, err := c.fetch(ctx, http.MethodGet, loc, nil, nil, true)
	if err != nil {
		return nil, QRWaiting, &AuthError{Reason: "follow ticket redirect", Err: err}
	}

	jsessionid := ExtractJSessionID(redirect.FinalURL)
	cookies := map[string]string{}
	MergeSetCookies(cookies, poll.SetCookies)
	MergeSetCookies(cookies, redirect.SetCookies)

	sess := &Session{Cookies: cookies, JSESSIONID: jsessionid, LastUpdate: time.Now(), Valid: true}
	if !c.Valid(ctx, sess) {
		return nil, QRWaiting, nil
	}
	return sess, QRSuccess, nil
}

// finishQRHandshake 以扫码产生的CAS会话补完门户握手。
// 返回 (nil, nil) 表示CAS状态尚未生效，应继续等待。
func (c *Client) finishQRHandshake(ctx context.Context, initialSetCookies []string) (*Session, error) {
	initial := map[string]string{}
	MergeSetCookies(initial, initialSetCookies)

	// 带扫码cookie重入CAS登录地址，应被重定向进电费系统
	casResp, err := c.fetch(ctx, http.MethodGet, c.cfg.CASLoginURL, nil, map[string]string{
		"Cookie": CookieHeader(initial, ""),
	}, true)
	if err != nil {
		return nil, &AuthError{Reason: "reenter cas with qr cookies", Err: err}
	}

	jsessionid := ExtractJSessionID(casResp.FinalURL)
	cookies := map[string]string{}
	MergeSetCookies(cookies, initialSetCookies)
	MergeSetCookies(cookies, casResp.SetCookies)

	// 未被直接重定向到门户时，访问一卡通首页换取门户会话
	if !strings.Contains(casResp.FinalURL, hostOf(c.cfg.EpayBaseURL)) {
		mainResp, err := c.fetch(ctx, http.MethodGet, c.epayMainURL(jsessionid), nil, map[string]string{
			"Cookie":  CookieHeader(cookies, jsessionid),
			"Referer": c.cfg.CASBaseURL + "/",
		}, true)
		if err != nil {
			return nil, &AuthError{Reason: "fetch epay main page", Err: err}
		}
		MergeSetCookies(cookies, mainResp.SetCookies)
	}

	// 验证电费页面可达
	billResp, err := c.fetch(ctx, http.MethodGet, c.billPageURL(jsessionid), nil, map[string]string{
		"Cookie":  CookieHeader(cookies, jsessionid),
		"Referer": c.cfg.EpayBaseURL,
	}, true)
	if err != nil {
		return nil, &AuthError{Reason: "fetch electricity bill page", Err: err}
	}
	title := pageTitle(billResp.Body)
	if containsAny(title, loginMarkers) {
		c.logger.Info("qr login session not effective yet", zap.String("title", title))
		return nil, nil
	}

	return &Session{Cookies: cookies, JSESSIONID: jsessionid, LastUpdate: time.Now(), Valid: true}, nil
}

func hostOf(rawurl string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(rawurl, "https://"), "http://")
	if i := strings.IndexAny(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}
