package portal

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Authenticate 执行完整的CAS认证握手，成功返回可用的门户会话。
// 流程（与门户的遗留行为一一对应，顺序不可调整）：
//
//	① GET CAS登录页面，记录预认证cookie
//	② 解析表单，收集隐藏字段（execution、_eventId等）与action地址
//	③ POST 用户名密码与隐藏字段，允许有限次重定向，3xx不算错误
//	④ 从最终重定向URL中提取jsessionid
//	⑤ 合并全部Set-Cookie（同名cookie后者覆盖前者）
//	⑥ GET 一卡通首页换取门户侧二级会话，并入新cookie
//	⑦ GET 电费页面验证握手结果，回到登录页即宣告失败
//
// 任一步失败都以 AuthError 返回，绝不留下半成品会话。
// Authenticate 内部不做重试，是否重试由调用方决定。
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	// ①: 访问CAS登录页面
	loginPage, err := c.fetch(ctx, http.MethodGet, c.cfg.CASLoginURL, nil, nil, true)
	if err != nil {
		return nil, &AuthError{Reason: "fetch cas login page", Err: err}
	}

	// ②: 提取登录表单字段
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(loginPage.Body))
	if err != nil {
		return nil, &AuthError{Reason: "parse cas login page", Err: err}
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	doc.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		value, _ := sel.Attr("value")
		if name != "" && value != "" {
			form.Set(name, value)
		}
	})

	action, _ := doc.Find("form").First().Attr("action")
	actionURL := c.resolveActionURL(action)
	c.logger.Debug("cas login form resolved",
		zap.String("action", actionURL), zap.Int("fields", len(form)))

	// ③: 提交CAS登录表单，带上预认证cookie
	preCookies := map[string]string{}
	MergeSetCookies(preCookies, loginPage.SetCookies)
	submit, err := c.fetch(ctx, http.MethodPost, actionURL, form, map[string]string{
		"Referer": c.cfg.CASLoginURL,
		"Cookie":  CookieHeader(preCookies, ""),
	}, true)
	if err != nil {
		return nil, &AuthError{Reason: "submit cas login form", Err: err}
	}

	// ④: 从最终URL提取jsessionid
	jsessionid := ExtractJSessionID(submit.FinalURL)

	// ⑤: 合并认证cookie
	cookies := map[string]string{}
	MergeSetCookies(cookies, loginPage.SetCookies)
	MergeSetCookies(cookies, submit.SetCookies)

	// ⑥: 访问一卡通服务平台首页，可能签发新的会话cookie
	mainResp, err := c.fetch(ctx, http.MethodGet, c.epayMainURL(jsessionid), nil, map[string]string{
		"Cookie":  CookieHeader(cookies, jsessionid),
		"Referer": c.cfg.CASBaseURL + "/",
	}, true)
	if err != nil {
		return nil, &AuthError{Reason: "fetch epay main page", Err: err}
	}
	MergeSetCookies(cookies, mainResp.SetCookies)

	// ⑦: 访问电费页面验证握手是否成功
	billResp, err := c.fetch(ctx, http.MethodGet, c.billPageURL(jsessionid), nil, map[string]string{
		"Cookie":  CookieHeader(cookies, jsessionid),
		"Referer": c.cfg.EpayBaseURL,
	}, true)
	if err != nil {
		return nil, &AuthError{Reason: "fetch electricity bill page", Err: err}
	}

	title := pageTitle(billResp.Body)
	if billResp.Status != http.StatusOK || !containsAny(title, successMarkers) || containsAny(title, loginMarkers) {
		c.logger.Info("cas handshake rejected", zap.String("title", title), zap.Int("status", billResp.Status))
		return nil, &AuthError{Reason: "invalid credentials or handshake failure"}
	}

	return &Session{
		Cookies:    cookies,
		JSESSIONID: jsessionid,
		LastUpdate: time.Now(),
		Valid:      true,
	}, nil
}
