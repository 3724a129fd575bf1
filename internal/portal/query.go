package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// 门户返回消息里出现这些词即判定会话失效（如"请重新登录"）
var sessionExpiredMarkers = []string{"登录", "认证", "会话"}

// QueryBalance 用缓存会话向门户发起一次电费余额查询。
// 失败以 QueryError 区分：会话失效（可重新认证后重试一次）、
// 网络错误、门户业务错误（不重试）、响应缺字段。
func (c *Client) QueryBalance(ctx context.Context, s *Session) (float64, error) {
	form := url.Values{}
	form.Set("sysid", c.cfg.SysID)
	form.Set("roomNo", c.cfg.RoomNo)
	form.Set("elcarea", c.cfg.ElcArea)
	form.Set("elcbuis", c.cfg.ElcBuis)

	resp, err := c.fetch(ctx, http.MethodPost, c.queryURL(s.JSESSIONID), form, map[string]string{
		"Cookie":           s.CookieHeader(),
		"Referer":          c.billPageURL(s.JSESSIONID),
		"X-Requested-With": "XMLHttpRequest",
	}, false)
	if err != nil {
		return 0, &QueryError{Kind: KindTransport, Msg: "post balance query", Err: err}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		// 门户登出后查询接口会返回登录页HTML而非JSON
		return 0, &QueryError{Kind: KindSessionExpired, Msg: "response is not JSON, session may have expired"}
	}

	retcode, ok := toInt(payload["retcode"])
	if !ok {
		return 0, &QueryError{Kind: KindMalformed, Msg: "missing retcode: " + excerpt(resp.Body)}
	}
	if retcode != 0 {
		retmsg, _ := payload["retmsg"].(string)
		if containsAny(retmsg, sessionExpiredMarkers) {
			return 0, &QueryError{Kind: KindSessionExpired, Msg: retmsg}
		}
		return 0, &QueryError{Kind: KindPortal, Msg: retmsg}
	}

	amount, ok := toFloat(payload["restElecDegree"])
	if !ok {
		return 0, &QueryError{Kind: KindMalformed, Msg: "missing restElecDegree: " + excerpt(resp.Body)}
	}
	return amount, nil
}

// excerpt 截取原始响应片段用于诊断日志
func excerpt(body []byte) string {
	const limit = 200
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
