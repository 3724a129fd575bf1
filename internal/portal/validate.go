package portal

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Valid 用一次轻量探测判断缓存会话是否仍然有效。
// 没有缓存会话时直接返回false，不发起网络请求；
// 任何网络错误、非200状态或页面标题缺少预期关键词均视为失效。
// 该方法从不返回错误：探测失败是可恢复的常态，由调用方重新认证。
// 会话记录本身只读：同一指针可能被多个查询路径同时持有，
// 失效后由调用方经store丢弃整条记录，绝不原地修改。
func (c *Client) Valid(ctx context.Context, s *Session) bool {
	if s == nil || len(s.Cookies) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	resp, err := c.fetch(ctx, http.MethodGet, c.billPageURL(s.JSESSIONID), nil, map[string]string{
		"Cookie":  s.CookieHeader(),
		"Referer": c.cfg.EpayBaseURL,
	}, true)
	if err != nil {
		c.logger.Debug("session probe failed", zap.Error(err))
		return false
	}
	if resp.Status != http.StatusOK {
		c.logger.Debug("session probe rejected", zap.Int("status", resp.Status))
		return false
	}

	title := pageTitle(resp.Body)
	if !containsAny(title, successMarkers) {
		c.logger.Debug("session probe title mismatch", zap.String("title", title))
		return false
	}
	return true
}
