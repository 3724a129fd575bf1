package portal

import "time"

// Session 门户侧认证产物：合并后的cookie集合与会话路由token。
// 整体替换，失效后不得复用，必须由一次新的认证产出新记录。
type Session struct {
	Cookies    map[string]string
	JSESSIONID string
	LastUpdate time.Time
	Valid      bool
}

// CookieHeader renders the Cookie header for portal requests.
func (s *Session) CookieHeader() string {
	return CookieHeader(s.Cookies, s.JSESSIONID)
}
