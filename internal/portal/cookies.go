package portal

import (
	"regexp"
	"sort"
	"strings"
)

// jsessionid 形如 ...;jsessionid=XXX?ticket=...，取到 ? 或 & 为止
var jsessionRe = regexp.MustCompile(`jsessionid=([^&?]+)`)

// MergeSetCookies 将一批原始 Set-Cookie 头合并进 dst。
// 只保留每条的 name=value 部分，同名后出现者覆盖先出现者。
func MergeSetCookies(dst map[string]string, setCookies []string) {
	for _, sc := range setCookies {
		pair := sc
		if i := strings.Index(pair, ";"); i >= 0 {
			pair = pair[:i]
		}
		i := strings.Index(pair, "=")
		if i <= 0 {
			continue
		}
		name := strings.TrimSpace(pair[:i])
		value := strings.TrimSpace(pair[i+1:])
		if name == "" {
			continue
		}
		dst[name] = value
	}
}

// CookieHeader 渲染 Cookie 请求头。jsessionid 非空时追加为显式
// JSESSIONID cookie：门户按它路由会话，独立于标准cookie。
func CookieHeader(cookies map[string]string, jsessionid string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	if jsessionid != "" {
		parts = append(parts, "JSESSIONID="+jsessionid)
	}
	return strings.Join(parts, "; ")
}

// ExtractJSessionID 从重定向后的URL中提取 jsessionid 路径段，没有则返回空串。
func ExtractJSessionID(rawurl string) string {
	m := jsessionRe.FindStringSubmatch(rawurl)
	if m == nil {
		return ""
	}
	return m[1]
}
