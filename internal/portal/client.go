package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/config"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxRedirects = 5
	maxBodySize  = 2 << 20
)

// 电费页面标题里出现任意一个即认为会话有效
var successMarkers = []string{"充值页面", "电费", "一卡通"}

// 被重定向回登录/认证页面的标题特征
var loginMarkers = []string{"登录", "认证"}

// Doer 发送单个HTTP请求，不跟随重定向。注入以便测试。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client 校园门户客户端：负责CAS握手、会话探测与电费查询。
// 重定向由Client自行逐跳跟随，以便收集每一跳的Set-Cookie。
type Client struct {
	HTTP Doer

	cfg         config.PortalConfig
	logger      *zap.Logger
	qrSyncDelay time.Duration
}

// NewClient creates a portal client from configuration.
func NewClient(cfg config.PortalConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Client{
		HTTP: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:         cfg,
		logger:      logger,
		qrSyncDelay: time.Second,
	}
}

// fetchResult 一次（可能含多跳重定向的）请求的结果
type fetchResult struct {
	Status     int
	Body       []byte
	FinalURL   string
	Location   string
	SetCookies []string
}

// fetch 发送请求。follow 为真时最多跟随 maxRedirects 次重定向，
// 沿途每一跳的 Set-Cookie 都会被收集；请求头在各跳之间保持不变。
func (c *Client) fetch(ctx context.Context, method, rawurl string, form url.Values, headers map[string]string, follow bool) (*fetchResult, error) {
	result := &fetchResult{}
	current := rawurl

	for hop := 0; ; hop++ {
		var body io.Reader
		if form != nil && hop == 0 {
			body = strings.NewReader(form.Encode())
		}
		reqMethod := method
		if hop > 0 {
			reqMethod = http.MethodGet
		}

		req, err := http.NewRequestWithContext(ctx, reqMethod, current, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		if form != nil && hop == 0 {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}

		loc := resp.Header.Get("Location")
		result.SetCookies = append(result.SetCookies, resp.Header.Values("Set-Cookie")...)
		result.Status = resp.StatusCode
		result.FinalURL = current
		result.Location = loc

		if follow && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
			resp.Body.Close()
			if loc == "" {
				return result, nil
			}
			if hop >= maxRedirects {
				return nil, fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			next, err := req.URL.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("resolve redirect %q: %w", loc, err)
			}
			current = next.String()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		result.Body = data
		return result, nil
	}
}

// pageTitle 解析HTML并返回<title>文本，解析失败返回空串。
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Ping 探测CAS系统连通性，返回HTTP状态码。
func (c *Client) Ping(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	resp, err := c.fetch(ctx, http.MethodGet, c.cfg.CASLoginURL, nil, nil, false)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// insertJSessionID 把 ;jsessionid= 路径段插入到URL的查询串之前。
func insertJSessionID(rawurl, jsessionid string) string {
	if jsessionid == "" {
		return rawurl
	}
	if i := strings.Index(rawurl, "?"); i >= 0 {
		return rawurl[:i] + ";jsessionid=" + jsessionid + rawurl[i:]
	}
	return rawurl + ";jsessionid=" + jsessionid
}

// billPageURL 电费查询页面地址（带可选jsessionid）
func (c *Client) billPageURL(jsessionid string) string {
	return insertJSessionID(c.cfg.BillPageURL, jsessionid)
}

// epayMainURL 一卡通服务平台首页地址（带可选jsessionid）
func (c *Client) epayMainURL(jsessionid string) string {
	return insertJSessionID(c.cfg.EpayBaseURL, jsessionid)
}

// queryURL 电费AJAX查询接口地址（带可选jsessionid）
func (c *Client) queryURL(jsessionid string) string {
	return insertJSessionID(c.cfg.QueryURL, jsessionid)
}

// resolveActionURL 将登录表单的action解析为绝对地址。
func (c *Client) resolveActionURL(action string) string {
	if action == "" {
		return c.cfg.CASLoginURL
	}
	if strings.HasPrefix(action, "http://") || strings.HasPrefix(action, "https://") {
		return action
	}
	base := strings.TrimRight(c.cfg.CASBaseURL, "/")
	if strings.HasPrefix(action, "/") {
		return base + action
	}
	return base + "/cas/" + action
}
