package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/portal"
	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
	"github.com/reeedirect/billing/internal/timeutil"
	"github.com/reeedirect/billing/internal/util"
)

// AuthHandler 登录相关接口：密码登录、扫码登录、登录状态与会话管理。
// 身份键为客户端IP，同一IP共享一份登录状态。
type AuthHandler struct {
	Store  session.Store
	Portal *portal.Client
	Svc    *service.Service
	Logger *zap.Logger
}

// NewAuthHandler 构造函数
func NewAuthHandler(store session.Store, p *portal.Client, svc *service.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Store: store, Portal: p, Svc: svc, Logger: logger}
}

type passwordLoginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordLogin 密码登录：走完整CAS认证握手，成功后保存会话与凭据。
func (h *AuthHandler) PasswordLogin(c *gin.Context) {
	var req passwordLoginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		util.Fail(c, http.StatusBadRequest, "用户名和密码不能为空")
		return
	}
	identity := c.ClientIP()

	sess, err := h.Portal.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if portal.IsAuthError(err) {
			util.Fail(c, http.StatusUnauthorized, "用户名或密码错误")
		} else {
			h.Logger.Error("密码登录失败", zap.Error(err))
			util.Fail(c, http.StatusInternalServerError, "登录验证失败，请稍后重试")
		}
		return
	}
	h.Store.SaveAuth(identity, sess)

	// 握手成功不等于会话在电费系统侧生效，再探测一次。
	// 探测失败时不能留下只有认证会话的条目占用用户名额
	if !h.Svc.Probe(c.Request.Context(), identity) {
		h.Store.DeleteUser(identity)
		util.Fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	h.Store.PutUser(&session.User{
		Identity:    identity,
		IsLoggedIn:  true,
		LoginTime:   timeutil.NowString(),
		LoginMethod: session.MethodPassword,
		Username:    req.Username,
		Password:    req.Password,
	})
	h.Logger.Info("密码登录成功", zap.String("identity", identity))
	util.OKMsg(c, "密码登录成功")

	h.queryAfterLogin(identity)
}

// QRCodeLogin 获取扫码登录二维码地址。
func (h *AuthHandler) QRCodeLogin(c *gin.Context) {
	qr, err := h.Portal.QRCodeURL(c.Request.Context())
	if err != nil {
		h.Logger.Error("获取二维码失败", zap.Error(err))
		util.Fail(c, http.StatusInternalServerError, "无法从页面中提取登录token")
		return
	}
	util.OK(c, util.Fields{
		"qrCodeUrl": qr.URL,
		"loginLT":   qr.LoginLT,
	})
}

type checkQRCodeReq struct {
	LoginLT string `json:"loginLT"`
}

// CheckQRCodeLogin 轮询扫码登录状态，扫码成功后完成会话建立。
func (h *AuthHandler) CheckQRCodeLogin(c *gin.Context) {
	var req checkQRCodeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.LoginLT == "" {
		util.Fail(c, http.StatusBadRequest, "缺少登录token")
		return
	}
	identity := c.ClientIP()

	sess, status, err := h.Portal.PollQRCode(c.Request.Context(), req.LoginLT)
	if err != nil {
		h.Logger.Warn("扫码登录检查失败", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "登录验证失败，请重试"})
		return
	}

	switch {
	case status == portal.QRSuccess && sess != nil:
		h.Store.SaveAuth(identity, sess)
		h.Store.PutUser(&session.User{
			Identity:    identity,
			IsLoggedIn:  true,
			LoginTime:   timeutil.NowString(),
			LoginMethod: session.MethodQRCode,
		})
		h.Logger.Info("扫码登录成功", zap.String("identity", identity))
		util.OKMsg(c, "扫码登录成功")
		h.queryAfterLogin(identity)
	case status == portal.QRLimited:
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "用户登录受限，请稍后重试"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "扫码登录处理中，请稍后重试..."})
	}
}

// LoginStatus 查询当前登录状态，已登录时顺带刷新活跃时间。
func (h *AuthHandler) LoginStatus(c *gin.Context) {
	identity := c.ClientIP()
	u := h.Store.GetUser(identity)
	if u == nil || !u.IsLoggedIn {
		c.JSON(http.StatusOK, gin.H{
			"isLoggedIn":  false,
			"loginTime":   nil,
			"loginMethod": nil,
		})
		return
	}
	h.Store.Touch(identity)
	c.JSON(http.StatusOK, gin.H{
		"isLoggedIn":  true,
		"loginTime":   u.LoginTime,
		"loginMethod": u.LoginMethod,
	})
}

// Logout 退出登录，级联清除门户会话。
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Store.DeleteUser(c.ClientIP())
	util.OKMsg(c, "已退出登录")
}

// SessionStatus 查询门户会话状态，jsessionid只回显末8位。
func (h *AuthHandler) SessionStatus(c *gin.Context) {
	identity := c.ClientIP()
	u := h.Store.GetUser(identity)
	if u == nil || !u.IsLoggedIn {
		c.JSON(http.StatusOK, gin.H{
			"isValid":    false,
			"lastUpdate": nil,
			"hasSession": false,
			"jsessionid": nil,
		})
		return
	}

	valid := h.Svc.Probe(c.Request.Context(), identity)

	var lastUpdate, jsessionid interface{}
	hasSession := false
	if sess := h.Store.GetAuth(identity); sess != nil {
		lastUpdate = sess.LastUpdate.Format(timeutil.DateTimeLayout)
		hasSession = len(sess.Cookies) > 0
		if sess.JSESSIONID != "" {
			tail := sess.JSESSIONID
			if len(tail) > 8 {
				tail = tail[len(tail)-8:]
			}
			jsessionid = "xxx..." + tail
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"isValid":    valid,
		"lastUpdate": lastUpdate,
		"hasSession": hasSession,
		"jsessionid": jsessionid,
	})
}

// ClearSession 手动清除会话与登录状态。
func (h *AuthHandler) ClearSession(c *gin.Context) {
	identity := c.ClientIP()
	h.Store.InvalidateAuth(identity)
	h.Store.DeleteUser(identity)
	util.OKMsg(c, "会话已清除")
}

// queryAfterLogin 登录成功后延迟触发一次查询，填充当天的数据。
func (h *AuthHandler) queryAfterLogin(identity string) {
	go func() {
		time.Sleep(time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.Svc.Query(ctx, identity, true); err != nil {
			h.Logger.Warn("登录后查询失败", zap.String("identity", identity), zap.Error(err))
		}
	}()
}
