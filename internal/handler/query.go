package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/portal"
	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
	"github.com/reeedirect/billing/internal/util"
)

// QueryHandler 手动查询与连通性测试接口
type QueryHandler struct {
	Store  session.Store
	Portal *portal.Client
	Svc    *service.Service
	Logger *zap.Logger
}

// NewQueryHandler 构造函数
func NewQueryHandler(store session.Store, p *portal.Client, svc *service.Service, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{Store: store, Portal: p, Svc: svc, Logger: logger}
}

// Query 手动查询电费余额。要求已登录且会话有效，
// 所有用户共享全局查询间隔。
func (h *QueryHandler) Query(c *gin.Context) {
	identity := c.ClientIP()

	u := h.Store.GetUser(identity)
	if u == nil || !u.IsLoggedIn {
		util.Fail(c, http.StatusUnauthorized, "请先登录")
		return
	}

	if !h.Svc.Probe(c.Request.Context(), identity) {
		h.Store.DeleteUser(identity)
		util.Fail(c, http.StatusUnauthorized, "登录已过期，请重新登录")
		return
	}

	if remaining, ok := h.Svc.Throttle.Allow(); !ok {
		util.FailFields(c, http.StatusTooManyRequests,
			fmt.Sprintf("查询过于频繁，请等待 %d 秒后再试", remaining),
			util.Fields{"remainingTime": remaining})
		return
	}

	h.Store.Touch(identity)

	result, err := h.Svc.Query(c.Request.Context(), identity, false)
	if err != nil {
		if service.IsSessionError(err) {
			h.Store.DeleteUser(identity)
			util.Fail(c, http.StatusUnauthorized, "登录已过期，请重新登录")
			return
		}
		h.Logger.Error("手动查询失败", zap.String("identity", identity), zap.Error(err))
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	util.OK(c, util.Fields{
		"remainingAmount": result.RemainingAmount,
		"queryTime":       result.QueryTime,
		"message":         result.Message,
	})
}

// TestQuery 探测CAS系统连通性。
func (h *QueryHandler) TestQuery(c *gin.Context) {
	status, err := h.Portal.Ping(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   fmt.Sprintf("CAS系统连接失败: %v", err),
		})
		return
	}
	if status != http.StatusOK {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   fmt.Sprintf("CAS系统响应异常: %d", status),
		})
		return
	}
	util.OK(c, util.Fields{
		"message": "CAS系统连接正常",
		"status":  status,
	})
}
