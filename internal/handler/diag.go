package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/scheduler"
	"github.com/reeedirect/billing/internal/timeutil"
)

// DiagHandler 定时任务诊断接口
type DiagHandler struct {
	Started time.Time
	Logger  *zap.Logger
}

// NewDiagHandler 构造函数，以构造时刻作为服务启动时间。
func NewDiagHandler(logger *zap.Logger) *DiagHandler {
	return &DiagHandler{Started: time.Now(), Logger: logger}
}

// TestCron 返回定时查询的调度信息：当前时间、调度表达式、
// 接下来5次触发时间、运行时长与内存占用。
func (h *DiagHandler) TestCron(c *gin.Context) {
	now := timeutil.Now()

	next := scheduler.NextAutoQueryTimes(now, 5)
	formatted := make([]string, len(next))
	for i, t := range next {
		formatted[i] = t.Format(timeutil.DateTimeLayout)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"current_time":         now.Format(timeutil.DateTimeLayout),
		"cron_expression":      "0,30 * * * *",
		"next_execution_times": formatted,
		"server_uptime":        time.Since(h.Started).Seconds(),
		"memory_usage": gin.H{
			"alloc":      mem.Alloc,
			"heap_alloc": mem.HeapAlloc,
			"sys":        mem.Sys,
			"num_gc":     mem.NumGC,
		},
	})
}
