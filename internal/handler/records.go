package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/anomaly"
	"github.com/reeedirect/billing/internal/models"
	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/timeutil"
	"github.com/reeedirect/billing/internal/util"
)

// RecordsHandler 历史记录的查看与删除接口
type RecordsHandler struct {
	Repo   *repository.ReadingRepo
	Guard  *anomaly.Guard
	Logger *zap.Logger
}

// NewRecordsHandler 构造函数
func NewRecordsHandler(repo *repository.ReadingRepo, guard *anomaly.Guard, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{Repo: repo, Guard: guard, Logger: logger}
}

// History 历史记录。summary模式按天聚合，detailed模式
// 返回每天的全部查询记录；days=-1表示全部。
func (h *RecordsHandler) History(c *gin.Context) {
	days := intQuery(c, "days", 7)
	viewType := c.DefaultQuery("type", "summary")

	if viewType == "detailed" {
		recs, err := h.Repo.SinceDate(timeutil.DaysAgo(days))
		if err != nil {
			h.Logger.Error("查询历史记录失败", zap.Error(err))
			util.Fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		// 按日期分组，组内按时间降序
		grouped := make(map[string][]gin.H)
		for i := len(recs) - 1; i >= 0; i-- {
			rec := recs[i]
			date := dateOf(rec.QueryTime)
			grouped[date] = append(grouped[date], gin.H{
				"remaining_amount": rec.RemainingAmount,
				"query_time":       rec.QueryTime,
				"timestamp":        rec.Timestamp.Format(timeutil.DateTimeLayout),
			})
		}
		c.JSON(http.StatusOK, grouped)
		return
	}

	var (
		rows []repository.DailySummary
		err  error
	)
	if days == -1 {
		rows, err = h.Repo.DailySummaries("", 0)
	} else {
		// days-1 确保统计区间包含今天
		rows, err = h.Repo.DailySummaries(timeutil.DaysAgo(days-1), days)
	}
	if err != nil {
		h.Logger.Error("查询历史汇总失败", zap.Error(err))
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Today 今日全部记录，按时间降序。
func (h *RecordsHandler) Today(c *gin.Context) {
	recs, err := h.Repo.ByDateDesc(timeutil.Today())
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{
			"remaining_amount": rec.RemainingAmount,
			"query_time":       rec.QueryTime,
			"timestamp":        rec.Timestamp.Format(timeutil.DateTimeLayout),
		})
	}
	c.JSON(http.StatusOK, out)
}

// HistoryByDate 指定日期的全部记录，按时间降序。
func (h *RecordsHandler) HistoryByDate(c *gin.Context) {
	recs, err := h.Repo.ByDateDesc(c.Param("date"))
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{
			"id":               rec.ID,
			"remaining_amount": rec.RemainingAmount,
			"query_time":       rec.QueryTime,
			"timestamp":        rec.Timestamp.Format(timeutil.DateTimeLayout),
		})
	}
	c.JSON(http.StatusOK, out)
}

// Records 记录列表，每条附带异常标注。
// 指定date时返回该日期全部记录，否则返回最近days天的记录。
func (h *RecordsHandler) Records(c *gin.Context) {
	days := intQuery(c, "days", 7)
	date := c.Query("date")

	var (
		recs []models.Reading
		err  error
	)
	if date != "" {
		recs, err = h.Repo.ByDateDesc(date)
	} else {
		recs, err = h.Repo.Recent(days * 50)
	}
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]gin.H, 0, len(recs))
	for i, rec := range recs {
		var prior *float64
		var gap = h.Guard.Window() + 1
		// 降序排列，下一条是更早的记录
		if i < len(recs)-1 {
			prev := recs[i+1]
			cur, err1 := timeutil.Parse(rec.QueryTime)
			pt, err2 := timeutil.Parse(prev.QueryTime)
			if err1 == nil && err2 == nil {
				prior = &prev.RemainingAmount
				gap = cur.Sub(pt)
			}
		}
		abnormal, reason := h.Guard.Flag(rec.RemainingAmount, prior, gap)
		out = append(out, gin.H{
			"id":               rec.ID,
			"remaining_amount": rec.RemainingAmount,
			"query_time":       rec.QueryTime,
			"timestamp":        rec.Timestamp.Format(timeutil.DateTimeLayout),
			"is_auto":          rec.IsAuto,
			"is_abnormal":      abnormal,
			"abnormal_reason":  reason,
		})
	}
	c.JSON(http.StatusOK, out)
}

// LastAutoQuery 最近一次自动查询时间。
func (h *RecordsHandler) LastAutoQuery(c *gin.Context) {
	rec, err := h.Repo.LastAuto()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{
			"last_auto_query": "暂无自动查询记录",
			"raw_time":        nil,
		})
		return
	}
	formatted := rec.QueryTime
	if t, err := timeutil.Parse(rec.QueryTime); err == nil {
		formatted = t.Format("2006/01/02 15:04:05")
	}
	c.JSON(http.StatusOK, gin.H{
		"last_auto_query": formatted,
		"raw_time":        rec.QueryTime,
	})
}

type deleteRangeReq struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// DeleteRange 删除日期区间内的记录。
func (h *RecordsHandler) DeleteRange(c *gin.Context) {
	var req deleteRangeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.StartDate == "" || req.EndDate == "" {
		util.Fail(c, http.StatusBadRequest, "请提供开始日期和结束日期")
		return
	}
	n, err := h.Repo.DeleteRange(req.StartDate, req.EndDate)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{
		"message":      fmt.Sprintf("已删除从 %s 到 %s 的 %d 条记录", req.StartDate, req.EndDate, n),
		"deletedCount": n,
	})
}

// DeleteAll 清空全部记录。
func (h *RecordsHandler) DeleteAll(c *gin.Context) {
	n, err := h.Repo.DeleteAll()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{
		"message":      fmt.Sprintf("已删除所有 %d 条记录", n),
		"deletedCount": n,
	})
}

type deleteSelectedReq struct {
	IDs []uint `json:"ids"`
}

// DeleteSelected 删除选中的记录。
func (h *RecordsHandler) DeleteSelected(c *gin.Context) {
	var req deleteSelectedReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		util.Fail(c, http.StatusBadRequest, "未提供要删除的记录ID")
		return
	}
	n, err := h.Repo.DeleteIDs(req.IDs)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{
		"message":      fmt.Sprintf("已删除 %d 条记录", n),
		"deletedCount": n,
	})
}

// DeleteBefore 删除指定日期之前的记录。
func (h *RecordsHandler) DeleteBefore(c *gin.Context) {
	beforeDate := c.Param("date")
	n, err := h.Repo.DeleteBefore(beforeDate)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{
		"message":      fmt.Sprintf("已删除 %s 之前的 %d 条记录", beforeDate, n),
		"deletedCount": n,
	})
}

// intQuery 读取整型查询参数，非法时取默认值。
func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// dateOf 取 "YYYY-MM-DD HH:MM:SS" 的日期部分。
func dateOf(queryTime string) string {
	if len(queryTime) >= 10 {
		return queryTime[:10]
	}
	return queryTime
}
