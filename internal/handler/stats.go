package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/models"
	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/stats"
	"github.com/reeedirect/billing/internal/timeutil"
	"github.com/reeedirect/billing/internal/util"
)

// StatsHandler 统计接口
type StatsHandler struct {
	Repo   *repository.ReadingRepo
	Logger *zap.Logger
}

// NewStatsHandler 构造函数
func NewStatsHandler(repo *repository.ReadingRepo, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{Repo: repo, Logger: logger}
}

// Stats 全量聚合统计。
func (h *StatsHandler) Stats(c *gin.Context) {
	s, err := h.Repo.Stats()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, s)
}

// StatsToday 单日聚合统计，默认今日。
func (h *StatsHandler) StatsToday(c *gin.Context) {
	date := c.DefaultQuery("date", timeutil.Today())
	s, err := h.Repo.StatsByDate(date)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"today_queries": s.TotalQueries,
		"min_amount":    s.MinAmount,
		"max_amount":    s.MaxAmount,
		"avg_amount":    s.AvgAmount,
		"first_query":   s.FirstQuery,
		"last_query":    s.LastQuery,
	})
}

// Consumption 单日耗电量统计：全天耗电加上每小时耗电的
// 最大最小时段，默认今日。
func (h *StatsHandler) Consumption(c *gin.Context) {
	date := c.DefaultQuery("date", timeutil.Today())
	recs, err := h.Repo.ByDate(date)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	dayConsumption := stats.DailyConsumption(recs)
	hourly := stats.HourlyConsumptions(recs, date)

	maxChange, minChange := 0.0, 0.0
	maxPeriod, minPeriod := "--", "--"
	for _, hc := range hourly {
		if hc.Consumption <= 0 {
			continue
		}
		if maxPeriod == "--" || hc.Consumption > maxChange {
			maxChange = hc.Consumption
			maxPeriod = hc.Period
		}
		if minPeriod == "--" || hc.Consumption < minChange {
			minChange = hc.Consumption
			minPeriod = hc.Period
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"today_consumption": dayConsumption,
		"max_daily_change":  maxChange,
		"min_daily_change":  minChange,
		"max_change_period": maxPeriod,
		"min_change_period": minPeriod,
	})
}

// DailyConsumption 多日耗电汇总，days=-1表示全部。
func (h *StatsHandler) DailyConsumption(c *gin.Context) {
	days := intQuery(c, "days", 7)

	var (
		recs []models.Reading
		err  error
	)
	if days == -1 {
		recs, err = h.Repo.All()
	} else {
		// days-1 确保统计区间包含今天
		recs, err = h.Repo.SinceDate(timeutil.DaysAgo(days - 1))
	}
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	byDate := make(map[string][]models.Reading)
	for _, rec := range recs {
		date := dateOf(rec.QueryTime)
		byDate[date] = append(byDate[date], rec)
	}

	summary := stats.Summarize(byDate)
	if days != -1 && len(summary.Chart) > days {
		// 只保留最近的days天，图表仍按日期升序
		sort.Slice(summary.Chart, func(i, j int) bool {
			return summary.Chart[i].Date < summary.Chart[j].Date
		})
		summary.Chart = summary.Chart[len(summary.Chart)-days:]
	}
	c.JSON(http.StatusOK, summary)
}
