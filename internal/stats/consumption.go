// Package stats 从按时间排列的余额读数推导耗电量。
// 余额上涨（充值）会把一天切成多个耗电段：直接用首末差
// 跨过充值点会少算耗电，所以按段结算后求和。
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/reeedirect/billing/internal/models"
	"github.com/reeedirect/billing/internal/timeutil"
)

// 相邻读数上涨超过该值视为充值（正常波动不会超过1度）
const rechargeThreshold = 1.0

// 小时锚点匹配容差
const anchorTolerance = time.Minute

// DailyConsumption 计算一天的真实耗电量（考虑充值）。
// 按时间升序扫描，遇充值结算当前段 max(0, 段起点-前一条)，
// 并从充值点开启新段；收尾用最后一条结算最后一段。
// 结果恒≥0；不足两条读数时为0。
func DailyConsumption(readings []models.Reading) float64 {
	if len(readings) < 2 {
		return 0
	}

	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QueryTime < sorted[j].QueryTime
	})

	total := 0.0
	segmentStart := sorted[0]

	for i := 1; i < len(sorted); i++ {
		current := sorted[i]
		previous := sorted[i-1]

		if current.RemainingAmount-previous.RemainingAmount > rechargeThreshold {
			// 充值：结算当前段
			if seg := segmentStart.RemainingAmount - previous.RemainingAmount; seg > 0 {
				total += seg
			}
			segmentStart = current
		}
	}

	last := sorted[len(sorted)-1]
	if seg := segmentStart.RemainingAmount - last.RemainingAmount; seg > 0 {
		total += seg
	}
	return total
}

// HourlyConsumption 某小时时段的耗电量
type HourlyConsumption struct {
	Period      string  `json:"period"`
	Consumption float64 `json:"consumption"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
}

// HourlyConsumptions 计算指定日期每小时的耗电量。
// 每个小时需要在起止整点±1分钟内各找到一条读数作锚点
// （23点时段的终点锚是当天23:59:30，次日零点的记录不归本日）。
// 找不到锚点的小时直接省略而非补零：采样约30分钟一次，
// 只报告恰好在边界附近有采样的小时，不做插值。
func HourlyConsumptions(readings []models.Reading, date string) []HourlyConsumption {
	if len(readings) == 0 {
		return nil
	}

	var out []HourlyConsumption
	for hour := 0; hour < 24; hour++ {
		nextHour := (hour + 1) % 24
		period := fmt.Sprintf("%02d:00-%02d:00", hour, nextHour)

		start := findAnchor(readings, fmt.Sprintf("%s %02d:00:00", date, hour))

		var end *models.Reading
		if nextHour == 0 {
			end = findNearAnchor(readings, date+" 23:59:30")
		} else {
			end = findAnchor(readings, fmt.Sprintf("%s %02d:00:00", date, nextHour))
		}

		if start == nil || end == nil {
			continue
		}
		consumption := start.RemainingAmount - end.RemainingAmount
		if consumption <= 0 {
			// 负值多半是时段内发生了充值
			continue
		}
		out = append(out, HourlyConsumption{
			Period:      period,
			Consumption: math.Round(consumption*100) / 100,
			StartTime:   start.QueryTime,
			EndTime:     end.QueryTime,
		})
	}
	return out
}

// findAnchor 优先精确匹配目标时刻，其次在±1分钟内就近找一条。
func findAnchor(readings []models.Reading, target string) *models.Reading {
	for i := range readings {
		if readings[i].QueryTime == target {
			return &readings[i]
		}
	}
	return findNearAnchor(readings, target)
}

// findNearAnchor 在目标时刻±1分钟内找第一条读数。
func findNearAnchor(readings []models.Reading, target string) *models.Reading {
	targetTime, err := timeutil.Parse(target)
	if err != nil {
		return nil
	}
	for i := range readings {
		t, err := timeutil.Parse(readings[i].QueryTime)
		if err != nil {
			continue
		}
		diff := t.Sub(targetTime)
		if diff < 0 {
			diff = -diff
		}
		if diff <= anchorTolerance {
			return &readings[i]
		}
	}
	return nil
}

// DailyPoint 某一天的耗电概览
type DailyPoint struct {
	Date        string  `json:"date"`
	Consumption float64 `json:"consumption"`
	QueryCount  int     `json:"query_count"`
	MinAmount   float64 `json:"min_amount"`
	MaxAmount   float64 `json:"max_amount"`
}

// Summary 多日耗电汇总（只统计有正耗电的天）
type Summary struct {
	Avg     float64      `json:"avg_daily_consumption"`
	Max     float64      `json:"max_daily_consumption"`
	Min     float64      `json:"min_daily_consumption"`
	MaxDate string       `json:"max_consumption_date"`
	MinDate string       `json:"min_consumption_date"`
	Chart   []DailyPoint `json:"chart_data"`
}

// Summarize 对按日期分组的读数做多日耗电统计。
// 不足两条读数的日期不参与；图表数据按日期升序。
func Summarize(recordsByDate map[string][]models.Reading) Summary {
	points := make([]DailyPoint, 0, len(recordsByDate))
	for date, records := range recordsByDate {
		if len(records) < 2 {
			continue
		}
		minAmount, maxAmount := records[0].RemainingAmount, records[0].RemainingAmount
		for _, r := range records[1:] {
			if r.RemainingAmount < minAmount {
				minAmount = r.RemainingAmount
			}
			if r.RemainingAmount > maxAmount {
				maxAmount = r.RemainingAmount
			}
		}
		points = append(points, DailyPoint{
			Date:        date,
			Consumption: DailyConsumption(records),
			QueryCount:  len(records),
			MinAmount:   minAmount,
			MaxAmount:   maxAmount,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	s := Summary{MaxDate: "--", MinDate: "--", Chart: points}
	var sum float64
	var count int
	for _, p := range points {
		if p.Consumption <= 0 {
			continue
		}
		sum += p.Consumption
		count++
		if p.Consumption > s.Max {
			s.Max = p.Consumption
			s.MaxDate = p.Date
		}
		if s.Min == 0 || p.Consumption < s.Min {
			s.Min = p.Consumption
			s.MinDate = p.Date
		}
	}
	if count > 0 {
		s.Avg = sum / float64(count)
	}
	return s
}
