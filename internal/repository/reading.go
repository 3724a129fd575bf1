package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/reeedirect/billing/internal/models"
)

// ReadingRepo 查询记录的持久化访问。
type ReadingRepo struct {
	db *gorm.DB
}

// NewReadingRepo creates a repository over db.
func NewReadingRepo(db *gorm.DB) *ReadingRepo {
	return &ReadingRepo{db: db}
}

// Insert 保存一条查询结果。
func (r *ReadingRepo) Insert(amount float64, queryTime string, isAuto bool) (*models.Reading, error) {
	rec := &models.Reading{
		RemainingAmount: amount,
		QueryTime:       queryTime,
		IsAuto:          boolToInt(isAuto),
	}
	if err := r.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("insert reading: %w", err)
	}
	return rec, nil
}

// LatestSince 返回query_time不早于since的最近一条记录，没有返回nil。
func (r *ReadingRepo) LatestSince(since string) (*models.Reading, error) {
	var rec models.Reading
	err := r.db.Where("query_time >= ?", since).
		Order("query_time DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading since %s: %w", since, err)
	}
	return &rec, nil
}

// ByDate 某日期的全部记录，按时间升序。
func (r *ReadingRepo) ByDate(date string) ([]models.Reading, error) {
	var recs []models.Reading
	err := r.db.Where("DATE(query_time) = ?", date).
		Order("query_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("readings of %s: %w", date, err)
	}
	return recs, nil
}

// ByDateDesc 某日期的全部记录，按时间降序（供列表展示）。
func (r *ReadingRepo) ByDateDesc(date string) ([]models.Reading, error) {
	var recs []models.Reading
	err := r.db.Where("DATE(query_time) = ?", date).
		Order("query_time DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("readings of %s: %w", date, err)
	}
	return recs, nil
}

// SinceDate 起始日期（含）以来的全部记录，按时间升序。
func (r *ReadingRepo) SinceDate(startDate string) ([]models.Reading, error) {
	var recs []models.Reading
	err := r.db.Where("DATE(query_time) >= ?", startDate).
		Order("query_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("readings since %s: %w", startDate, err)
	}
	return recs, nil
}

// All 全部记录，按时间升序。
func (r *ReadingRepo) All() ([]models.Reading, error) {
	var recs []models.Reading
	if err := r.db.Order("query_time ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("all readings: %w", err)
	}
	return recs, nil
}

// Recent 最近limit条记录，按时间降序。
func (r *ReadingRepo) Recent(limit int) ([]models.Reading, error) {
	var recs []models.Reading
	err := r.db.Order("query_time DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	return recs, nil
}

// LastAuto 最近一条自动查询记录，没有返回nil。
func (r *ReadingRepo) LastAuto() (*models.Reading, error) {
	var rec models.Reading
	err := r.db.Where("is_auto = 1").
		Order("query_time DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last auto reading: %w", err)
	}
	return &rec, nil
}

// DailySummary 单日聚合行（供历史汇总视图）
type DailySummary struct {
	Date           string   `json:"date"`
	AvgAmount      *float64 `json:"avg_amount"`
	MinAmount      *float64 `json:"min_amount"`
	MaxAmount      *float64 `json:"max_amount"`
	QueryCount     int64    `json:"query_count"`
	FirstQueryTime *string  `json:"first_query_time"`
	LastQueryTime  *string  `json:"last_query_time"`
}

// DailySummaries 按日聚合，日期降序。startDate为空表示不限起始，
// limit<=0表示不限条数。
func (r *ReadingRepo) DailySummaries(startDate string, limit int) ([]DailySummary, error) {
	q := r.db.Model(&models.Reading{}).
		Select(`DATE(query_time) as date,
			AVG(remaining_amount) as avg_amount,
			MIN(remaining_amount) as min_amount,
			MAX(remaining_amount) as max_amount,
			COUNT(*) as query_count,
			MIN(query_time) as first_query_time,
			MAX(query_time) as last_query_time`).
		Group("DATE(query_time)").
		Order("date DESC")
	if startDate != "" {
		q = q.Where("DATE(query_time) >= ?", startDate)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []DailySummary
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("daily summaries: %w", err)
	}
	return rows, nil
}

// DeleteRange 删除入库时间在[startDate, endDate]内的记录，返回删除数。
func (r *ReadingRepo) DeleteRange(startDate, endDate string) (int64, error) {
	res := r.db.Where("DATE(timestamp) >= ? AND DATE(timestamp) <= ?", startDate, endDate).
		Delete(&models.Reading{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete range: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll 清空全部记录。
func (r *ReadingRepo) DeleteAll() (int64, error) {
	res := r.db.Where("1 = 1").Delete(&models.Reading{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete all: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteIDs 删除指定ID的记录。
func (r *ReadingRepo) DeleteIDs(ids []uint) (int64, error) {
	res := r.db.Delete(&models.Reading{}, ids)
	if res.Error != nil {
		return 0, fmt.Errorf("delete ids: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteBefore 删除入库时间早于beforeDate 00:00:00的记录。
func (r *ReadingRepo) DeleteBefore(beforeDate string) (int64, error) {
	res := r.db.Where("timestamp < ?", beforeDate+" 00:00:00").
		Delete(&models.Reading{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete before: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AggStats 记录聚合统计
type AggStats struct {
	TotalQueries int64    `json:"total_queries"`
	MinAmount    *float64 `json:"min_amount"`
	MaxAmount    *float64 `json:"max_amount"`
	AvgAmount    *float64 `json:"avg_amount"`
	FirstQuery   *string  `json:"first_query"`
	LastQuery    *string  `json:"last_query"`
}

// Stats 全量聚合统计。
func (r *ReadingRepo) Stats() (*AggStats, error) {
	var s AggStats
	err := r.db.Model(&models.Reading{}).
		Select(`COUNT(*) as total_queries,
			MIN(remaining_amount) as min_amount,
			MAX(remaining_amount) as max_amount,
			AVG(remaining_amount) as avg_amount,
			MIN(query_time) as first_query,
			MAX(query_time) as last_query`).
		Scan(&s).Error
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &s, nil
}

// StatsByDate 某日期的聚合统计。
func (r *ReadingRepo) StatsByDate(date string) (*AggStats, error) {
	var s AggStats
	err := r.db.Model(&models.Reading{}).
		Select(`COUNT(*) as total_queries,
			MIN(remaining_amount) as min_amount,
			MAX(remaining_amount) as max_amount,
			AVG(remaining_amount) as avg_amount,
			MIN(query_time) as first_query,
			MAX(query_time) as last_query`).
		Where("DATE(query_time) = ?", date).
		Scan(&s).Error
	if err != nil {
		return nil, fmt.Errorf("stats of %s: %w", date, err)
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
