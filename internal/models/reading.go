package models

import "time"

// Reading 一次电费余额查询结果（对应 electricity_records 表）。
// 入库后不再修改，只会被用户显式清空或恢复备份时整表替换。
type Reading struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time `gorm:"autoCreateTime" json:"timestamp"`
	RemainingAmount float64   `gorm:"column:remaining_amount;not null" json:"remaining_amount"`
	QueryTime       string    `gorm:"column:query_time;size:19;index" json:"query_time"` // 北京时间 "YYYY-MM-DD HH:MM:SS"
	IsAuto          int       `gorm:"column:is_auto;default:0" json:"is_auto"`           // 1=定时查询 0=手动查询
}

// TableName keeps the legacy table name used by the dashboard.
func (Reading) TableName() string {
	return "electricity_records"
}
