// Package timeutil 提供北京时间相关的时间处理。
// 查询记录中的 query_time 一律为北京时间的字符串形式，
// 与门户侧的计费口径保持一致。
package timeutil

import "time"

const (
	// DateTimeLayout query_time 的存储格式
	DateTimeLayout = "2006-01-02 15:04:05"
	// DateLayout 日期格式
	DateLayout = "2006-01-02"
)

var beijing *time.Location

func init() {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		// 容器内可能没有tzdata，北京时间无夏令时，固定偏移即可
		loc = time.FixedZone("CST", 8*3600)
	}
	beijing = loc
}

// Location returns the Beijing timezone.
func Location() *time.Location {
	return beijing
}

// Now 当前北京时间
func Now() time.Time {
	return time.Now().In(beijing)
}

// NowString 当前北京时间 "YYYY-MM-DD HH:MM:SS"
func NowString() string {
	return Now().Format(DateTimeLayout)
}

// Today 当前北京日期 "YYYY-MM-DD"
func Today() string {
	return Now().Format(DateLayout)
}

// DaysAgo N天前的北京日期 "YYYY-MM-DD"
func DaysAgo(days int) string {
	return Now().AddDate(0, 0, -days).Format(DateLayout)
}

// Parse 解析 "YYYY-MM-DD HH:MM:SS" 为北京时间
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(DateTimeLayout, s, beijing)
}

// ParseDate 解析 "YYYY-MM-DD" 为北京时间当天零点
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, beijing)
}
