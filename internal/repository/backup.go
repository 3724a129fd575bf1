package repository

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/reeedirect/billing/internal/timeutil"
)

const backupPrefix = "electricity_records_backup_"

// 备份表名必须是本系统生成的格式，防止把用户输入拼进SQL
var backupTableRe = regexp.MustCompile(`^electricity_records_backup_\d{4}_\d{2}_\d{2}_\d{2}_\d{2}_\d{2}$`)

// BackupRepo 主表的快照备份管理。备份以同库内
// electricity_records_backup_YYYY_MM_DD_HH_MM_SS 表的形式保存。
type BackupRepo struct {
	db *gorm.DB
}

// NewBackupRepo creates a backup manager over db.
func NewBackupRepo(db *gorm.DB) *BackupRepo {
	return &BackupRepo{db: db}
}

// BackupInfo 一个备份表的描述
type BackupInfo struct {
	TableName   string `json:"tableName"`
	Timestamp   string `json:"timestamp"`
	DisplayName string `json:"displayName"`
}

// Create 为当前主表建立快照，返回时间戳标识。
func (b *BackupRepo) Create() (string, error) {
	stamp := strings.NewReplacer("-", "_", " ", "_", ":", "_").Replace(timeutil.NowString())
	table := backupPrefix + stamp
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM electricity_records", table)
	if err := b.db.Exec(sql).Error; err != nil {
		return "", fmt.Errorf("create backup %s: %w", table, err)
	}
	return stamp, nil
}

// List 返回全部备份表，按时间倒序。
func (b *BackupRepo) List() ([]BackupInfo, error) {
	var names []string
	err := b.db.Raw(
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ? ORDER BY name DESC",
		backupPrefix+"%",
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(names))
	for _, name := range names {
		info := BackupInfo{TableName: name, DisplayName: name}
		if stamp := strings.TrimPrefix(name, backupPrefix); stamp != name {
			display := stampToDisplay(stamp)
			info.Timestamp = display
			info.DisplayName = display
		}
		backups = append(backups, info)
	}
	return backups, nil
}

// RestoreResult 恢复操作的结果
type RestoreResult struct {
	RestoredCount     int64  `json:"restoredCount"`
	TotalRecords      int64  `json:"totalRecords"`
	BackupTable       string `json:"backupTable"`
	CurrentDataBackup string `json:"currentDataBackup"`
}

// Restore 用备份表整体替换主表。恢复前先为当前数据建一个快照。
func (b *BackupRepo) Restore(table string) (*RestoreResult, error) {
	if !backupTableRe.MatchString(table) {
		return nil, fmt.Errorf("invalid backup table name: %s", table)
	}
	exists, err := b.tableExists(table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("backup table %s not found", table)
	}

	currentStamp, err := b.Create()
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{BackupTable: table, CurrentDataBackup: stampToDisplay(currentStamp)}
	err = b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM electricity_records").Error; err != nil {
			return fmt.Errorf("clear main table: %w", err)
		}
		res := tx.Exec(fmt.Sprintf(
			`INSERT INTO electricity_records (id, timestamp, remaining_amount, query_time, is_auto)
			 SELECT id, timestamp, remaining_amount, query_time, is_auto FROM %s`, table))
		if res.Error != nil {
			return fmt.Errorf("restore from %s: %w", table, res.Error)
		}
		result.RestoredCount = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := b.db.Raw("SELECT COUNT(*) FROM electricity_records").Scan(&result.TotalRecords).Error; err != nil {
		return nil, fmt.Errorf("verify restore: %w", err)
	}
	return result, nil
}

// Delete 删除指定备份表，逐个处理并汇报结果。
func (b *BackupRepo) Delete(tables []string) (succeeded, failed []string) {
	for _, table := range tables {
		if !backupTableRe.MatchString(table) {
			failed = append(failed, table)
			continue
		}
		exists, err := b.tableExists(table)
		if err != nil || !exists {
			failed = append(failed, table)
			continue
		}
		if err := b.db.Exec("DROP TABLE " + table).Error; err != nil {
			failed = append(failed, table)
			continue
		}
		succeeded = append(succeeded, table)
	}
	return succeeded, failed
}

// Cleanup 删除超过保留天数的备份表，返回删除数与剩余数。
func (b *BackupRepo) Cleanup(retentionDays int) (deleted, remaining int, err error) {
	backups, err := b.List()
	if err != nil {
		return 0, 0, err
	}

	cutoff := strings.NewReplacer("-", "_", " ", "_", ":", "_").
		Replace(timeutil.Now().AddDate(0, 0, -retentionDays).Format(timeutil.DateTimeLayout))

	for _, backup := range backups {
		stamp := strings.TrimPrefix(backup.TableName, backupPrefix)
		// 时间戳格式固定，字符串比较即时间比较
		if stamp >= cutoff {
			remaining++
			continue
		}
		if !backupTableRe.MatchString(backup.TableName) {
			remaining++
			continue
		}
		if err := b.db.Exec("DROP TABLE " + backup.TableName).Error; err != nil {
			remaining++
			continue
		}
		deleted++
	}
	return deleted, remaining, nil
}

func (b *BackupRepo) tableExists(table string) (bool, error) {
	var count int64
	err := b.db.Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", table,
	).Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// stampToDisplay 2025_01_15_14_30_25 -> 2025-01-15 14:30:25
func stampToDisplay(stamp string) string {
	parts := strings.Split(stamp, "_")
	if len(parts) != 6 {
		return stamp
	}
	return fmt.Sprintf("%s-%s-%s %s:%s:%s", parts[0], parts[1], parts[2], parts[3], parts[4], parts[5])
}
