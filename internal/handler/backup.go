package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/util"
)

// BackupHandler 备份管理接口
type BackupHandler struct {
	Backups       *repository.BackupRepo
	RetentionDays int
	Logger        *zap.Logger
}

// NewBackupHandler 构造函数
func NewBackupHandler(backups *repository.BackupRepo, retentionDays int, logger *zap.Logger) *BackupHandler {
	if retentionDays <= 0 {
		retentionDays = 14
	}
	return &BackupHandler{Backups: backups, RetentionDays: retentionDays, Logger: logger}
}

// List 列出全部备份表。
func (h *BackupHandler) List(c *gin.Context) {
	backups, err := h.Backups.List()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{"backups": backups})
}

// Create 手动创建备份。
func (h *BackupHandler) Create(c *gin.Context) {
	table, err := h.Backups.Create()
	if err != nil {
		h.Logger.Error("手动备份失败", zap.Error(err))
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info("手动备份完成", zap.String("table", table))
	util.OK(c, util.Fields{
		"backupId": table,
		"message":  "手动备份创建成功",
	})
}

type restoreReq struct {
	BackupTableName string `json:"backupTableName"`
}

// Restore 从备份恢复主表数据。
func (h *BackupHandler) Restore(c *gin.Context) {
	var req restoreReq
	if err := c.ShouldBindJSON(&req); err != nil || req.BackupTableName == "" {
		util.Fail(c, http.StatusBadRequest, "请提供备份来源")
		return
	}
	result, err := h.Backups.Restore(req.BackupTableName)
	if err != nil {
		h.Logger.Error("恢复备份失败", zap.String("table", req.BackupTableName), zap.Error(err))
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.Logger.Info("恢复备份完成",
		zap.String("table", req.BackupTableName),
		zap.Int64("restored", result.RestoredCount))
	util.OK(c, util.Fields{
		"message":           fmt.Sprintf("已从备份恢复 %d 条记录", result.RestoredCount),
		"restoredCount":     result.RestoredCount,
		"totalRecords":      result.TotalRecords,
		"backupTable":       result.BackupTable,
		"currentDataBackup": result.CurrentDataBackup,
	})
}

type deleteBackupsReq struct {
	BackupTableNames []string `json:"backupTableNames"`
}

// Delete 删除选中的备份表。
func (h *BackupHandler) Delete(c *gin.Context) {
	var req deleteBackupsReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.BackupTableNames) == 0 {
		util.Fail(c, http.StatusBadRequest, "请提供要删除的备份表名称")
		return
	}
	succeeded, failed := h.Backups.Delete(req.BackupTableNames)
	c.JSON(http.StatusOK, gin.H{
		"success":      len(succeeded) > 0,
		"message":      fmt.Sprintf("删除完成: 成功 %d 个，失败 %d 个", len(succeeded), len(failed)),
		"successCount": len(succeeded),
		"errorCount":   len(failed),
		"succeeded":    succeeded,
		"failed":       failed,
	})
}

type cleanupReq struct {
	RetentionDays int `json:"retentionDays"`
}

// Cleanup 清理超过保留期的备份表。
func (h *BackupHandler) Cleanup(c *gin.Context) {
	req := cleanupReq{RetentionDays: h.RetentionDays}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Fail(c, http.StatusBadRequest, "保留天数必须是1-365之间的数字")
			return
		}
	}
	if req.RetentionDays < 1 || req.RetentionDays > 365 {
		util.Fail(c, http.StatusBadRequest, "保留天数必须是1-365之间的数字")
		return
	}

	deleted, remaining, err := h.Backups.Cleanup(req.RetentionDays)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	util.OK(c, util.Fields{
		"message":        fmt.Sprintf("清理完成: 删除 %d 个过期备份，保留 %d 个", deleted, remaining),
		"deletedCount":   deleted,
		"remainingCount": remaining,
	})
}
