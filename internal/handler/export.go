package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/timeutil"
	"github.com/reeedirect/billing/internal/util"
)

// ExportHandler 记录导出接口
type ExportHandler struct {
	Repo   *repository.ReadingRepo
	Logger *zap.Logger
}

// NewExportHandler 构造函数
func NewExportHandler(repo *repository.ReadingRepo, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{Repo: repo, Logger: logger}
}

// ExportCSV 导出全部记录为CSV
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	recs, err := h.Repo.All()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, "查询失败")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"electricity_%s.csv\"",
		timeutil.Now().Format("20060102")))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// UTF-8 BOM（让 Excel 正确识别中文）
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer.Write([]string{"序号", "剩余电量(度)", "查询时间", "查询方式"})
	for _, rec := range recs {
		writer.Write([]string{
			strconv.FormatUint(uint64(rec.ID), 10),
			strconv.FormatFloat(rec.RemainingAmount, 'f', 2, 64),
			rec.QueryTime,
			queryKindText(rec.IsAuto),
		})
	}
}

// ExportXLSX 导出全部记录为XLSX
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	recs, err := h.Repo.All()
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, "查询失败")
		return
	}

	f := excelize.NewFile()
	sheetName := "电费记录"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Fail(c, http.StatusInternalServerError, "创建工作表失败")
		return
	}
	f.SetActiveSheet(index)

	headers := []string{"序号", "剩余电量(度)", "查询时间", "查询方式"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for idx, rec := range recs {
		row := idx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), rec.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), rec.RemainingAmount)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), rec.QueryTime)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), queryKindText(rec.IsAuto))
	}

	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 14)
	f.SetColWidth(sheetName, "C", "C", 22)
	f.SetColWidth(sheetName, "D", "D", 10)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"electricity_%s.xlsx\"",
		timeutil.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		h.Logger.Error("导出XLSX失败", zap.Error(err))
	}
}

func queryKindText(isAuto int) string {
	if isAuto == 1 {
		return "自动"
	}
	return "手动"
}
