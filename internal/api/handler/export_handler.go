package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/service"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
	logger    *zap.Logger
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc, logger: logger}
}

// ExportCredits 导出当前学院的积分台账
// GET /api/v1/export/credits
func (h *ExportHandler) ExportCredits(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportCredits(c.Request.Context(), academyID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	attachment(c, filename, xlsxContentType, buf.Bytes())
}

// ExportSchedule 导出学生某月课表（iCalendar）
// GET /api/v1/students/:id/schedule.ics?year_month=YYYY-MM
func (h *ExportHandler) ExportSchedule(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportSchedule(c.Request.Context(), academyID, c.Param("id"), c.Query("year_month"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	attachment(c, filename, icsContentType, buf.Bytes())
}

// attachment 以附件形式返回文件，文件名按 RFC 5987 编码
func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, contentType, data)
}
