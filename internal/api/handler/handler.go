package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/service"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
	"github.com/seanyjeong/pacapro-sub001/pkg/response"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Student *StudentHandler
	Credit  *CreditHandler
	Job     *JobHandler
	Export  *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Student: NewStudentHandler(svc.Student, logger),
		Credit:  NewCreditHandler(svc.Credit, logger),
		Job:     NewJobHandler(svc.Job, logger),
		Export:  NewExportHandler(svc.Export, logger),
	}
}

// handleError 按错误类别映射 HTTP 状态码
// 存储层等未分类错误只记日志，响应统一为 500
func handleError(c *gin.Context, logger *zap.Logger, err error) {
	if appErr, ok := pkgerrors.As(err); ok {
		switch appErr.Kind {
		case pkgerrors.KindValidation:
			response.BadRequest(c, appErr.Code, appErr.Message)
			return
		case pkgerrors.KindNotFound:
			response.NotFound(c, appErr.Code, appErr.Message)
			return
		case pkgerrors.KindConflict:
			response.Conflict(c, appErr.Code, appErr.Message)
			return
		case pkgerrors.KindSecurity:
			logger.Warn("拒绝跨学院访问",
				zap.String("academy_id", c.GetString("academy_id")),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			response.Forbidden(c, appErr.Code, appErr.Message)
			return
		}
	}

	switch {
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 10009, pkgerrors.ErrOptimisticLock.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, 10004, "记录不存在")
	default:
		logger.Error("请求处理失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		_ = c.Error(err)
		response.InternalError(c)
	}
}
