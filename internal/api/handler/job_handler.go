package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
	"github.com/seanyjeong/pacapro-sub001/pkg/response"
)

// JobHandler 批处理任务手动触发
type JobHandler struct {
	jobSvc service.JobService
	logger *zap.Logger
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(jobSvc service.JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobSvc: jobSvc, logger: logger}
}

// Run 立即执行一次任务（管理员）
// POST /api/v1/jobs/:name/run
func (h *JobHandler) Run(c *gin.Context) {
	var req dto.RunJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	name := c.Param("name")
	h.logger.Info("手动触发任务",
		zap.String("job", name),
		zap.String("user_id", c.GetString("user_id")),
		zap.Bool("dry_run", req.DryRun),
	)

	summary, err := h.jobSvc.Run(c.Request.Context(), name, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, summary)
}
