package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
	"github.com/seanyjeong/pacapro-sub001/pkg/response"
)

// StudentHandler 学生模块 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
	logger     *zap.Logger
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService, logger *zap.Logger) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc, logger: logger}
}

// Create 登记学生
// POST /api/v1/students
func (h *StudentHandler) Create(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.studentSvc.Create(c.Request.Context(), academyID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Created(c, result)
}

// Get 学生详情
// GET /api/v1/students/:id
func (h *StudentHandler) Get(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	student, err := h.studentSvc.Get(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, student)
}

// Update 修改学生信息
// PUT /api/v1/students/:id
func (h *StudentHandler) Update(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.studentSvc.Update(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// Rest 休学
// POST /api/v1/students/:id/rest
func (h *StudentHandler) Rest(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.RestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.studentSvc.ProcessRest(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// Resume 复学，请求体可省略
// POST /api/v1/students/:id/resume
func (h *StudentHandler) Resume(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.ResumeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.studentSvc.Resume(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// Withdraw 退学或毕业，请求体可省略
// POST /api/v1/students/:id/withdraw
func (h *StudentHandler) Withdraw(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.studentSvc.Withdraw(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// ListRestEnded 休学期满仍未复学的学生
// GET /api/v1/students/rest-ended
func (h *StudentHandler) ListRestEnded(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	list, err := h.studentSvc.ListRestEnded(c.Request.Context(), academyID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// BulkUpdateClassDays 批量修改上课模式
// PUT /api/v1/students/class-days/bulk
func (h *StudentHandler) BulkUpdateClassDays(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.BulkClassDaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.studentSvc.BulkUpdateClassDays(c.Request.Context(), academyID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// CancelScheduledClassDays 取消预约的上课模式变更
// DELETE /api/v1/students/:id/class-days-schedule
func (h *StudentHandler) CancelScheduledClassDays(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	student, err := h.studentSvc.CancelScheduledClassDays(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, student)
}

// ListSeasons 学生的季节课报名
// GET /api/v1/students/:id/seasons
func (h *StudentHandler) ListSeasons(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	list, err := h.studentSvc.ListSeasons(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, list)
}
