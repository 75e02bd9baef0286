package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
	"github.com/seanyjeong/pacapro-sub001/pkg/response"
)

// CreditHandler 积分模块 HTTP 处理器
type CreditHandler struct {
	creditSvc service.CreditService
	logger    *zap.Logger
}

// NewCreditHandler 创建 CreditHandler
func NewCreditHandler(creditSvc service.CreditService, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{creditSvc: creditSvc, logger: logger}
}

// List 学生积分列表
// GET /api/v1/students/:id/credits
func (h *CreditHandler) List(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	result, err := h.creditSvc.List(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// CreateManual 手动补偿积分
// POST /api/v1/students/:id/credits
func (h *CreditHandler) CreateManual(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.CreateManualCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	credit, err := h.creditSvc.CreateManual(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Created(c, credit)
}

// Update 修改积分
// PUT /api/v1/credits/:id
func (h *CreditHandler) Update(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.UpdateCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	credit, err := h.creditSvc.Update(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, credit)
}

// Delete 删除积分
// DELETE /api/v1/credits/:id
func (h *CreditHandler) Delete(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	if err := h.creditSvc.Delete(c.Request.Context(), academyID, c.Param("id")); err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, nil)
}

// Apply 抵扣到指定账期
// POST /api/v1/credits/:id/apply
func (h *CreditHandler) Apply(c *gin.Context) {
	academyID, ok := MustGetAcademyID(c)
	if !ok {
		return
	}

	var req dto.ApplyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.creditSvc.Apply(c.Request.Context(), academyID, c.Param("id"), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}
