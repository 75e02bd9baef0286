package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seanyjeong/pacapro-sub001/pkg/response"
)

// MustGetAcademyID 从 Gin 上下文中提取当前学院。
// JWT 中间件未注入 academy_id 时写入 401 响应并返回 false，调用方应直接 return。
func MustGetAcademyID(c *gin.Context) (string, bool) {
	v, exists := c.Get("academy_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// bindError 请求体解析或校验失败
func bindError(c *gin.Context, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
}
