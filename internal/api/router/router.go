package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/api/handler"
	"github.com/seanyjeong/pacapro-sub001/internal/api/middleware"
	"github.com/seanyjeong/pacapro-sub001/pkg/jwt"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎
func Setup(h *handler.Handler, jwtMgr *jwt.Manager, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 学生模块
		students := v1.Group("/students")
		{
			students.POST("", h.Student.Create)
			students.GET("/rest-ended", h.Student.ListRestEnded)
			students.PUT("/class-days/bulk", h.Student.BulkUpdateClassDays)
			students.GET("/:id", h.Student.Get)
			students.PUT("/:id", h.Student.Update)
			students.POST("/:id/rest", h.Student.Rest)
			students.POST("/:id/resume", h.Student.Resume)
			students.POST("/:id/withdraw", h.Student.Withdraw)
			students.DELETE("/:id/class-days-schedule", h.Student.CancelScheduledClassDays)
			students.GET("/:id/seasons", h.Student.ListSeasons)
			students.GET("/:id/schedule.ics", h.Export.ExportSchedule)

			students.GET("/:id/credits", h.Credit.List)
			students.POST("/:id/credits", h.Credit.CreateManual)
		}

		// 积分模块
		credits := v1.Group("/credits")
		{
			credits.PUT("/:id", h.Credit.Update)
			credits.DELETE("/:id", h.Credit.Delete)
			credits.POST("/:id/apply", h.Credit.Apply)
		}

		// 批处理任务（管理员）
		v1.POST("/jobs/:name/run", middleware.RoleAuth(middleware.RoleOwner, middleware.RoleAdmin), h.Job.Run)

		// 导出模块
		v1.GET("/export/credits", middleware.RoleAuth(middleware.RoleOwner, middleware.RoleAdmin), h.Export.ExportCredits)
	}

	return r
}
