package router

import (
	"github.com/gin-gonic/gin"

	"github.com/unicodeveloper/supplement-research/internal/handlers"
)

func NewRouter(h *handlers.Handler, archiveDir string) *gin.Engine {
	r := gin.Default()

	r.Static("/archives", archiveDir)

	api := r.Group("/api")
	{
		api.POST("/supplement-research", h.CreateResearch)
		api.GET("/supplement-research/status", h.Status)
		api.POST("/supplement-research/cancel", h.Cancel)
		api.POST("/supplement-research/archive", h.Archive)

		api.GET("/auth/session", h.Session)
		api.GET("/form-values/restore", h.RestoreFormValues)
	}

	r.GET("/auth/login", h.Login)
	r.GET("/auth/callback", h.Callback)
	r.POST("/auth/logout", h.Logout)

	r.GET("/healthz", h.Health)

	return r
}
