package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the REST API on router
func RegisterRoutes(router gin.IRouter, h *Handlers) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	api := router.Group("/api")
	{
		api.GET("/tasks", h.ListTasks)
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks/:id", h.GetTask)
		api.PUT("/tasks/:id", h.UpdateTask)
		api.DELETE("/tasks/:id", h.DeleteTask)
		api.PUT("/tasks/:id/complete", h.CompleteTask)

		api.POST("/send-test-email", h.SendTestEmail)

		api.POST("/backups", h.CreateBackup)
		api.GET("/backups", h.ListBackups)
	}
}
