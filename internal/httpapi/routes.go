package httpapi

import (
	"survey-dialer/internal/auth"
	"survey-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the admin API under /api. With a nil manager the API is open,
// which config only allows outside production.
func (h Handlers) Register(r gin.IRouter, m *auth.Manager) {
	api := r.Group("/api")
	if m != nil {
		api.Use(auth.RequireAccessToken(m), rbac.RequireAnyRole(rbac.RoleOperator))
	}

	api.POST("/schedule", h.Schedule)
	api.GET("/tasks", h.ListTasks)
	api.GET("/tasks/:id", h.GetTask)
	api.GET("/reports/tasks", h.TaskReport)

	retry := []gin.HandlerFunc{h.RetryTask}
	if m != nil {
		retry = append([]gin.HandlerFunc{rbac.RequireAnyRole(rbac.RoleAdmin)}, retry...)
	}
	api.POST("/tasks/:id/retry", retry...)
}
