package router

import (
	"net/http"

	"labelsync/internal/handler"
	"labelsync/internal/middleware"

	"github.com/labstack/echo/v4"
)

func SetupRoutes(e *echo.Echo, runHandler *handler.RunHandler, adminToken string) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Admin API routes
	api := e.Group("/api")
	api.Use(middleware.AdminTokenMiddleware(adminToken))

	api.GET("/runs", runHandler.ListRuns)
	api.POST("/runs", runHandler.TriggerRun)
	api.GET("/runs/:id", runHandler.GetRun)

	api.GET("/schedule", runHandler.GetSchedule)
	api.PUT("/schedule", runHandler.UpdateSchedule)

	// Run results via Server-Sent Events (SSE)
	api.GET("/events", runHandler.StreamEvents)
}
