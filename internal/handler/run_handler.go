package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"labelsync/internal/model"
	"labelsync/internal/repository"
	"labelsync/internal/scheduler"
	"labelsync/internal/sse"

	"github.com/labstack/echo/v4"
)

const defaultRunsLimit = 20

// IngestTrigger is the part of the scheduler the admin API drives.
type IngestTrigger interface {
	RunSync(ctx context.Context) error
	Reschedule(interval time.Duration) error
	Interval() time.Duration
	Label() string
}

type RunHandler struct {
	job        IngestTrigger
	runRepo    repository.RunRepository
	sseManager *sse.SSEManager
	logger     echo.Logger
}

func NewRunHandler(job IngestTrigger, runRepo repository.RunRepository, sseManager *sse.SSEManager, logger echo.Logger) *RunHandler {
	return &RunHandler{
		job:        job,
		runRepo:    runRepo,
		sseManager: sseManager,
		logger:     logger,
	}
}

// ListRuns returns the most recent runs, newest first
func (h *RunHandler) ListRuns(c echo.Context) error {
	limit := defaultRunsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	runs, err := h.runRepo.FindRecent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list runs",
		})
	}

	return c.JSON(http.StatusOK, runs)
}

// GetRun returns a single run by id
func (h *RunHandler) GetRun(c echo.Context) error {
	run, err := h.runRepo.FindByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrRunNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Run not found",
		})
	}
	if err != nil {
		h.logger.Error("Failed to get run:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to get run",
		})
	}

	return c.JSON(http.StatusOK, run)
}

// TriggerRun runs the ingestor now and waits for it to finish
func (h *RunHandler) TriggerRun(c echo.Context) error {
	err := h.job.RunSync(c.Request().Context())
	if err != nil {
		status := statusForRunError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Manual run failed:", err)
		}
		return c.JSON(status, map[string]string{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"status": "completed",
		"label":  h.job.Label(),
	}
	if runs, err := h.runRepo.FindRecent(c.Request().Context(), 1); err == nil && len(runs) > 0 {
		response["run"] = runs[0]
	}
	return c.JSON(http.StatusOK, response)
}

// GetSchedule returns the polling interval
func (h *RunHandler) GetSchedule(c echo.Context) error {
	return c.JSON(http.StatusOK, scheduleResponse(h.job))
}

// UpdateSchedule re-registers the trigger with a new interval
func (h *RunHandler) UpdateSchedule(c echo.Context) error {
	var req struct {
		IntervalMinutes int `json:"interval_minutes"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	if req.IntervalMinutes <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "interval_minutes must be positive",
		})
	}

	if err := h.job.Reschedule(time.Duration(req.IntervalMinutes) * time.Minute); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, scheduleResponse(h.job))
}

// StreamEvents provides Server-Sent Events for run results
func (h *RunHandler) StreamEvents(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	clientChannel := h.sseManager.AddClient()
	defer h.sseManager.RemoveClient(clientChannel)

	// Send initial connection confirmation
	initEvent := map[string]interface{}{
		"type": "connection",
		"data": map[string]string{
			"message": "Connected to run updates",
			"label":   h.job.Label(),
		},
		"time": time.Now().Unix(),
	}

	initJSON, _ := json.Marshal(initEvent)
	fmt.Fprintf(c.Response(), "data: %s\n\n", initJSON)
	c.Response().Flush()

	for {
		select {
		case eventData, ok := <-clientChannel:
			if !ok {
				// Manager closed
				return nil
			}
			fmt.Fprintf(c.Response(), "data: %s\n\n", eventData)
			c.Response().Flush()
		case <-c.Request().Context().Done():
			// Client disconnected
			return nil
		}
	}
}

func scheduleResponse(job IngestTrigger) map[string]interface{} {
	return map[string]interface{}{
		"label":            job.Label(),
		"interval_minutes": int(job.Interval() / time.Minute),
	}
}

func statusForRunError(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
