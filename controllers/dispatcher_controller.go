package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/services"
)

// StartDispatcherRequest carries the tick period for the dispatcher.
type StartDispatcherRequest struct {
	IntervalMs int `json:"interval_ms"`
}

// StartDispatcher handles POST /api/v1/admin/dispatcher/start. Starting a
// running dispatcher is a no-op.
func StartDispatcher(c *gin.Context) {
	dispatcher, ok := requireDispatcher(c)
	if !ok {
		return
	}

	var req StartDispatcherRequest
	_ = c.ShouldBindJSON(&req)
	if req.IntervalMs <= 0 {
		req.IntervalMs = 15000
	}

	dispatcher.Start(time.Duration(req.IntervalMs) * time.Millisecond)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"running": dispatcher.Running()},
	})
}

// StopDispatcher handles POST /api/v1/admin/dispatcher/stop. In-flight ticks
// are allowed to finish.
func StopDispatcher(c *gin.Context) {
	dispatcher, ok := requireDispatcher(c)
	if !ok {
		return
	}

	dispatcher.Stop()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"running": dispatcher.Running()},
	})
}

// TriggerDispatcher handles POST /api/v1/admin/dispatcher/trigger - runs one
// immediate queue pass out of band.
func TriggerDispatcher(c *gin.Context) {
	dispatcher, ok := requireDispatcher(c)
	if !ok {
		return
	}

	summary := dispatcher.ProcessQueueOnce()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}

// DispatcherStatus handles GET /api/v1/admin/dispatcher/status
func DispatcherStatus(c *gin.Context) {
	dispatcher, ok := requireDispatcher(c)
	if !ok {
		return
	}

	status, err := dispatcher.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to read queue status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}

// requireDispatcher enforces the operator role and resolves the process-wide
// dispatcher instance.
func requireDispatcher(c *gin.Context) (*services.DispatchService, bool) {
	if _, err := middleware.GetUserID(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}
	if middleware.GetRole(c) != "operator" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only operators can control the dispatcher",
			},
		})
		return nil, false
	}

	dispatcher := services.GetDispatchService()
	if dispatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Dispatcher is not available",
			},
		})
		return nil, false
	}

	return dispatcher, true
}
