package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/services"
)

// ReconcileRequest carries the grace window for a manual reconciliation run.
type ReconcileRequest struct {
	MinAgeMinutes int `json:"min_age_minutes"`
}

// TriggerReconciliation handles POST /api/v1/admin/reconcile - the manual
// hook for the scheduled reconciliation pass, used for testing and support.
func TriggerReconciliation(c *gin.Context) {
	if _, err := middleware.GetUserID(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}
	if middleware.GetRole(c) != "operator" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only operators can trigger reconciliation",
			},
		})
		return
	}

	reconciler := services.GetReconciliationService()
	if reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Reconciliation is not available",
			},
		})
		return
	}

	var req ReconcileRequest
	_ = c.ShouldBindJSON(&req)
	if req.MinAgeMinutes <= 0 {
		req.MinAgeMinutes = 5
	}

	summary, err := reconciler.Reconcile(c.Request.Context(),
		time.Duration(req.MinAgeMinutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RECONCILE_FAILED",
				"message": "Reconciliation pass failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}
