package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/models"
	"github.com/printhaus/printhaus-api/services"
)

// PrintActionRequest is the shared payload of the admin print actions.
type PrintActionRequest struct {
	Reason    string `json:"reason"`
	Confirmed bool   `json:"confirmed"`
}

// ReprintOrder handles POST /api/v1/admin/orders/:id/print/reprint -
// requeues a printed or failed order for another print run. Rejected while a
// worker holds the job, override flag or not.
func ReprintOrder(c *gin.Context) {
	actor, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}
	var req PrintActionRequest
	_ = c.ShouldBindJSON(&req)

	if result := services.GuardReprint(order); !result.Allowed {
		rejectTransition(c, result)
		return
	}
	if result := services.ValidatePrintTransition(order.PrintStatus, models.PrintPending, true); !result.Allowed {
		rejectTransition(c, result)
		return
	}

	db := config.GetDB()
	prev := order.PrintStatus

	res := db.Model(&models.Order{}).
		Where("id = ? AND print_status = ?", order.ID, prev).
		Updates(map[string]interface{}{
			"print_status":       models.PrintPending,
			"print_started_at":   nil,
			"print_completed_at": nil,
			"printer_id":         nil,
			"printer_name":       "",
			"printing_by":        "",
			"print_error":        "",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		conflictResponse(c)
		return
	}

	// Reset the job for a fresh run. Retries start over; the old error is
	// kept in the audit trail, not on the job.
	db.Model(&models.PrintJob{}).
		Where("order_id = ? AND status IN ?", order.ID,
			[]models.JobStatus{models.JobCompleted, models.JobFailed}).
		Updates(map[string]interface{}{
			"status":        models.JobPending,
			"retry_count":   0,
			"error_message": "",
			"printer_id":    nil,
			"started_at":    nil,
			"completed_at":  nil,
		})

	services.RecordPrintAction(db, "reprint", order.ID, order.PrintJobID, actor,
		string(prev), string(models.PrintPending), req.Reason)

	if d := services.GetDispatchService(); d != nil {
		go d.ProcessQueueOnce()
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"print_status": models.PrintPending}})
}

// ResetPrinting handles POST /api/v1/admin/orders/:id/print/reset - manually
// returns an in-progress job to pending and frees its printer. This is the
// escape for a wedged worker an operator does not want to wait out.
func ResetPrinting(c *gin.Context) {
	actor, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}
	var req PrintActionRequest
	_ = c.ShouldBindJSON(&req)

	if result := services.ValidatePrintTransition(order.PrintStatus, models.PrintPending, false); !result.Allowed {
		rejectTransition(c, result)
		return
	}

	db := config.GetDB()
	prev := order.PrintStatus
	printerID := order.PrinterID

	res := db.Model(&models.Order{}).
		Where("id = ? AND print_status = ?", order.ID, prev).
		Updates(map[string]interface{}{
			"print_status":     models.PrintPending,
			"print_started_at": nil,
			"printer_id":       nil,
			"printer_name":     "",
			"printing_by":      "",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		conflictResponse(c)
		return
	}

	db.Model(&models.PrintJob{}).
		Where("order_id = ? AND status = ?", order.ID, models.JobPrinting).
		Updates(map[string]interface{}{
			"status":     models.JobPending,
			"printer_id": nil,
			"started_at": nil,
		})

	services.ReleasePrinter(db, printerID)

	services.RecordPrintAction(db, "reset_printing", order.ID, order.PrintJobID, actor,
		string(prev), string(models.PrintPending), req.Reason)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"print_status": models.PrintPending}})
}

// ForcePrinted handles POST /api/v1/admin/orders/:id/print/force-printed -
// force-completes a job regardless of its state. Requires an explicit
// confirmation and a reason, because it can diverge the record from what the
// printer physically did.
func ForcePrinted(c *gin.Context) {
	actor, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}
	var req PrintActionRequest
	_ = c.ShouldBindJSON(&req)

	if result := services.GuardForcePrinted(req.Reason, req.Confirmed); !result.Allowed {
		rejectTransition(c, result)
		return
	}
	if result := services.ValidatePrintTransition(order.PrintStatus, models.PrintPrinted, true); !result.Allowed {
		rejectTransition(c, result)
		return
	}

	db := config.GetDB()
	prev := order.PrintStatus
	printerID := order.PrinterID

	res := db.Model(&models.Order{}).
		Where("id = ? AND print_status = ?", order.ID, prev).
		Updates(map[string]interface{}{
			"print_status":       models.PrintPrinted,
			"print_completed_at": nowPtr(),
			"printing_by":        "",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		conflictResponse(c)
		return
	}

	db.Model(&models.PrintJob{}).
		Where("order_id = ? AND status <> ?", order.ID, models.JobCompleted).
		Updates(map[string]interface{}{
			"status":       models.JobCompleted,
			"completed_at": nowPtr(),
		})

	services.ReleasePrinter(db, printerID)

	services.RecordPrintAction(db, "force_printed", order.ID, order.PrintJobID, actor,
		string(prev), string(models.PrintPrinted), req.Reason)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"print_status": models.PrintPrinted}})
}

// RemoveFromQueue handles POST /api/v1/admin/orders/:id/print/remove -
// drops an unpaid order out of the print queue. Blocked once the order is
// paid: a paid order is re-queued or refunded, never silently forgotten.
func RemoveFromQueue(c *gin.Context) {
	actor, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}
	var req PrintActionRequest
	_ = c.ShouldBindJSON(&req)

	if result := services.GuardRemoveFromQueue(order); !result.Allowed {
		rejectTransition(c, result)
		return
	}

	db := config.GetDB()
	prev := order.PrintStatus

	res := db.Model(&models.Order{}).
		Where("id = ? AND print_status = ? AND payment_status <> ?",
			order.ID, prev, models.PaymentCompleted).
		Updates(map[string]interface{}{
			"print_status": models.PrintNone,
			"printer_id":   nil,
			"printer_name": "",
			"printing_by":  "",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		conflictResponse(c)
		return
	}

	// Jobs are never deleted; the removal is recorded as a terminal failure.
	db.Model(&models.PrintJob{}).
		Where("order_id = ? AND status IN ?", order.ID,
			[]models.JobStatus{models.JobPending, models.JobFailed}).
		Updates(map[string]interface{}{
			"status":        models.JobFailed,
			"error_message": "removed from queue by operator",
		})

	services.RecordPrintAction(db, "remove_from_queue", order.ID, order.PrintJobID, actor,
		string(prev), string(models.PrintNone), req.Reason)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"print_status": models.PrintNone}})
}

// OverrideOrderState handles POST /api/v1/admin/orders/:id/state - applies
// an order-state correction through the admin override allow-list.
func OverrideOrderState(c *gin.Context) {
	actor, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}

	var req struct {
		State  models.OrderState `json:"state" binding:"required"`
		Reason string            `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A target state and a reason are required",
			},
		})
		return
	}

	db := config.GetDB()
	prev := order.Status

	result, err := services.ApplyOrderTransition(db, order, req.State, true)
	if err != nil {
		conflictResponse(c)
		return
	}
	if !result.Allowed {
		rejectTransition(c, result)
		return
	}

	services.RecordPrintAction(db, "override_order_state", order.ID, order.PrintJobID, actor,
		string(prev), string(req.State), req.Reason)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
}

// ListPrintActions handles GET /api/v1/admin/orders/:id/print/actions -
// returns the audit trail for one order, newest first.
func ListPrintActions(c *gin.Context) {
	_, order, ok := requireOperatorAndOrder(c)
	if !ok {
		return
	}

	db := config.GetDB()
	var actions []models.PrintActionLog
	if err := db.Where("order_id = ?", order.ID).Order("created_at DESC").Find(&actions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load print actions",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": actions})
}

// requireOperatorAndOrder enforces the operator role and loads the :id
// order. Responses for the failure cases are written here.
func requireOperatorAndOrder(c *gin.Context) (string, *models.Order, bool) {
	actor, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return "", nil, false
	}

	if middleware.GetRole(c) != "operator" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only operators can perform print actions",
			},
		})
		return "", nil, false
	}

	db := config.GetDB()
	var order models.Order
	if err := db.First(&order, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return "", nil, false
	}

	return actor, &order, true
}

func rejectTransition(c *gin.Context, result services.TransitionResult) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "INVALID_TRANSITION",
			"message": result.Reason,
		},
	})
}

func nowPtr() *time.Time {
	now := time.Now()
	return &now
}

func conflictResponse(c *gin.Context) {
	c.JSON(http.StatusConflict, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "CONFLICT",
			"message": "Order changed concurrently, try again",
		},
	})
}
