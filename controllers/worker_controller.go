package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/models"
	"github.com/printhaus/printhaus-api/services"
)

// The worker routes are the report-back surface of the print-delivery
// worker: heartbeats while a job runs, a completion or failure report when
// it ends, and printer readiness changes. All state mutation is delegated to
// the dispatch service, which owns job and printer status.

// WorkerHeartbeat handles POST /api/v1/worker/jobs/:id/heartbeat
func WorkerHeartbeat(c *gin.Context) {
	jobID, dispatcher, ok := workerJobContext(c)
	if !ok {
		return
	}

	if err := dispatcher.ReportHeartbeat(jobID); err != nil {
		workerJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WorkerCompleteJob handles POST /api/v1/worker/jobs/:id/complete
func WorkerCompleteJob(c *gin.Context) {
	jobID, dispatcher, ok := workerJobContext(c)
	if !ok {
		return
	}

	if err := dispatcher.ReportCompleted(jobID); err != nil {
		workerJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WorkerFailJob handles POST /api/v1/worker/jobs/:id/fail
func WorkerFailJob(c *gin.Context) {
	jobID, dispatcher, ok := workerJobContext(c)
	if !ok {
		return
	}

	var req struct {
		Error string `json:"error"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Error == "" {
		req.Error = "worker reported failure without detail"
	}

	if err := dispatcher.ReportFailed(jobID, req.Error); err != nil {
		workerJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WorkerJobDocument handles GET /api/v1/worker/jobs/:id/document - resolves
// a presigned URL for the job's print document.
func WorkerJobDocument(c *gin.Context) {
	jobID, _, ok := workerJobContext(c)
	if !ok {
		return
	}

	db := config.GetDB()
	var job models.PrintJob
	if err := db.First(&job, jobID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "Print job not found",
			},
		})
		return
	}

	store := services.GetS3Service()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Document storage is not available",
			},
		})
		return
	}

	url, err := store.GetDocumentURL(job.FileS3Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRESIGN_FAILED",
				"message": "Failed to resolve the document URL",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"url": url, "file_type": job.FileType},
	})
}

// WorkerPrinterReady handles POST /api/v1/worker/printers/:id/ready
func WorkerPrinterReady(c *gin.Context) {
	printerID, dispatcher, ok := workerPrinterContext(c)
	if !ok {
		return
	}

	if err := dispatcher.MarkPrinterReady(printerID); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRINTER_NOT_READY",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WorkerPrinterOffline handles POST /api/v1/worker/printers/:id/offline
func WorkerPrinterOffline(c *gin.Context) {
	printerID, dispatcher, ok := workerPrinterContext(c)
	if !ok {
		return
	}

	if err := dispatcher.MarkPrinterOffline(printerID); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRINTER_BUSY",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func workerJobContext(c *gin.Context) (uint, *services.DispatchService, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid job id",
			},
		})
		return 0, nil, false
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
		return 0, nil, false
	}

	return uint(id), dispatcher, true
}

func workerPrinterContext(c *gin.Context) (uint, *services.DispatchService, bool) {
	return workerJobContext(c)
}

func workerJobError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrJobNotActive) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "JOB_NOT_ACTIVE",
				"message": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "WORKER_REPORT_FAILED",
			"message": "Failed to record the worker report",
		},
	})
}
