package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/models"
	"github.com/printhaus/printhaus-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type workerFixture struct {
	router  *gin.Engine
	db      *gorm.DB
	order   *models.Order
	job     *models.PrintJob
	printer *models.Printer
}

// setupWorkerTest seeds one paid order with its job claimed by one printer
// and exposes the worker routes, mirroring the real router wiring.
func setupWorkerTest(t *testing.T) *workerFixture {
	t.Helper()

	db := setupOrderTestDB(t)
	config.SetDB(db)

	notifier := services.NewMockNotificationService()
	dispatcher := services.NewDispatchService(db, notifier, 30*time.Second)
	services.SetDispatchService(dispatcher)
	t.Cleanup(func() { services.SetDispatchService(nil) })

	mock := services.NewMockS3Service()
	mock.SetAsMockForTesting()

	customer := models.User{Auth0ID: "auth0|worker", Name: "W", Email: "w@example.com", Role: "customer"}
	require.NoError(t, db.Create(&customer).Error)

	order := models.Order{
		OrderNumber:   "PH-WORK-1",
		CustomerID:    customer.ID,
		Status:        models.OrderStatePaid,
		OrderStatus:   models.OrderPending,
		PaymentStatus: models.PaymentCompleted,
		Amount:        7,
		FileS3Key:     "print-files/w.pdf",
		FileType:      "pdf",
		PaperSize:     "A4",
		Copies:        1,
		PrintStatus:   models.PrintPending,
	}
	require.NoError(t, db.Create(&order).Error)
	mock.AddFile(order.FileS3Key, []byte("doc"))

	job := models.PrintJob{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		FileS3Key:   order.FileS3Key,
		FileType:    "pdf",
		PaperSize:   "A4",
		Copies:      1,
		Status:      models.JobPending,
	}
	require.NoError(t, db.Create(&job).Error)
	require.NoError(t, db.Model(&order).Update("print_job_id", job.ID).Error)

	printer := models.Printer{
		Name:               "worker-printer",
		SupportedFileTypes: "pdf",
		SupportedSizes:     "A4",
		Status:             models.PrinterIdle,
		IsActive:           true,
	}
	require.NoError(t, db.Create(&printer).Error)

	require.Equal(t, 1, dispatcher.ProcessQueueOnce().Assigned)

	router := setupTestRouter()
	worker := router.Group("/worker")
	{
		worker.POST("/jobs/:id/heartbeat", WorkerHeartbeat)
		worker.POST("/jobs/:id/complete", WorkerCompleteJob)
		worker.POST("/jobs/:id/fail", WorkerFailJob)
		worker.GET("/jobs/:id/document", WorkerJobDocument)
		worker.POST("/printers/:id/ready", WorkerPrinterReady)
		worker.POST("/printers/:id/offline", WorkerPrinterOffline)
	}

	return &workerFixture{router: router, db: db, order: &order, job: &job, printer: &printer}
}

func (f *workerFixture) post(path string, body map[string]interface{}) *httptest.ResponseRecorder {
	var payload *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(http.MethodPost, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWorkerHeartbeat(t *testing.T) {
	f := setupWorkerTest(t)

	w := f.post("/worker/jobs/1/heartbeat", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var job models.PrintJob
	f.db.First(&job, f.job.ID)
	assert.NotNil(t, job.LastHeartbeatAt)
}

func TestWorkerCompleteJob(t *testing.T) {
	f := setupWorkerTest(t)

	w := f.post("/worker/jobs/1/complete", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var job models.PrintJob
	f.db.First(&job, f.job.ID)
	assert.Equal(t, models.JobCompleted, job.Status)

	var order models.Order
	f.db.First(&order, f.order.ID)
	assert.Equal(t, models.OrderStateDispatched, order.Status)
	assert.Equal(t, models.PrintPrinted, order.PrintStatus)

	// A repeated completion report conflicts instead of double-applying.
	w = f.post("/worker/jobs/1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	response := decodeResponse(t, w)
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, "JOB_NOT_ACTIVE", errorData["code"])
}

func TestWorkerFailJob(t *testing.T) {
	f := setupWorkerTest(t)

	w := f.post("/worker/jobs/1/fail", map[string]interface{}{"error": "out of toner"})
	assert.Equal(t, http.StatusOK, w.Code)

	var job models.PrintJob
	f.db.First(&job, f.job.ID)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, "out of toner", job.ErrorMessage)
	assert.Equal(t, 1, job.RetryCount)
}

func TestWorkerFailJob_DefaultsErrorText(t *testing.T) {
	f := setupWorkerTest(t)

	w := f.post("/worker/jobs/1/fail", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var job models.PrintJob
	f.db.First(&job, f.job.ID)
	assert.Equal(t, "worker reported failure without detail", job.ErrorMessage)
}

func TestWorkerJobDocument(t *testing.T) {
	f := setupWorkerTest(t)

	req, _ := http.NewRequest(http.MethodGet, "/worker/jobs/1/document", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Contains(t, data["url"], f.order.FileS3Key)
	assert.Equal(t, "pdf", data["file_type"])
}

func TestWorkerBadJobID(t *testing.T) {
	f := setupWorkerTest(t)

	w := f.post("/worker/jobs/notanumber/heartbeat", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkerPrinterReadyOffline(t *testing.T) {
	f := setupWorkerTest(t)

	// The fixture's printer is busy; it refuses to go offline.
	w := f.post("/worker/printers/1/offline", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Finish the job, then the printer can cycle.
	w = f.post("/worker/jobs/1/complete", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.post("/worker/printers/1/offline", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.post("/worker/printers/1/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var printer models.Printer
	f.db.First(&printer, f.printer.ID)
	assert.Equal(t, models.PrinterIdle, printer.Status)
}
