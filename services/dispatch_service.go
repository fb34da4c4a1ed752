package services

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/printhaus/printhaus-api/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// errClaimLost signals that a conditional claim found the job or printer
// already taken. It aborts the claim transaction but is not reported as a
// failure; the pair is simply skipped until the next tick.
var errClaimLost = errors.New("claim lost to a concurrent dispatcher")

// ErrJobNotActive is returned by the worker report methods when the job is
// not currently in the printing state.
var ErrJobNotActive = errors.New("print job is not currently printing")

// QueueStatus is a read-only snapshot of the print queue for observability.
type QueueStatus struct {
	Running       bool  `json:"running"`
	PendingJobs   int64 `json:"pending_jobs"`
	PrintingJobs  int64 `json:"printing_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	IdlePrinters  int64 `json:"idle_printers"`
	BusyPrinters  int64 `json:"busy_printers"`
}

// DispatchSummary reports what one queue pass did.
type DispatchSummary struct {
	Assigned int `json:"assigned"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// DispatchService continuously turns pending print jobs into assigned work,
// one active job per printer, and recovers jobs whose worker went silent.
// Every mutation is a short conditional write, so any number of dispatcher
// instances can tick concurrently without double-claiming a job.
type DispatchService struct {
	db       *gorm.DB
	notifier NotificationInterface

	heartbeatInterval time.Duration
	maxRetries        int
	workerID          string
	log               *logrus.Entry

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

var dispatchServiceInstance *DispatchService

// NewDispatchService creates a dispatcher over the given database.
func NewDispatchService(db *gorm.DB, notifier NotificationInterface, heartbeatInterval time.Duration) *DispatchService {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	workerID := fmt.Sprintf("dispatcher-%s-%s", hostname, uuid.NewString()[:8])

	return &DispatchService{
		db:                db,
		notifier:          notifier,
		heartbeatInterval: heartbeatInterval,
		maxRetries:        3,
		workerID:          workerID,
		log:               logrus.WithField("component", "dispatcher"),
	}
}

// InitDispatchService creates and registers the process-wide dispatcher
func InitDispatchService(db *gorm.DB, notifier NotificationInterface, heartbeatInterval time.Duration) *DispatchService {
	dispatchServiceInstance = NewDispatchService(db, notifier, heartbeatInterval)
	return dispatchServiceInstance
}

// GetDispatchService returns the registered dispatcher instance
func GetDispatchService() *DispatchService {
	return dispatchServiceInstance
}

// SetDispatchService sets the dispatcher instance (primarily for testing)
func SetDispatchService(s *DispatchService) {
	dispatchServiceInstance = s
}

// Start begins the recurring queue tick. Calling Start while the dispatcher
// is already running is a no-op; it never spawns a second timer.
func (s *DispatchService) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Debug("start requested while already running, ignoring")
		return
	}

	s.stop = make(chan struct{})
	s.running = true
	stop := s.stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessQueueOnce()
			case <-stop:
				return
			}
		}
	}()

	s.log.WithField("interval", interval.String()).Info("dispatcher started")
}

// Stop cancels the recurring tick. It is safe to call from any state and
// does not wait for an in-flight tick to finish.
func (s *DispatchService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	s.log.Info("dispatcher stopped")
}

// Running reports whether the recurring tick is active
func (s *DispatchService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of queue and printer counts
func (s *DispatchService) Status() (QueueStatus, error) {
	status := QueueStatus{Running: s.Running()}

	type countRow struct {
		Status string
		N      int64
	}

	var jobCounts []countRow
	if err := s.db.Model(&models.PrintJob{}).
		Select("status, count(*) as n").Group("status").Scan(&jobCounts).Error; err != nil {
		return status, fmt.Errorf("failed to count print jobs: %w", err)
	}
	for _, row := range jobCounts {
		switch models.JobStatus(row.Status) {
		case models.JobPending:
			status.PendingJobs = row.N
		case models.JobPrinting:
			status.PrintingJobs = row.N
		case models.JobCompleted:
			status.CompletedJobs = row.N
		case models.JobFailed:
			status.FailedJobs = row.N
		}
	}

	var printerCounts []countRow
	if err := s.db.Model(&models.Printer{}).Where("is_active = ?", true).
		Select("status, count(*) as n").Group("status").Scan(&printerCounts).Error; err != nil {
		return status, fmt.Errorf("failed to count printers: %w", err)
	}
	for _, row := range printerCounts {
		switch models.PrinterStatus(row.Status) {
		case models.PrinterIdle:
			status.IdlePrinters = row.N
		case models.PrinterBusy:
			status.BusyPrinters = row.N
		}
	}

	return status, nil
}

// ProcessQueueOnce performs one queue pass: sweep stale jobs, then assign
// pending jobs to idle capable printers. It is the tick body and is also
// called directly for an immediate out-of-band pass. Per-item errors are
// contained so one bad record cannot halt the rest of the batch.
func (s *DispatchService) ProcessQueueOnce() DispatchSummary {
	summary := DispatchSummary{}

	requeued, failed := s.sweepStaleJobs()
	summary.Requeued = requeued
	summary.Failed = failed

	var jobs []models.PrintJob
	if err := s.db.Where("status = ?", models.JobPending).
		Order("priority DESC, created_at ASC").
		Find(&jobs).Error; err != nil {
		s.log.WithError(err).Error("failed to select pending jobs")
		return summary
	}
	if len(jobs) == 0 {
		return summary
	}

	var printers []models.Printer
	if err := s.db.Where("is_active = ? AND status = ?", true, models.PrinterIdle).
		Order("id ASC").
		Find(&printers).Error; err != nil {
		s.log.WithError(err).Error("failed to select idle printers")
		return summary
	}

	claimed := make(map[uint]bool, len(printers))
	for i := range jobs {
		job := &jobs[i]
		for j := range printers {
			printer := &printers[j]
			if claimed[printer.ID] || !printer.CanPrint(job) {
				continue
			}
			if s.claimJob(job, printer) {
				claimed[printer.ID] = true
				summary.Assigned++
			}
			// A lost claim is not retried this tick; the job stays pending
			// for the next pass.
			break
		}
	}

	return summary
}

// claimJob atomically moves the (job, printer) pair into printing/busy.
// All three conditional writes share one transaction: if any record no
// longer holds its expected state, the whole claim rolls back and the pair
// is skipped silently.
func (s *DispatchService) claimJob(job *models.PrintJob, printer *models.Printer) bool {
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PrintJob{}).
			Where("id = ? AND status = ?", job.ID, models.JobPending).
			Updates(map[string]interface{}{
				"status":            models.JobPrinting,
				"printer_id":        printer.ID,
				"started_at":        now,
				"last_heartbeat_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}

		res = tx.Model(&models.Printer{}).
			Where("id = ? AND status = ? AND is_active = ?", printer.ID, models.PrinterIdle, true).
			Update("status", models.PrinterBusy)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}

		// A pending-payment order must never enter printing; the payment
		// condition backs up the invariant at write time.
		res = tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ? AND print_status = ?",
				job.OrderID, models.PaymentCompleted, models.PrintPending).
			Updates(map[string]interface{}{
				"status":                models.OrderStatePrinting,
				"order_status":          models.DeriveOrderStatus(models.OrderStatePrinting, models.PaymentCompleted),
				"print_status":          models.PrintPrinting,
				"print_started_at":      now,
				"printing_heartbeat_at": now,
				"printer_id":            printer.ID,
				"printer_name":          printer.Name,
				"printing_by":           s.workerID,
				"print_error":           "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, errClaimLost) {
			return false
		}
		s.log.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"printer_id": printer.ID,
		}).WithError(err).Error("claim transaction failed")
		return false
	}

	s.log.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"order_number": job.OrderNumber,
		"printer":      printer.Name,
	}).Info("print job assigned")

	// Resolve the document URL for the worker. Failure here does not undo
	// the claim; the worker can fetch the URL through its own endpoint.
	if store := GetS3Service(); store != nil {
		if url, err := store.GetDocumentURL(job.FileS3Key); err != nil {
			s.log.WithField("job_id", job.ID).WithError(err).Warn("could not presign document URL")
		} else if url != "" {
			s.log.WithField("job_id", job.ID).Debug("document URL ready: " + url)
		}
	}

	return true
}

// sweepStaleJobs requeues or fails printing jobs whose heartbeat is older
// than twice the expected interval and releases their printers. Runs every
// tick so a crashed worker can never block the queue.
func (s *DispatchService) sweepStaleJobs() (requeued, failed int) {
	threshold := time.Now().Add(-2 * s.heartbeatInterval)

	var stale []models.PrintJob
	if err := s.db.Where("status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)",
		models.JobPrinting, threshold).
		Find(&stale).Error; err != nil {
		s.log.WithError(err).Error("failed to select stale jobs")
		return 0, 0
	}

	for i := range stale {
		job := &stale[i]
		abandonMsg := fmt.Sprintf("abandoned: no heartbeat since %s", formatHeartbeat(job.LastHeartbeatAt))

		if job.RetryCount < s.maxRetries {
			res := s.db.Model(&models.PrintJob{}).
				Where("id = ? AND status = ?", job.ID, models.JobPrinting).
				Updates(map[string]interface{}{
					"status":      models.JobPending,
					"retry_count": job.RetryCount + 1,
					"printer_id":  nil,
					"started_at":  nil,
				})
			if res.Error != nil || res.RowsAffected == 0 {
				continue // worker reported in the meantime, leave it alone
			}
			s.resetOrderPrintState(job, models.PrintPending, abandonMsg)
			requeued++
			s.log.WithFields(logrus.Fields{
				"job_id": job.ID,
				"retry":  job.RetryCount + 1,
			}).Warn("stale print job requeued")
		} else {
			res := s.db.Model(&models.PrintJob{}).
				Where("id = ? AND status = ?", job.ID, models.JobPrinting).
				Updates(map[string]interface{}{
					"status":        models.JobFailed,
					"retry_count":   job.RetryCount + 1,
					"error_message": abandonMsg,
				})
			if res.Error != nil || res.RowsAffected == 0 {
				continue
			}
			s.resetOrderPrintState(job, models.PrintFailed, abandonMsg)
			failed++
			s.log.WithField("job_id", job.ID).Error("stale print job failed after retry limit")

			var order models.Order
			if err := s.db.First(&order, job.OrderID).Error; err == nil {
				s.notifier.Notify(NoticePrintFailed, &order)
			}
		}

		s.releasePrinter(job.PrinterID)
	}

	return requeued, failed
}

// ReportHeartbeat records worker liveness for an in-progress job
func (s *DispatchService) ReportHeartbeat(jobID uint) error {
	now := time.Now()

	res := s.db.Model(&models.PrintJob{}).
		Where("id = ? AND status = ?", jobID, models.JobPrinting).
		Update("last_heartbeat_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to record heartbeat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d", ErrJobNotActive, jobID)
	}

	// Mirror onto the order so support tooling sees liveness too.
	s.db.Model(&models.Order{}).
		Where("print_job_id = ? AND print_status = ?", jobID, models.PrintPrinting).
		Update("printing_heartbeat_at", now)

	return nil
}

// ReportCompleted handles a worker's completion report: the job becomes
// completed, the order moves printing→dispatched, and the printer is freed.
func (s *DispatchService) ReportCompleted(jobID uint) error {
	var job models.PrintJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		return fmt.Errorf("failed to load print job %d: %w", jobID, err)
	}

	now := time.Now()
	actual := 0
	if job.StartedAt != nil {
		actual = int(now.Sub(*job.StartedAt).Seconds())
	}

	res := s.db.Model(&models.PrintJob{}).
		Where("id = ? AND status = ?", jobID, models.JobPrinting).
		Updates(map[string]interface{}{
			"status":          models.JobCompleted,
			"completed_at":    now,
			"actual_duration": actual,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete print job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d", ErrJobNotActive, jobID)
	}

	s.db.Model(&models.Order{}).
		Where("print_job_id = ? AND print_status = ?", jobID, models.PrintPrinting).
		Updates(map[string]interface{}{
			"print_status":       models.PrintPrinted,
			"print_completed_at": now,
		})

	s.releasePrinter(job.PrinterID)

	var order models.Order
	if err := s.db.First(&order, job.OrderID).Error; err != nil {
		s.log.WithField("job_id", jobID).WithError(err).Error("completed job references missing order")
		return nil
	}

	result, err := ApplyOrderTransition(s.db, &order, models.OrderStateDispatched, false)
	switch {
	case err != nil:
		if !errors.Is(err, ErrTransitionConflict) {
			s.log.WithField("order_number", order.OrderNumber).
				WithError(err).Error("failed to move completed order to dispatched")
		}
	case !result.Allowed:
		// An operator moved the order elsewhere while the job ran. The order
		// was not dispatched, so the customer must not be told it was.
		s.log.WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"status":       order.Status,
			"reason":       result.Reason,
		}).Warn("completed order not moved to dispatched")
	default:
		s.notifier.Notify(NoticeOrderDispatched, &order)
	}

	s.log.WithFields(logrus.Fields{
		"job_id":          jobID,
		"order_number":    job.OrderNumber,
		"actual_duration": actual,
	}).Info("print job completed")

	return nil
}

// ReportFailed handles a worker's failure report. Under the retry limit the
// job goes back to pending; past it the job is terminally failed and an
// operator is notified.
func (s *DispatchService) ReportFailed(jobID uint, errMsg string) error {
	var job models.PrintJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		return fmt.Errorf("failed to load print job %d: %w", jobID, err)
	}

	retriable := job.RetryCount < s.maxRetries

	updates := map[string]interface{}{
		"retry_count":   job.RetryCount + 1,
		"error_message": errMsg,
	}
	if retriable {
		updates["status"] = models.JobPending
		updates["printer_id"] = nil
		updates["started_at"] = nil
	} else {
		updates["status"] = models.JobFailed
	}

	res := s.db.Model(&models.PrintJob{}).
		Where("id = ? AND status = ?", jobID, models.JobPrinting).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to record print failure for job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d", ErrJobNotActive, jobID)
	}

	if retriable {
		s.resetOrderPrintState(&job, models.PrintPending, errMsg)
	} else {
		s.resetOrderPrintState(&job, models.PrintFailed, errMsg)
		var order models.Order
		if err := s.db.First(&order, job.OrderID).Error; err == nil {
			s.notifier.Notify(NoticePrintFailed, &order)
		}
	}

	s.releasePrinter(job.PrinterID)

	s.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"retriable": retriable,
		"error":     errMsg,
	}).Warn("print job failure reported")

	return nil
}

// MarkPrinterReady brings a printer into rotation. Printer status is owned
// by the dispatcher, so the worker-facing route delegates here.
func (s *DispatchService) MarkPrinterReady(printerID uint) error {
	res := s.db.Model(&models.Printer{}).
		Where("id = ? AND is_active = ? AND status <> ?", printerID, true, models.PrinterBusy).
		Update("status", models.PrinterIdle)
	if res.Error != nil {
		return fmt.Errorf("failed to mark printer %d ready: %w", printerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("printer %d is busy, inactive or unknown", printerID)
	}
	return nil
}

// MarkPrinterOffline takes a printer out of rotation. A busy printer cannot
// go offline; its job must finish or go stale first.
func (s *DispatchService) MarkPrinterOffline(printerID uint) error {
	res := s.db.Model(&models.Printer{}).
		Where("id = ? AND status <> ?", printerID, models.PrinterBusy).
		Update("status", models.PrinterOffline)
	if res.Error != nil {
		return fmt.Errorf("failed to mark printer %d offline: %w", printerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("printer %d is busy or unknown", printerID)
	}
	return nil
}

// releasePrinter returns a printer to idle after its job ended
func (s *DispatchService) releasePrinter(printerID *uint) {
	ReleasePrinter(s.db, printerID)
}

// ReleasePrinter conditionally returns a busy printer to idle. The admin
// reset/force actions share it with the dispatcher so printer status keeps a
// single write path.
func ReleasePrinter(db *gorm.DB, printerID *uint) {
	if printerID == nil {
		return
	}
	res := db.Model(&models.Printer{}).
		Where("id = ? AND status = ?", *printerID, models.PrinterBusy).
		Update("status", models.PrinterIdle)
	if res.Error != nil {
		logrus.WithField("printer_id", *printerID).WithError(res.Error).Error("failed to release printer")
	}
}

// resetOrderPrintState mirrors a job outcome onto the order's print fields
func (s *DispatchService) resetOrderPrintState(job *models.PrintJob, printStatus models.PrintStatus, errMsg string) {
	updates := map[string]interface{}{
		"print_status": printStatus,
		"printer_id":   nil,
		"printer_name": "",
		"printing_by":  "",
	}
	if printStatus == models.PrintFailed {
		updates["print_error"] = errMsg
	}

	res := s.db.Model(&models.Order{}).
		Where("print_job_id = ? AND print_status = ?", job.ID, models.PrintPrinting).
		Updates(updates)
	if res.Error != nil {
		s.log.WithField("job_id", job.ID).WithError(res.Error).Error("failed to mirror job state onto order")
	}
}

func formatHeartbeat(t *time.Time) string {
	if t == nil {
		return "claim"
	}
	return t.Format(time.RFC3339)
}
