package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/printhaus/printhaus-api/models"
	"gorm.io/gorm"
)

// TransitionResult is the structured allow/deny answer of the state machine.
// A denied result always carries a non-empty Reason; validation never
// returns a Go error.
type TransitionResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() TransitionResult {
	return TransitionResult{Allowed: true}
}

func deny(format string, args ...interface{}) TransitionResult {
	return TransitionResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// ErrTransitionConflict is returned by the transition applier when the
// conditional write found the record already moved on. Callers treat it as
// "someone else got there first", not as a failure.
var ErrTransitionConflict = errors.New("order state changed concurrently")

// printTransitions is the base print-status table. pending→printing is the
// dispatcher's claim; printing→pending is a manual reset; failed→pending is
// a retry/requeue.
var printTransitions = map[models.PrintStatus][]models.PrintStatus{
	models.PrintPending:  {models.PrintPrinting},
	models.PrintPrinting: {models.PrintPrinted, models.PrintFailed, models.PrintPending},
	models.PrintFailed:   {models.PrintPending},
	models.PrintPrinted:  {},
}

// printOverrideTargets is the privileged escape hatch: with an explicit
// admin override a job may be force-reset or force-completed from any state.
var printOverrideTargets = []models.PrintStatus{models.PrintPending, models.PrintPrinted}

// orderTransitions is the base order-status table. refunded is terminal.
var orderTransitions = map[models.OrderState][]models.OrderState{
	models.OrderStateDraft:          {models.OrderStatePendingPayment},
	models.OrderStatePendingPayment: {models.OrderStatePaid},
	models.OrderStatePaid:           {models.OrderStateProcessing, models.OrderStatePrinting, models.OrderStateRefunded},
	models.OrderStateProcessing:     {models.OrderStatePrinting, models.OrderStateRefunded},
	models.OrderStatePrinting:       {models.OrderStateDispatched, models.OrderStateRefunded},
	models.OrderStateDispatched:     {models.OrderStateDelivered, models.OrderStateRefunded},
	models.OrderStateDelivered:      {models.OrderStateRefunded},
	models.OrderStateRefunded:       {},
}

// orderOverrideTransitions are operational corrections available only with
// an admin override. They widen the base table; they never replace it.
var orderOverrideTransitions = map[models.OrderState][]models.OrderState{
	models.OrderStatePaid:       {models.OrderStateDispatched},
	models.OrderStateProcessing: {models.OrderStateDispatched},
	models.OrderStateDispatched: {models.OrderStatePrinting},
	models.OrderStateDelivered:  {models.OrderStatePrinting},
	models.OrderStatePrinting:   {models.OrderStateProcessing},
}

// ValidatePrintTransition decides whether a print-status transition is legal.
// With isAdminOverride the escape-hatch targets (pending, printed) are
// additionally allowed from any state.
func ValidatePrintTransition(from, to models.PrintStatus, isAdminOverride bool) TransitionResult {
	for _, next := range printTransitions[from] {
		if next == to {
			return allow()
		}
	}
	if isAdminOverride {
		for _, target := range printOverrideTargets {
			if target == to {
				return allow()
			}
		}
	}
	if from == to {
		return deny("print status is already %q", from)
	}
	return deny("print status cannot change from %q to %q", from, to)
}

// ValidateOrderTransition decides whether an order-state transition is
// legal. With isAdminOverride the correction allow-list widens the base
// table; non-admin callers never get those pairs.
func ValidateOrderTransition(from, to models.OrderState, isAdminOverride bool) TransitionResult {
	for _, next := range orderTransitions[from] {
		if next == to {
			return allow()
		}
	}
	if isAdminOverride {
		for _, next := range orderOverrideTransitions[from] {
			if next == to {
				return allow()
			}
		}
	}
	if from == to {
		return deny("order is already %q", from)
	}
	return deny("order cannot move from %q to %q", from, to)
}

// GuardReprint rejects a reprint while a worker currently holds the job.
// The block applies regardless of any override flag: an operator must reset
// the job first.
func GuardReprint(order *models.Order) TransitionResult {
	if order.PrintStatus == models.PrintPrinting {
		return deny("cannot reprint an order that is currently printing; reset it first")
	}
	if order.PrintStatus == models.PrintNone {
		return deny("order %s has never entered the print queue", order.OrderNumber)
	}
	return allow()
}

// GuardForcePrinted requires an explicit confirmation and a reason before a
// job may be force-completed, because doing so can diverge the print record
// from physical reality.
func GuardForcePrinted(reason string, confirmed bool) TransitionResult {
	if !confirmed {
		return deny("force-printed requires explicit confirmation")
	}
	if strings.TrimSpace(reason) == "" {
		return deny("force-printed requires a reason")
	}
	return allow()
}

// GuardRemoveFromQueue blocks queue removal once the order is paid: a paid
// order may be re-queued or refunded, never silently forgotten.
func GuardRemoveFromQueue(order *models.Order) TransitionResult {
	if order.PaymentStatus == models.PaymentCompleted {
		return deny("cannot remove a paid order from the print queue")
	}
	if order.PrintStatus == models.PrintNone {
		return deny("order %s is not in the print queue", order.OrderNumber)
	}
	return allow()
}

// ApplyOrderTransition validates and applies an order-state transition as a
// single conditional write, keeping the coarse OrderStatus in sync with the
// fine state. A denied transition is reported in the result; a lost write
// race is reported as ErrTransitionConflict.
func ApplyOrderTransition(db *gorm.DB, order *models.Order, to models.OrderState, isAdminOverride bool) (TransitionResult, error) {
	result := ValidateOrderTransition(order.Status, to, isAdminOverride)
	if !result.Allowed {
		return result, nil
	}

	res := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]interface{}{
			"status":       to,
			"order_status": models.DeriveOrderStatus(to, order.PaymentStatus),
		})
	if res.Error != nil {
		return result, fmt.Errorf("failed to apply order transition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return result, ErrTransitionConflict
	}

	order.Status = to
	order.OrderStatus = models.DeriveOrderStatus(to, order.PaymentStatus)
	return result, nil
}
