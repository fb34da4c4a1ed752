package models

// PaymentStatus is the truth about money received for an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// OrderState is the fine-grained canonical order lifecycle state. It is the
// state the transition tables operate on.
type OrderState string

const (
	OrderStateDraft          OrderState = "draft"
	OrderStatePendingPayment OrderState = "pending_payment"
	OrderStatePaid           OrderState = "paid"
	OrderStateProcessing     OrderState = "processing"
	OrderStatePrinting       OrderState = "printing"
	OrderStateDispatched     OrderState = "dispatched"
	OrderStateDelivered      OrderState = "delivered"
	OrderStateRefunded       OrderState = "refunded"
)

// OrderStatus is the coarse business workflow status shown to customers.
// It is always derived from (OrderState, PaymentStatus) and never written
// independently; see DeriveOrderStatus.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPrinting   OrderStatus = "printing"
	OrderDispatched OrderStatus = "dispatched"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
)

// PrintStatus is the print-queue state tracked on the order. The empty
// string means the order has never entered the print queue.
type PrintStatus string

const (
	PrintNone     PrintStatus = ""
	PrintPending  PrintStatus = "pending"
	PrintPrinting PrintStatus = "printing"
	PrintPrinted  PrintStatus = "printed"
	PrintFailed   PrintStatus = "failed"
)

// JobStatus is the lifecycle state of a PrintJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobPrinting  JobStatus = "printing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// PrinterStatus is the availability state of a printer. Only the dispatch
// service writes this field.
type PrinterStatus string

const (
	PrinterOffline PrinterStatus = "offline"
	PrinterIdle    PrinterStatus = "idle"
	PrinterBusy    PrinterStatus = "busy"
)

// DeriveOrderStatus maps the fine order state and the payment status onto the
// coarse customer-facing status. Keeping the mapping in one place is what
// stops the two status fields from drifting apart.
func DeriveOrderStatus(state OrderState, payment PaymentStatus) OrderStatus {
	if payment == PaymentFailed {
		return OrderFailed
	}
	switch state {
	case OrderStateDraft, OrderStatePendingPayment, OrderStatePaid:
		return OrderPending
	case OrderStateProcessing, OrderStatePrinting:
		return OrderPrinting
	case OrderStateDispatched:
		return OrderDispatched
	case OrderStateDelivered:
		return OrderDelivered
	case OrderStateRefunded:
		return OrderCancelled
	default:
		return OrderPending
	}
}
