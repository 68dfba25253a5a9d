// Package metrics records payment-service call counts and latencies.
package metrics

import "time"

// Metric names emitted by the payment client and tracker.
const (
	PaymentCreated      = "payment_created"
	PaymentConfirmed    = "payment_confirmed"
	PaymentCompleted    = "payment_completed"
	PurchaseCreated     = "purchase_created"
	StatusChecks        = "status_checks"
	MonitorErrors       = "monitor_errors"
	CallbackErrors      = "callback_errors"
	RemoteRequest       = "remote_request"
	RemoteRequestFailed = "remote_request_failed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
