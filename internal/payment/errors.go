package payment

import "errors"

var (
	ErrNoTrackedPayments = errors.New("no payments are being tracked")
	ErrUnknownPayment    = errors.New("payment is not tracked")
	ErrInvalidCallback   = errors.New("status callback must not be nil")
	ErrInvalidAmount     = errors.New("invalid amount")
)
