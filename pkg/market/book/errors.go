package book

import "errors"

// Validation errors are detected before any mutation; the caller can
// retry with corrected input. State conflict errors mean the caller's
// view of an order is stale. ErrTransferFailed is the one failure that
// can occur after validation passes; it leaves the book untouched.
var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrUnknownOrder        = errors.New("unknown order")
	ErrNotBuyOrder         = errors.New("not a buy order")
	ErrNotBuyer            = errors.New("caller is not the buyer")
	ErrInsufficientPayment = errors.New("insufficient payment")

	ErrAlreadyMatched  = errors.New("order already matched")
	ErrNotMatched      = errors.New("order not matched")
	ErrAlreadyExecuted = errors.New("order already executed")

	ErrTransferFailed = errors.New("settlement transfer failed")
)
