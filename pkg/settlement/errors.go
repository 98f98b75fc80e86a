package settlement

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the settlement engine.
var (
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrContention                 = errors.New("contention retry budget exhausted")
	ErrAlreadyReserved            = errors.New("seat already reserved")
	ErrNoSeatsAvailable           = errors.New("no seats available")
	ErrSeatsInUse                 = errors.New("seats in use")
	ErrGatewayUnavailable         = errors.New("gateway unavailable")
	ErrAmountMismatch             = errors.New("amount mismatch")
	ErrAlreadyFinalized           = errors.New("already finalized")
	ErrUnsupportedReservationType = errors.New("unsupported reservation type")
	ErrReservationTypeMismatch    = errors.New("reservation type mismatch")

	ErrVersionConflict          = errors.New("version conflict")
	ErrInventoryUnitNotFound    = errors.New("inventory unit not found")
	ErrInventoryUnitExists      = errors.New("inventory unit already exists")
	ErrSeatsExist               = errors.New("seat map already exists")
	ErrUnknownSeat              = errors.New("unknown seat")
	ErrUnknownResource          = errors.New("unknown resource")
	ErrUnknownFlight            = errors.New("unknown flight")
	ErrUnknownPayment           = errors.New("unknown payment")
	ErrUnknownReservation       = errors.New("unknown reservation")
	ErrPaymentExists            = errors.New("payment already exists")
	ErrApprovalInUse            = errors.New("approval id already settles another payment")
	ErrPaymentStateChanged      = errors.New("payment state changed")
	ErrReservationStateChanged  = errors.New("reservation state changed")
	ErrInvalidPaymentStatus     = errors.New("invalid payment status")
	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidReservationID     = errors.New("invalid reservation id")
	ErrInvalidMerchantRef       = errors.New("invalid merchant reference")
	ErrInvalidApprovalID        = errors.New("invalid approval id")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidDate              = errors.New("invalid date")
	ErrInvalidDateRange         = errors.New("invalid date range")
	ErrInvalidResourceKind      = errors.New("invalid resource kind")
	ErrInvalidIntent            = errors.New("invalid reservation intent")
	ErrInvalidLineItems         = errors.New("invalid line items")
	ErrInvalidSeatLayout        = errors.New("invalid seat layout")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
	ErrInvalidReservationStatus = errors.New("invalid reservation status")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
