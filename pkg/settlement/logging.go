package settlement

import "context"

// OperationLogger records domain-level events emitted by settlement operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one dispatched settlement operation.
type OperationLog struct {
	Operation       string
	ReservationType ReservationType
	MerchantRef     MerchantRef
	ReservationIDs  []ReservationID
	Amount          Amount
	PaymentStatus   PaymentStatus
	Reason          string
	Status          string
	Error           error
}

// Succeeded reports whether the operation completed without error.
func (entry OperationLog) Succeeded() bool {
	return entry.Status == operationStatusOK
}

type operationLoggers []OperationLogger

func (loggers operationLoggers) log(ctx context.Context, entry OperationLog) {
	if len(loggers) == 0 {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	for _, logger := range loggers {
		logger.LogOperation(ctx, entry)
	}
}
