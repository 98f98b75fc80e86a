package settlement

import "time"

const (
	operationPrepare = "prepare"
	operationVerify  = "verify"
	operationFail    = "fail"
	operationRefund  = "refund"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// ReasonGatewayVerificationFailed is recorded when the gateway record cannot be trusted.
	ReasonGatewayVerificationFailed = "gateway verification failed"
	// ReasonAmountMismatch is recorded when the recomputed amount differs from the gateway amount.
	ReasonAmountMismatch = "amount mismatch"

	reservationSequenceWidth = 4

	defaultGatewayTimeout    = 10 * time.Second
	defaultInventoryAttempts = 5

	errorOperationInventory = "inventory"
	errorOperationSeats     = "seats"
	errorOperationPayment   = "payment"
	errorSubjectCompensate  = "compensate"
	errorSubjectGateway     = "gateway"
	errorCodeRestore        = "restore"
	errorCodeCancel         = "cancel"
)
