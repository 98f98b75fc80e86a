package settlement

import (
	"context"
	"errors"
	"fmt"
)

// Router forwards every settlement call to the adapter for its reservation
// type and records each dispatch through the operation loggers.
type Router struct {
	adapters map[ReservationType]Adapter
	payments PaymentStore
	loggers  operationLoggers
}

func newRouter(payments PaymentStore, loggers operationLoggers, adapters ...Adapter) *Router {
	byType := make(map[ReservationType]Adapter, len(adapters))
	for _, adapter := range adapters {
		byType[adapter.ReservationType()] = adapter
	}
	return &Router{adapters: byType, payments: payments, loggers: loggers}
}

func (router *Router) adapter(reservationType ReservationType) (Adapter, error) {
	adapter, found := router.adapters[reservationType]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedReservationType, reservationType)
	}
	return adapter, nil
}

// Prepare opens a checkout for the given domain.
func (router *Router) Prepare(ctx context.Context, reservationType ReservationType, intent Intent) (PrepareResult, error) {
	var result PrepareResult
	adapter, err := router.adapter(reservationType)
	if err == nil {
		result, err = adapter.Prepare(ctx, intent)
	}
	router.loggers.log(ctx, OperationLog{
		Operation:       operationPrepare,
		ReservationType: reservationType,
		MerchantRef:     result.MerchantRef,
		ReservationIDs:  result.ReservationIDs,
		Amount:          result.Amount,
		PaymentStatus:   readyStatusOf(err),
		Error:           err,
	})
	return result, err
}

// Verify confirms or fails a checkout against the gateway record.
func (router *Router) Verify(ctx context.Context, reservationType ReservationType, request VerifyRequest) (VerifyResult, error) {
	var result VerifyResult
	adapter, err := router.adapter(reservationType)
	if err == nil {
		result, err = adapter.VerifyAndConfirm(ctx, request)
	}
	loggedError := err
	if loggedError == nil && result.Cause != nil && !errors.Is(result.Cause, ErrAlreadyFinalized) {
		loggedError = result.Cause
	}
	router.loggers.log(ctx, OperationLog{
		Operation:       operationVerify,
		ReservationType: reservationType,
		MerchantRef:     request.MerchantRef,
		ReservationIDs:  result.ReservationIDs,
		Amount:          request.ClaimedAmount,
		PaymentStatus:   result.Status,
		Reason:          result.Reason,
		Error:           loggedError,
	})
	return result, err
}

// Fail fails a READY checkout. An empty reservation type is resolved from the payment.
func (router *Router) Fail(ctx context.Context, reservationType ReservationType, merchantRef MerchantRef, reason string) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	if reservationType == "" {
		reservationType, err = router.resolveReservationType(ctx, merchantRef)
	}
	if err == nil {
		var adapter Adapter
		adapter, err = router.adapter(reservationType)
		if err == nil {
			outcome, err = adapter.Fail(ctx, merchantRef, reason)
		}
	}
	router.loggers.log(ctx, OperationLog{
		Operation:       operationFail,
		ReservationType: reservationType,
		MerchantRef:     merchantRef,
		ReservationIDs:  outcome.ReservationIDs,
		Amount:          outcome.Amount,
		PaymentStatus:   outcome.Status,
		Reason:          reason,
		Error:           err,
	})
	return outcome, err
}

// Refund refunds a paid checkout in whole or by line item.
func (router *Router) Refund(ctx context.Context, reservationType ReservationType, request RefundRequest) (Outcome, error) {
	var outcome Outcome
	adapter, err := router.adapter(reservationType)
	if err == nil {
		outcome, err = adapter.Refund(ctx, request)
	}
	router.loggers.log(ctx, OperationLog{
		Operation:       operationRefund,
		ReservationType: reservationType,
		MerchantRef:     request.MerchantRef,
		ReservationIDs:  outcome.ReservationIDs,
		Amount:          outcome.Amount,
		PaymentStatus:   outcome.Status,
		Reason:          request.Reason,
		Error:           err,
	})
	return outcome, err
}

func (router *Router) resolveReservationType(ctx context.Context, merchantRef MerchantRef) (ReservationType, error) {
	master, err := router.payments.GetPaymentMaster(ctx, merchantRef)
	if err != nil {
		return "", err
	}
	return master.ReservationType, nil
}

func readyStatusOf(err error) PaymentStatus {
	if err != nil {
		return ""
	}
	return PaymentStatusReady
}
