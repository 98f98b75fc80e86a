package settlement

import (
	"context"
	"fmt"
)

// Intent is the domain payload of a prepare call. Exactly the field matching
// the reservation type must be set.
type Intent struct {
	UserID   UserID
	Lodging  *LodgingIntent
	Flight   *FlightIntent
	Delivery *DeliveryIntent
}

// Adapter settles one business domain. Only the Router calls adapters.
type Adapter interface {
	ReservationType() ReservationType
	Prepare(ctx context.Context, intent Intent) (PrepareResult, error)
	VerifyAndConfirm(ctx context.Context, request VerifyRequest) (VerifyResult, error)
	Fail(ctx context.Context, merchantRef MerchantRef, reason string) (Outcome, error)
	Refund(ctx context.Context, request RefundRequest) (Outcome, error)
}

// settlementFlow carries the shared verify/fail/refund state machine; each
// adapter embeds it and adds its own Prepare.
type settlementFlow struct {
	ledger *paymentLedger
	rules  domainRules
	source lineItemSource
}

func newSettlementFlow(ledger *paymentLedger, reservationType ReservationType, source lineItemSource) settlementFlow {
	return settlementFlow{ledger: ledger, rules: rulesFor(reservationType), source: source}
}

// ReservationType returns the domain tag handled by the adapter.
func (flow settlementFlow) ReservationType() ReservationType {
	return flow.rules.reservationType
}

// VerifyAndConfirm reconciles the gateway record against the recomputed amount.
func (flow settlementFlow) VerifyAndConfirm(ctx context.Context, request VerifyRequest) (VerifyResult, error) {
	return flow.ledger.verify(ctx, flow.rules, flow.source, request)
}

// Fail moves a READY payment to FAILED and gives its holds back.
// A payment that is no longer READY yields ErrAlreadyFinalized.
func (flow settlementFlow) Fail(ctx context.Context, merchantRef MerchantRef, reason string) (Outcome, error) {
	return flow.ledger.failExplicitly(ctx, flow.rules, flow.source, merchantRef, reason)
}

// Refund refunds the whole payment, or one line item where the domain allows it.
func (flow settlementFlow) Refund(ctx context.Context, request RefundRequest) (Outcome, error) {
	return flow.ledger.refund(ctx, flow.rules, flow.source, request)
}

func validateIntentUser(intent Intent) error {
	if intent.UserID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return nil
}
