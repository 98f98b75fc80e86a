package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// domainRules is the per-domain settlement table: how many line items a
// checkout folds and whether a single line item may be refunded alone.
type domainRules struct {
	reservationType ReservationType
	code            DomainCode
	minLineItems    int
	maxLineItems    int
	partialRefund   bool
}

var settlementRules = map[ReservationType]domainRules{
	ReservationTypeLodging:  {reservationType: ReservationTypeLodging, code: DomainCodeLodging, minLineItems: 1, maxLineItems: 1},
	ReservationTypeFlight:   {reservationType: ReservationTypeFlight, code: DomainCodeFlight, minLineItems: 1, maxLineItems: 2, partialRefund: true},
	ReservationTypeDelivery: {reservationType: ReservationTypeDelivery, code: DomainCodeDelivery, minLineItems: 1, maxLineItems: 1},
}

func rulesFor(reservationType ReservationType) domainRules {
	return settlementRules[reservationType]
}

// LineItemClaim is the client's view of one line item amount.
type LineItemClaim struct {
	ReservationID ReservationID
	Amount        Amount
}

// VerifyRequest carries the client's payment confirmation.
type VerifyRequest struct {
	MerchantRef   MerchantRef
	ApprovalID    string
	ClaimedAmount Amount
	LineItems     []LineItemClaim
}

// RefundRequest asks for a whole refund, or a single line item when LineItemID is set.
type RefundRequest struct {
	MerchantRef MerchantRef
	Reason      string
	LineItemID  ReservationID
}

// PrepareResult is returned once inventory is held and the payment is READY.
type PrepareResult struct {
	MerchantRef    MerchantRef
	ReservationIDs []ReservationID
	Amount         Amount
}

// VerifyResult is the structured outcome of a confirmation attempt.
// Cause carries the sentinel behind a failure; it is not returned as an error.
type VerifyResult struct {
	Success        bool
	Status         PaymentStatus
	MerchantRef    MerchantRef
	ReservationIDs []ReservationID
	Reason         string
	Cause          error
}

// Outcome is the acknowledgement of a fail or refund call.
type Outcome struct {
	MerchantRef    MerchantRef
	Status         PaymentStatus
	ReservationIDs []ReservationID
	Amount         Amount
}

// hold is what a line item keeps out of shared inventory until compensated.
type hold struct {
	resourceID string
	stay       DateRange
	quantity   int
	flightID   string
	seatCodes  []string
}

// lineItem is the domain-neutral view of one reservation inside a checkout.
type lineItem struct {
	reservationID ReservationID
	amount        Amount
	status        ReservationStatus
	hold          hold
}

type lineItemSource interface {
	lineItems(ctx context.Context, store Store, merchantRef MerchantRef) ([]lineItem, error)
}

// paymentLedger drives the READY/PAID/FAILED/REFUNDED state machine shared by all domains.
type paymentLedger struct {
	store          Store
	gateway        Gateway
	counter        *Counter
	inventory      *InventoryLedger
	seats          *SeatAllocator
	nowFn          func() time.Time
	gatewayTimeout time.Duration
}

// txScope binds the shared collaborators to one transaction and remembers
// what was held through it so a failed checkout can give it back.
type txScope struct {
	store     Store
	counter   *Counter
	inventory *InventoryLedger
	seats     *SeatAllocator
	held      []hold
}

func (ledger *paymentLedger) scope(store Store) *txScope {
	return &txScope{
		store:     store,
		counter:   ledger.counter.bind(store),
		inventory: ledger.inventory.bind(store),
		seats:     ledger.seats.bind(store),
	}
}

func (scope *txScope) holdInventory(ctx context.Context, resourceID string, stay DateRange, quantity int) error {
	if err := scope.inventory.Decrease(ctx, resourceID, stay, quantity); err != nil {
		return err
	}
	scope.held = append(scope.held, hold{resourceID: resourceID, stay: stay, quantity: quantity})
	return nil
}

func (scope *txScope) holdSeats(ctx context.Context, flightID string, seatCodes []string) error {
	reserved := make([]string, 0, len(seatCodes))
	for _, code := range seatCodes {
		if err := scope.seats.Reserve(ctx, SeatID{FlightID: flightID, Code: code}); err != nil {
			restoreErr := scope.restore(ctx, []hold{{flightID: flightID, seatCodes: reserved}})
			return errors.Join(err, restoreErr)
		}
		reserved = append(reserved, code)
	}
	scope.held = append(scope.held, hold{flightID: flightID, seatCodes: reserved})
	return nil
}

func (scope *txScope) assignSeats(ctx context.Context, flightID string, count int) ([]SeatUnit, error) {
	assigned, err := scope.seats.AutoAssign(ctx, flightID, count)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(assigned))
	for _, seat := range assigned {
		codes = append(codes, seat.Code)
	}
	scope.held = append(scope.held, hold{flightID: flightID, seatCodes: codes})
	return assigned, nil
}

func (scope *txScope) restore(ctx context.Context, holds []hold) error {
	var restoreErrors []error
	for _, held := range holds {
		if held.resourceID != "" {
			if err := scope.inventory.Increase(ctx, held.resourceID, held.stay, held.quantity); err != nil {
				restoreErrors = append(restoreErrors, WrapError(errorOperationInventory, errorSubjectCompensate, errorCodeRestore, err))
			}
		}
		for _, code := range held.seatCodes {
			if err := scope.seats.Release(ctx, SeatID{FlightID: held.flightID, Code: code}); err != nil {
				restoreErrors = append(restoreErrors, WrapError(errorOperationSeats, errorSubjectCompensate, errorCodeRestore, err))
			}
		}
	}
	return errors.Join(restoreErrors...)
}

// abort gives back everything held so far and reports the original cause.
func (scope *txScope) abort(ctx context.Context, cause error) error {
	if restoreErr := scope.restore(ctx, scope.held); restoreErr != nil {
		return errors.Join(cause, restoreErr)
	}
	return cause
}

type checkoutBuilder func(ctx context.Context, scope *txScope, merchantRef MerchantRef) ([]lineItem, error)

func (ledger *paymentLedger) prepare(ctx context.Context, rules domainRules, userID UserID, build checkoutBuilder) (PrepareResult, error) {
	merchantRef, err := newMerchantRef(rules.code)
	if err != nil {
		return PrepareResult{}, err
	}
	var result PrepareResult
	err = ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		scope := ledger.scope(transactionStore)
		items, err := build(ctx, scope, merchantRef)
		if err != nil {
			return scope.abort(ctx, err)
		}
		if err := validateLineItemCount(rules, items); err != nil {
			return scope.abort(ctx, err)
		}
		now := ledger.nowFn()
		master := PaymentMaster{
			MerchantRef:     merchantRef,
			ReservationType: rules.reservationType,
			UserID:          userID,
			TotalAmount:     totalOf(items),
			Status:          PaymentStatusReady,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := transactionStore.CreatePaymentMaster(ctx, master); err != nil {
			return scope.abort(ctx, err)
		}
		result = PrepareResult{
			MerchantRef:    merchantRef,
			ReservationIDs: reservationIDsOf(items),
			Amount:         master.TotalAmount,
		}
		return nil
	})
	if err != nil {
		return PrepareResult{}, err
	}
	return result, nil
}

func (ledger *paymentLedger) verify(ctx context.Context, rules domainRules, source lineItemSource, request VerifyRequest) (VerifyResult, error) {
	if request.ApprovalID == "" {
		return VerifyResult{}, fmt.Errorf("%w: empty value", ErrInvalidApprovalID)
	}
	master, err := ledger.store.GetPaymentMaster(ctx, request.MerchantRef)
	if err != nil {
		return VerifyResult{}, err
	}
	if err := checkReservationType(rules, master); err != nil {
		return VerifyResult{}, err
	}
	items, err := source.lineItems(ctx, ledger.store, request.MerchantRef)
	if err != nil {
		return VerifyResult{}, err
	}
	if master.Status != PaymentStatusReady {
		return verifyResultOf(master, items, master.Reason, ErrAlreadyFinalized), nil
	}

	payment, err := ledger.fetchPayment(ctx, request.ApprovalID)
	if err != nil {
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonGatewayVerificationFailed, err)
	}
	if payment.Status != GatewayStatusPaid {
		cause := fmt.Errorf("%w: gateway status %q", ErrGatewayUnavailable, payment.Status)
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonGatewayVerificationFailed, cause)
	}
	if payment.Amount != request.ClaimedAmount {
		cause := fmt.Errorf("%w: gateway confirmed %d, client claimed %d", ErrAmountMismatch, payment.Amount, request.ClaimedAmount)
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonGatewayVerificationFailed, cause)
	}
	if expected := totalOf(items); expected != payment.Amount {
		cause := fmt.Errorf("%w: expected %d, gateway confirmed %d", ErrAmountMismatch, expected, payment.Amount)
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonAmountMismatch, cause)
	}
	if err := matchClaimedLineItems(items, request.LineItems); err != nil {
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonAmountMismatch, err)
	}
	if payment.ApprovalID == "" {
		payment.ApprovalID = request.ApprovalID
	}
	result, err := ledger.confirm(ctx, rules, source, request.MerchantRef, payment)
	if errors.Is(err, ErrApprovalInUse) {
		return ledger.failVerification(ctx, rules, source, request.MerchantRef, ReasonGatewayVerificationFailed, err)
	}
	return result, err
}

// confirm persists details, marks the master and every line item PAID in one transaction.
func (ledger *paymentLedger) confirm(ctx context.Context, rules domainRules, source lineItemSource, merchantRef MerchantRef, payment GatewayPayment) (VerifyResult, error) {
	var result VerifyResult
	err := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		master, err := transactionStore.GetPaymentMaster(ctx, merchantRef)
		if err != nil {
			return err
		}
		items, err := source.lineItems(ctx, transactionStore, merchantRef)
		if err != nil {
			return err
		}
		if master.Status != PaymentStatusReady {
			result = verifyResultOf(master, items, master.Reason, ErrAlreadyFinalized)
			return nil
		}
		if err := validateLineItemCount(rules, items); err != nil {
			return err
		}
		owner, err := transactionStore.FindPaymentMasterByApproval(ctx, payment.ApprovalID)
		switch {
		case err == nil && owner.MerchantRef != merchantRef:
			return fmt.Errorf("%w: %s is recorded on %s", ErrApprovalInUse, payment.ApprovalID, owner.MerchantRef)
		case err != nil && !errors.Is(err, ErrUnknownPayment):
			return err
		}
		details := make([]PaymentDetail, 0, len(items))
		for _, item := range items {
			details = append(details, PaymentDetail{
				MerchantRef:     merchantRef,
				ReservationID:   item.reservationID,
				ReservationType: rules.reservationType,
				Amount:          item.amount,
				Status:          DetailStatusPaid,
			})
		}
		if err := transactionStore.InsertPaymentDetails(ctx, details); err != nil {
			return err
		}
		for index, item := range items {
			if err := transactionStore.SetReservationStatus(ctx, rules.reservationType, item.reservationID, ReservationStatusPending, ReservationStatusPaid, ""); err != nil {
				return err
			}
			items[index].status = ReservationStatusPaid
		}
		master.Status = PaymentStatusPaid
		master.TotalAmount = totalOfDetails(details)
		master.ApprovalID = payment.ApprovalID
		master.PaymentMethod = payment.Method
		master.Reason = ""
		master.UpdatedAt = ledger.nowFn()
		if err := transactionStore.UpdatePaymentMaster(ctx, master, PaymentStatusReady); err != nil {
			return err
		}
		result = verifyResultOf(master, items, "", nil)
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return result, nil
}

func (ledger *paymentLedger) failVerification(ctx context.Context, rules domainRules, source lineItemSource, merchantRef MerchantRef, reason string, cause error) (VerifyResult, error) {
	master, items, transitioned, err := ledger.fail(ctx, rules, source, merchantRef, reason)
	if err != nil {
		return VerifyResult{}, errors.Join(cause, err)
	}
	if !transitioned {
		return verifyResultOf(master, items, master.Reason, ErrAlreadyFinalized), nil
	}
	return verifyResultOf(master, items, reason, cause), nil
}

// fail moves a READY payment to FAILED, fails its pending line items and
// gives their holds back. It reports whether the transition happened.
func (ledger *paymentLedger) fail(ctx context.Context, rules domainRules, source lineItemSource, merchantRef MerchantRef, reason string) (PaymentMaster, []lineItem, bool, error) {
	var (
		master       PaymentMaster
		items        []lineItem
		transitioned bool
	)
	err := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetPaymentMaster(ctx, merchantRef)
		if err != nil {
			return err
		}
		if err := checkReservationType(rules, current); err != nil {
			return err
		}
		currentItems, err := source.lineItems(ctx, transactionStore, merchantRef)
		if err != nil {
			return err
		}
		master, items = current, currentItems
		if current.Status != PaymentStatusReady {
			return nil
		}
		released := make([]hold, 0, len(currentItems))
		for index, item := range currentItems {
			if item.status != ReservationStatusPending {
				continue
			}
			if err := transactionStore.SetReservationStatus(ctx, rules.reservationType, item.reservationID, ReservationStatusPending, ReservationStatusFailed, reason); err != nil {
				return err
			}
			currentItems[index].status = ReservationStatusFailed
			released = append(released, item.hold)
		}
		if err := ledger.scope(transactionStore).restore(ctx, released); err != nil {
			return err
		}
		current.Status = PaymentStatusFailed
		current.Reason = reason
		current.UpdatedAt = ledger.nowFn()
		if err := transactionStore.UpdatePaymentMaster(ctx, current, PaymentStatusReady); err != nil {
			return err
		}
		master, items, transitioned = current, currentItems, true
		return nil
	})
	if err != nil {
		return PaymentMaster{}, nil, false, err
	}
	return master, items, transitioned, nil
}

func (ledger *paymentLedger) failExplicitly(ctx context.Context, rules domainRules, source lineItemSource, merchantRef MerchantRef, reason string) (Outcome, error) {
	master, items, transitioned, err := ledger.fail(ctx, rules, source, merchantRef, reason)
	if err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{
		MerchantRef:    master.MerchantRef,
		Status:         master.Status,
		ReservationIDs: reservationIDsOf(items),
		Amount:         master.TotalAmount,
	}
	if !transitioned {
		return outcome, fmt.Errorf("%w: payment %s is %s", ErrAlreadyFinalized, merchantRef, master.Status)
	}
	return outcome, nil
}

// refund runs under the master row lock so duplicate refunds are serialized.
// The gateway is called before any local write; a gateway failure rolls
// back an untouched transaction.
func (ledger *paymentLedger) refund(ctx context.Context, rules domainRules, source lineItemSource, request RefundRequest) (Outcome, error) {
	var outcome Outcome
	err := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetPaymentMaster(ctx, request.MerchantRef)
		if err != nil {
			return err
		}
		if err := checkReservationType(rules, current); err != nil {
			return err
		}
		if current.Status == PaymentStatusRefunded {
			outcome = outcomeOf(current, nil, 0)
			return fmt.Errorf("%w: payment %s is %s", ErrAlreadyFinalized, request.MerchantRef, current.Status)
		}
		if !current.Status.Refundable() {
			return fmt.Errorf("%w: cannot refund payment in %s", ErrInvalidPaymentStatus, current.Status)
		}
		details, err := transactionStore.ListPaymentDetails(ctx, request.MerchantRef)
		if err != nil {
			return err
		}
		targets, err := refundTargets(rules, details, request.LineItemID)
		if err != nil {
			outcome = outcomeOf(current, nil, 0)
			return err
		}
		items, err := source.lineItems(ctx, transactionStore, request.MerchantRef)
		if err != nil {
			return err
		}
		itemsByID := make(map[string]lineItem, len(items))
		for _, item := range items {
			itemsByID[item.reservationID.String()] = item
		}
		for _, target := range targets {
			if _, found := itemsByID[target.ReservationID.String()]; !found {
				return fmt.Errorf("%w: %s", ErrUnknownReservation, target.ReservationID)
			}
		}

		amount := totalOfDetails(targets)
		remaining := totalOfDetails(paidDetails(details)) - amount
		if _, err := ledger.cancelPayment(ctx, current.ApprovalID, amount, remaining == 0); err != nil {
			return err
		}

		released := make([]hold, 0, len(targets))
		refundedIDs := make([]ReservationID, 0, len(targets))
		for _, target := range targets {
			item := itemsByID[target.ReservationID.String()]
			target.Status = DetailStatusRefunded
			target.Reason = request.Reason
			if err := transactionStore.UpdatePaymentDetail(ctx, target, DetailStatusPaid); err != nil {
				return err
			}
			if err := transactionStore.SetReservationStatus(ctx, rules.reservationType, item.reservationID, ReservationStatusPaid, ReservationStatusRefunded, request.Reason); err != nil {
				return err
			}
			released = append(released, item.hold)
			refundedIDs = append(refundedIDs, item.reservationID)
		}
		if err := ledger.scope(transactionStore).restore(ctx, released); err != nil {
			return err
		}
		previous := current.Status
		current.Status = PaymentStatusRefunded
		if remaining > 0 {
			current.Status = PaymentStatusPartialRefunded
		}
		current.Reason = request.Reason
		current.UpdatedAt = ledger.nowFn()
		if err := transactionStore.UpdatePaymentMaster(ctx, current, previous); err != nil {
			return err
		}
		outcome = outcomeOf(current, refundedIDs, amount)
		return nil
	})
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (ledger *paymentLedger) fetchPayment(ctx context.Context, approvalID string) (GatewayPayment, error) {
	gatewayContext, cancel := context.WithTimeout(ctx, ledger.gatewayTimeout)
	defer cancel()
	payment, err := ledger.gateway.FetchPayment(gatewayContext, approvalID)
	if err != nil {
		return GatewayPayment{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	return payment, nil
}

func (ledger *paymentLedger) cancelPayment(ctx context.Context, approvalID string, amount Amount, isFull bool) (GatewayCancellation, error) {
	gatewayContext, cancel := context.WithTimeout(ctx, ledger.gatewayTimeout)
	defer cancel()
	cancellation, err := ledger.gateway.CancelPayment(gatewayContext, approvalID, amount, isFull)
	if err != nil {
		return GatewayCancellation{}, WrapError(errorOperationPayment, errorSubjectGateway, errorCodeCancel, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err))
	}
	return cancellation, nil
}

func refundTargets(rules domainRules, details []PaymentDetail, lineItemID ReservationID) ([]PaymentDetail, error) {
	if !lineItemID.IsZero() {
		var (
			selected PaymentDetail
			found    bool
		)
		for _, detail := range details {
			if detail.ReservationID == lineItemID {
				selected, found = detail, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReservation, lineItemID)
		}
		if rules.partialRefund {
			if selected.Status == DetailStatusRefunded {
				return nil, fmt.Errorf("%w: line item %s already refunded", ErrAlreadyFinalized, lineItemID)
			}
			return []PaymentDetail{selected}, nil
		}
	}
	targets := paidDetails(details)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: nothing left to refund", ErrAlreadyFinalized)
	}
	return targets, nil
}

func matchClaimedLineItems(items []lineItem, claims []LineItemClaim) error {
	if len(claims) == 0 {
		return nil
	}
	if len(claims) != len(items) {
		return fmt.Errorf("%w: %d line items claimed, %d held", ErrAmountMismatch, len(claims), len(items))
	}
	expected := make(map[string]Amount, len(items))
	for _, item := range items {
		expected[item.reservationID.String()] = item.amount
	}
	for _, claim := range claims {
		amount, found := expected[claim.ReservationID.String()]
		if !found {
			return fmt.Errorf("%w: unknown line item %s", ErrAmountMismatch, claim.ReservationID)
		}
		if amount != claim.Amount {
			return fmt.Errorf("%w: line item %s expected %d, claimed %d", ErrAmountMismatch, claim.ReservationID, amount, claim.Amount)
		}
	}
	return nil
}

func validateLineItemCount(rules domainRules, items []lineItem) error {
	if len(items) < rules.minLineItems || len(items) > rules.maxLineItems {
		return fmt.Errorf("%w: %s checkout holds %d line items", ErrInvalidLineItems, rules.reservationType, len(items))
	}
	return nil
}

func checkReservationType(rules domainRules, master PaymentMaster) error {
	if master.ReservationType != rules.reservationType {
		return fmt.Errorf("%w: payment %s is %s, not %s", ErrReservationTypeMismatch, master.MerchantRef, master.ReservationType, rules.reservationType)
	}
	return nil
}

func newMerchantRef(code DomainCode) (MerchantRef, error) {
	return NewMerchantRef(code.String() + "-" + uuid.NewString())
}

func verifyResultOf(master PaymentMaster, items []lineItem, reason string, cause error) VerifyResult {
	return VerifyResult{
		Success:        master.Status == PaymentStatusPaid,
		Status:         master.Status,
		MerchantRef:    master.MerchantRef,
		ReservationIDs: reservationIDsOf(items),
		Reason:         reason,
		Cause:          cause,
	}
}

func outcomeOf(master PaymentMaster, reservationIDs []ReservationID, amount Amount) Outcome {
	return Outcome{
		MerchantRef:    master.MerchantRef,
		Status:         master.Status,
		ReservationIDs: reservationIDs,
		Amount:         amount,
	}
}

func reservationIDsOf(items []lineItem) []ReservationID {
	ids := make([]ReservationID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.reservationID)
	}
	return ids
}

func totalOf(items []lineItem) Amount {
	total := Amount(0)
	for _, item := range items {
		total += item.amount
	}
	return total
}

func totalOfDetails(details []PaymentDetail) Amount {
	total := Amount(0)
	for _, detail := range details {
		total += detail.Amount
	}
	return total
}

func paidDetails(details []PaymentDetail) []PaymentDetail {
	paid := make([]PaymentDetail, 0, len(details))
	for _, detail := range details {
		if detail.Status == DetailStatusPaid {
			paid = append(paid, detail)
		}
	}
	return paid
}
