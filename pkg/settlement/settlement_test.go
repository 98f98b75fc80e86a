package settlement

import (
	"context"
	"errors"
	"testing"
)

type settlementFixture struct {
	store   *stubStore
	gateway *stubGateway
	service *Service
	logger  *recorderLogger
}

func newSettlementFixture(test *testing.T, options ...ServiceOption) settlementFixture {
	test.Helper()
	store := newStubStore(test)
	store.addResource(Resource{ResourceID: "room-1", Kind: ResourceKindRoom, Name: "Ocean Twin", BasePrice: 50000, Capacity: 2})
	store.addResource(Resource{ResourceID: "courier-1", Kind: ResourceKindCourier, Name: "Same Day", BasePrice: 8000, Capacity: 1})
	store.addFlight(Flight{FlightID: "F-OUT", FlightNumber: "KE101", DepartureAirport: "gmp", ArrivalAirport: "CJU", Fare: 80000})
	store.addFlight(Flight{FlightID: "F-IN", FlightNumber: "KE102", DepartureAirport: "CJU", ArrivalAirport: "GMP", Fare: 95000})
	gateway := newStubGateway()
	logger := &recorderLogger{}
	layout := SeatLayout{Rows: 4, Columns: []string{"A", "B"}}
	allOptions := append([]ServiceOption{
		WithOperationLogger(logger),
		WithSeatLayout(layout),
		WithAirportCodes(NewAirportCodes(map[string]string{"GMP": "SEL"})),
	}, options...)
	service := mustNewService(test, store, gateway, allOptions...)
	return settlementFixture{store: store, gateway: gateway, service: service, logger: logger}
}

func (fixture settlementFixture) prepareLodging(test *testing.T, quantity int) PrepareResult {
	test.Helper()
	intent := Intent{
		UserID: mustUserID(test, "guest-1"),
		Lodging: &LodgingIntent{
			ResourceID: "room-1",
			CheckIn:    mustDate(test, "2025-10-18"),
			CheckOut:   mustDate(test, "2025-10-20"),
			Quantity:   quantity,
		},
	}
	result, err := fixture.service.Router().Prepare(context.Background(), ReservationTypeLodging, intent)
	if err != nil {
		test.Fatalf("prepare lodging: %v", err)
	}
	return result
}

func (fixture settlementFixture) prepareRoundTrip(test *testing.T) PrepareResult {
	test.Helper()
	intent := Intent{
		UserID: mustUserID(test, "traveler-1"),
		Flight: &FlightIntent{
			TripType: TripTypeRoundTrip,
			Legs: []FlightLegIntent{
				{FlightID: "F-OUT", Passengers: 1},
				{FlightID: "F-IN", Passengers: 1},
			},
		},
	}
	result, err := fixture.service.Router().Prepare(context.Background(), ReservationTypeFlight, intent)
	if err != nil {
		test.Fatalf("prepare round trip: %v", err)
	}
	return result
}

func (fixture settlementFixture) mustVerify(test *testing.T, reservationType ReservationType, prepared PrepareResult, approvalID string, claimed Amount) VerifyResult {
	test.Helper()
	result, err := fixture.service.Router().Verify(context.Background(), reservationType, VerifyRequest{
		MerchantRef:   prepared.MerchantRef,
		ApprovalID:    approvalID,
		ClaimedAmount: claimed,
	})
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	return result
}

func TestLodgingAmountMismatchRestoresStock(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	inventory := fixture.service.Inventory()
	nights := mustDateRange(test, "2025-10-18", "2025-10-20").Dates()

	prepared := fixture.prepareLodging(test, 2)
	if prepared.Amount != 200000 {
		test.Fatalf("expected expected amount 200000, got %d", prepared.Amount)
	}
	if len(prepared.ReservationIDs) != 1 || prepared.ReservationIDs[0].String() != "20251001ACC0001" {
		test.Fatalf("unexpected reservation ids %v", prepared.ReservationIDs)
	}
	for _, night := range nights {
		if remaining := mustRemaining(test, inventory, "room-1", night); remaining != 0 {
			test.Fatalf("expected stock 0 on %s after prepare, got %d", night, remaining)
		}
	}

	fixture.gateway.pay("imp-150", 150000)
	result := fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-150", 150000)

	if result.Success {
		test.Fatalf("expected verification to fail")
	}
	if !errors.Is(result.Cause, ErrAmountMismatch) {
		test.Fatalf("expected ErrAmountMismatch cause, got %v", result.Cause)
	}
	if result.Status != PaymentStatusFailed || result.Reason != ReasonAmountMismatch {
		test.Fatalf("unexpected result %+v", result)
	}
	master := fixture.store.mustMaster(test, prepared.MerchantRef)
	if master.Status != PaymentStatusFailed || master.Reason != ReasonAmountMismatch {
		test.Fatalf("unexpected master %+v", master)
	}
	if status := fixture.store.lodgingStatus(test, prepared.ReservationIDs[0]); status != ReservationStatusFailed {
		test.Fatalf("expected reservation FAILED, got %s", status)
	}
	for _, night := range nights {
		if remaining := mustRemaining(test, inventory, "room-1", night); remaining != 2 {
			test.Fatalf("expected stock restored to 2 on %s, got %d", night, remaining)
		}
	}
}

func TestLodgingPrepareRejectsOversell(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	fixture.prepareLodging(test, 2)

	_, err := fixture.service.Router().Prepare(context.Background(), ReservationTypeLodging, Intent{
		UserID: mustUserID(test, "guest-2"),
		Lodging: &LodgingIntent{
			ResourceID: "room-1",
			CheckIn:    mustDate(test, "2025-10-19"),
			CheckOut:   mustDate(test, "2025-10-21"),
			Quantity:   1,
		},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		test.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if remaining := mustRemaining(test, fixture.service.Inventory(), "room-1", mustDate(test, "2025-10-20")); remaining != 2 {
		test.Fatalf("expected the free night to be compensated, got %d", remaining)
	}
}

func TestVerifyIsIdempotent(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)
	fixture.gateway.pay("imp-100", 100000)

	first := fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-100", 100000)
	if !first.Success || first.Status != PaymentStatusPaid || first.Cause != nil {
		test.Fatalf("unexpected first result %+v", first)
	}
	second := fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-100", 100000)
	if !second.Success || second.Status != PaymentStatusPaid {
		test.Fatalf("unexpected second result %+v", second)
	}
	if !errors.Is(second.Cause, ErrAlreadyFinalized) {
		test.Fatalf("expected ErrAlreadyFinalized cause on repeat, got %v", second.Cause)
	}

	view, err := fixture.service.Payment(context.Background(), prepared.MerchantRef)
	if err != nil {
		test.Fatalf("payment view: %v", err)
	}
	if len(view.Details) != 1 {
		test.Fatalf("expected 1 detail, got %d", len(view.Details))
	}
	if totalOfDetails(view.Details) != view.Master.TotalAmount || view.Master.TotalAmount != 100000 {
		test.Fatalf("details do not sum to master total: %+v", view)
	}
	if view.Master.ApprovalID != "imp-100" || view.Master.PaymentMethod != "card" {
		test.Fatalf("unexpected master %+v", view.Master)
	}
	if status := fixture.store.lodgingStatus(test, prepared.ReservationIDs[0]); status != ReservationStatusPaid {
		test.Fatalf("expected reservation PAID, got %s", status)
	}
}

func TestVerifyGatewayFailureFailsCheckout(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)
	fixture.gateway.fetchErr = errors.New("connection reset")

	result := fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-x", 100000)
	if result.Success || result.Status != PaymentStatusFailed {
		test.Fatalf("unexpected result %+v", result)
	}
	if result.Reason != ReasonGatewayVerificationFailed {
		test.Fatalf("unexpected reason %q", result.Reason)
	}
	if !errors.Is(result.Cause, ErrGatewayUnavailable) {
		test.Fatalf("expected ErrGatewayUnavailable cause, got %v", result.Cause)
	}
	if remaining := mustRemaining(test, fixture.service.Inventory(), "room-1", mustDate(test, "2025-10-18")); remaining != 2 {
		test.Fatalf("expected stock restored, got %d", remaining)
	}
}

func TestVerifyClaimDifferentFromGatewayFails(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)
	fixture.gateway.pay("imp-100", 100000)

	result := fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-100", 90000)
	if result.Success || result.Reason != ReasonGatewayVerificationFailed {
		test.Fatalf("unexpected result %+v", result)
	}
}

func TestVerifyRejectsWrongDomain(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)

	_, err := fixture.service.Router().Verify(context.Background(), ReservationTypeDelivery, VerifyRequest{
		MerchantRef:   prepared.MerchantRef,
		ApprovalID:    "imp-100",
		ClaimedAmount: 100000,
	})
	if !errors.Is(err, ErrReservationTypeMismatch) {
		test.Fatalf("expected ErrReservationTypeMismatch, got %v", err)
	}
	if master := fixture.store.mustMaster(test, prepared.MerchantRef); master.Status != PaymentStatusReady {
		test.Fatalf("expected master untouched, got %s", master.Status)
	}
}

func TestFlightRoundTripPartialRefund(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	prepared := fixture.prepareRoundTrip(test)
	if prepared.Amount != 175000 || len(prepared.ReservationIDs) != 2 {
		test.Fatalf("unexpected prepare result %+v", prepared)
	}
	outbound := fixture.store.flightReservation(test, prepared.ReservationIDs[0])
	inbound := fixture.store.flightReservation(test, prepared.ReservationIDs[1])
	if outbound.Amount != 80000 || inbound.Amount != 95000 {
		test.Fatalf("unexpected leg amounts %d/%d", outbound.Amount, inbound.Amount)
	}
	if outbound.DepartureAirport != "SEL" || outbound.ArrivalAirport != "CJU" {
		test.Fatalf("expected resolved airport codes, got %s→%s", outbound.DepartureAirport, outbound.ArrivalAirport)
	}
	if !fixture.store.seatReserved(test, "F-OUT", "1A") || !fixture.store.seatReserved(test, "F-IN", "1A") {
		test.Fatalf("expected seats to be held at prepare")
	}

	fixture.gateway.pay("imp-rt", 175000)
	result, err := fixture.service.Router().Verify(ctx, ReservationTypeFlight, VerifyRequest{
		MerchantRef:   prepared.MerchantRef,
		ApprovalID:    "imp-rt",
		ClaimedAmount: 175000,
		LineItems: []LineItemClaim{
			{ReservationID: outbound.ReservationID, Amount: 80000},
			{ReservationID: inbound.ReservationID, Amount: 95000},
		},
	})
	if err != nil || !result.Success {
		test.Fatalf("verify: %+v %v", result, err)
	}

	outcome, err := fixture.service.Router().Refund(ctx, ReservationTypeFlight, RefundRequest{
		MerchantRef: prepared.MerchantRef,
		Reason:      "schedule change",
		LineItemID:  outbound.ReservationID,
	})
	if err != nil {
		test.Fatalf("partial refund: %v", err)
	}
	if outcome.Status != PaymentStatusPartialRefunded || outcome.Amount != 80000 {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
	if status := fixture.store.flightReservation(test, outbound.ReservationID).Status; status != ReservationStatusRefunded {
		test.Fatalf("expected outbound REFUNDED, got %s", status)
	}
	if status := fixture.store.flightReservation(test, inbound.ReservationID).Status; status != ReservationStatusPaid {
		test.Fatalf("expected inbound PAID, got %s", status)
	}
	if fixture.store.seatReserved(test, "F-OUT", "1A") {
		test.Fatalf("expected outbound seat released")
	}
	if !fixture.store.seatReserved(test, "F-IN", "1A") {
		test.Fatalf("expected inbound seat kept")
	}
	if len(fixture.gateway.cancellations) != 1 || fixture.gateway.cancellations[0].isFull || fixture.gateway.cancellations[0].amount != 80000 {
		test.Fatalf("unexpected gateway cancellations %+v", fixture.gateway.cancellations)
	}

	outcome, err = fixture.service.Router().Refund(ctx, ReservationTypeFlight, RefundRequest{MerchantRef: prepared.MerchantRef, Reason: "trip cancelled"})
	if err != nil {
		test.Fatalf("full refund: %v", err)
	}
	if outcome.Status != PaymentStatusRefunded || outcome.Amount != 95000 {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
	if last := fixture.gateway.cancellations[len(fixture.gateway.cancellations)-1]; !last.isFull || last.amount != 95000 {
		test.Fatalf("unexpected final cancellation %+v", last)
	}

	_, err = fixture.service.Router().Refund(ctx, ReservationTypeFlight, RefundRequest{MerchantRef: prepared.MerchantRef})
	if !errors.Is(err, ErrAlreadyFinalized) {
		test.Fatalf("expected ErrAlreadyFinalized on repeat refund, got %v", err)
	}
	if len(fixture.gateway.cancellations) != 2 {
		test.Fatalf("expected no extra gateway call, got %d", len(fixture.gateway.cancellations))
	}
}

func TestFlightPrepareReleasesSeatsWhenLaterLegFails(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	if _, err := fixture.service.Seats().Initialize(ctx, "F-IN"); err != nil {
		test.Fatalf("initialize: %v", err)
	}
	if err := fixture.service.Seats().Reserve(ctx, SeatID{FlightID: "F-IN", Code: "2B"}); err != nil {
		test.Fatalf("reserve: %v", err)
	}

	_, err := fixture.service.Router().Prepare(ctx, ReservationTypeFlight, Intent{
		UserID: mustUserID(test, "traveler-2"),
		Flight: &FlightIntent{
			TripType: TripTypeRoundTrip,
			Legs: []FlightLegIntent{
				{FlightID: "F-OUT", Passengers: 2, SeatCodes: []string{"3a", "3b"}},
				{FlightID: "F-IN", Passengers: 2, SeatCodes: []string{"2A", "2B"}},
			},
		},
	})
	if !errors.Is(err, ErrAlreadyReserved) {
		test.Fatalf("expected ErrAlreadyReserved, got %v", err)
	}
	for _, code := range []string{"3A", "3B"} {
		if fixture.store.seatReserved(test, "F-OUT", code) {
			test.Fatalf("expected outbound seat %s released", code)
		}
	}
	if fixture.store.seatReserved(test, "F-IN", "2A") {
		test.Fatalf("expected inbound seat 2A released")
	}
}

func TestDeliveryFailRestoresCapacityOnce(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	intent := Intent{
		UserID: mustUserID(test, "sender-1"),
		Delivery: &DeliveryIntent{
			ResourceID: "courier-1",
			PickupDate: mustDate(test, "2025-10-05"),
			Sender:     "Kim",
			Recipient:  "Lee",
			Address:    "1 Jeju-ro",
			TotalPrice: 12000,
		},
	}
	prepared, err := fixture.service.Router().Prepare(ctx, ReservationTypeDelivery, intent)
	if err != nil {
		test.Fatalf("prepare delivery: %v", err)
	}
	if prepared.Amount != 12000 {
		test.Fatalf("unexpected amount %d", prepared.Amount)
	}
	if _, err := fixture.service.Router().Prepare(ctx, ReservationTypeDelivery, intent); !errors.Is(err, ErrInsufficientStock) {
		test.Fatalf("expected courier capacity exhausted, got %v", err)
	}

	outcome, err := fixture.service.Router().Fail(ctx, "", prepared.MerchantRef, "user closed the payment window")
	if err != nil {
		test.Fatalf("fail: %v", err)
	}
	if outcome.Status != PaymentStatusFailed {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
	_, err = fixture.service.Router().Fail(ctx, ReservationTypeDelivery, prepared.MerchantRef, "again")
	if !errors.Is(err, ErrAlreadyFinalized) {
		test.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if remaining := mustRemaining(test, fixture.service.Inventory(), "courier-1", mustDate(test, "2025-10-05")); remaining != 1 {
		test.Fatalf("expected courier capacity 1, got %d", remaining)
	}
}

func TestRefundGatewayFailureLeavesStateUntouched(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	prepared := fixture.prepareLodging(test, 1)
	fixture.gateway.pay("imp-100", 100000)
	fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-100", 100000)
	fixture.gateway.cancelErr = errors.New("timeout")

	_, err := fixture.service.Router().Refund(ctx, ReservationTypeLodging, RefundRequest{MerchantRef: prepared.MerchantRef, Reason: "guest cancelled"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		test.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if master := fixture.store.mustMaster(test, prepared.MerchantRef); master.Status != PaymentStatusPaid {
		test.Fatalf("expected master PAID, got %s", master.Status)
	}
	if remaining := mustRemaining(test, fixture.service.Inventory(), "room-1", mustDate(test, "2025-10-18")); remaining != 1 {
		test.Fatalf("expected stock still held, got %d", remaining)
	}
}

func TestLodgingRefundIsWholeEvenWithLineItem(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	prepared := fixture.prepareLodging(test, 2)
	fixture.gateway.pay("imp-200", 200000)
	fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-200", 200000)

	outcome, err := fixture.service.Router().Refund(ctx, ReservationTypeLodging, RefundRequest{
		MerchantRef: prepared.MerchantRef,
		Reason:      "guest cancelled",
		LineItemID:  prepared.ReservationIDs[0],
	})
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if outcome.Status != PaymentStatusRefunded || outcome.Amount != 200000 {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
	if !fixture.gateway.cancellations[0].isFull {
		test.Fatalf("expected a full gateway cancellation")
	}
	if remaining := mustRemaining(test, fixture.service.Inventory(), "room-1", mustDate(test, "2025-10-19")); remaining != 2 {
		test.Fatalf("expected stock restored, got %d", remaining)
	}
}

func TestRefundRequiresPaidPayment(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)

	_, err := fixture.service.Router().Refund(context.Background(), ReservationTypeLodging, RefundRequest{MerchantRef: prepared.MerchantRef})
	if !errors.Is(err, ErrInvalidPaymentStatus) {
		test.Fatalf("expected ErrInvalidPaymentStatus, got %v", err)
	}
	if len(fixture.gateway.cancellations) != 0 {
		test.Fatalf("expected no gateway call")
	}
}

func TestRouterRejectsUnsupportedType(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)

	_, err := fixture.service.Router().Prepare(context.Background(), ReservationType("CRUISE"), Intent{UserID: mustUserID(test, "guest-1")})
	if !errors.Is(err, ErrUnsupportedReservationType) {
		test.Fatalf("expected ErrUnsupportedReservationType, got %v", err)
	}
	if len(fixture.logger.entries) != 1 {
		test.Fatalf("expected one logged dispatch, got %d", len(fixture.logger.entries))
	}
	entry := fixture.logger.entries[0]
	if entry.Operation != operationPrepare || entry.Succeeded() || !errors.Is(entry.Error, ErrUnsupportedReservationType) {
		test.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestRouterLogsEveryDispatch(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	prepared := fixture.prepareLodging(test, 1)
	fixture.gateway.pay("imp-100", 100000)
	fixture.mustVerify(test, ReservationTypeLodging, prepared, "imp-100", 100000)

	if len(fixture.logger.entries) != 2 {
		test.Fatalf("expected 2 log entries, got %d", len(fixture.logger.entries))
	}
	verifyEntry := fixture.logger.entries[1]
	if verifyEntry.Operation != operationVerify || !verifyEntry.Succeeded() || verifyEntry.PaymentStatus != PaymentStatusPaid {
		test.Fatalf("unexpected verify entry %+v", verifyEntry)
	}
	if verifyEntry.MerchantRef != prepared.MerchantRef {
		test.Fatalf("unexpected merchant ref %s", verifyEntry.MerchantRef)
	}
}

func TestPrepareValidatesIntent(test *testing.T) {
	test.Parallel()
	fixture := newSettlementFixture(test)
	ctx := context.Background()
	userID := mustUserID(test, "guest-1")
	testCases := []struct {
		name            string
		reservationType ReservationType
		intent          Intent
		expected        error
	}{
		{name: "missing user", reservationType: ReservationTypeLodging, intent: Intent{}, expected: ErrInvalidUserID},
		{name: "missing lodging", reservationType: ReservationTypeLodging, intent: Intent{UserID: userID}, expected: ErrInvalidIntent},
		{name: "inverted stay", reservationType: ReservationTypeLodging, intent: Intent{UserID: userID, Lodging: &LodgingIntent{
			ResourceID: "room-1", CheckIn: mustDate(test, "2025-10-20"), CheckOut: mustDate(test, "2025-10-18"), Quantity: 1,
		}}, expected: ErrInvalidDateRange},
		{name: "courier as room", reservationType: ReservationTypeLodging, intent: Intent{UserID: userID, Lodging: &LodgingIntent{
			ResourceID: "courier-1", CheckIn: mustDate(test, "2025-10-18"), CheckOut: mustDate(test, "2025-10-19"), Quantity: 1,
		}}, expected: ErrInvalidResourceKind},
		{name: "three legs", reservationType: ReservationTypeFlight, intent: Intent{UserID: userID, Flight: &FlightIntent{Legs: []FlightLegIntent{
			{FlightID: "F-OUT", Passengers: 1}, {FlightID: "F-IN", Passengers: 1}, {FlightID: "F-OUT", Passengers: 1},
		}}}, expected: ErrInvalidLineItems},
		{name: "seat count mismatch", reservationType: ReservationTypeFlight, intent: Intent{UserID: userID, Flight: &FlightIntent{
			TripType: TripTypeOneWay, Legs: []FlightLegIntent{{FlightID: "F-OUT", Passengers: 2, SeatCodes: []string{"1A"}}},
		}}, expected: ErrInvalidIntent},
		{name: "free delivery", reservationType: ReservationTypeDelivery, intent: Intent{UserID: userID, Delivery: &DeliveryIntent{
			ResourceID: "courier-1", PickupDate: mustDate(test, "2025-10-05"), Recipient: "Lee", Address: "1 Jeju-ro",
		}}, expected: ErrInvalidAmount},
	}
	for _, testCase := range testCases {
		if _, err := fixture.service.Router().Prepare(ctx, testCase.reservationType, testCase.intent); !errors.Is(err, testCase.expected) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, err)
		}
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	gateway := newStubGateway()
	if _, err := NewService(nil, gateway, fixedClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(store, nil, fixedClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil gateway, got %v", err)
	}
	if _, err := NewService(store, gateway, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
	if _, err := NewService(store, gateway, fixedClock, WithInventoryRetries(0)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for zero retries, got %v", err)
	}
}
