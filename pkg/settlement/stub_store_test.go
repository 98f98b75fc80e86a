package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubStore struct {
	txMutex            sync.Mutex
	mutex              sync.Mutex
	sequences          map[string]int64
	resources          map[string]Resource
	flights            map[string]Flight
	inventory          map[string]InventoryUnit
	seats              map[string][]SeatUnit
	masters            map[string]PaymentMaster
	details            map[string][]PaymentDetail
	lodging            []LodgingReservation
	flightReservations []FlightReservation
	deliveries         []DeliveryReservation
	forcedConflicts    int
	statusWriteErr     error
}

// stubSnapshot is the state a stub transaction puts back when it fails.
type stubSnapshot struct {
	sequences          map[string]int64
	inventory          map[string]InventoryUnit
	seats              map[string][]SeatUnit
	masters            map[string]PaymentMaster
	details            map[string][]PaymentDetail
	lodging            []LodgingReservation
	flightReservations []FlightReservation
	deliveries         []DeliveryReservation
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		sequences: make(map[string]int64),
		resources: make(map[string]Resource),
		flights:   make(map[string]Flight),
		inventory: make(map[string]InventoryUnit),
		seats:     make(map[string][]SeatUnit),
		masters:   make(map[string]PaymentMaster),
		details:   make(map[string][]PaymentDetail),
	}
}

// WithTx serializes transactions and restores the snapshot taken at the
// start when fn fails.
func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	saved := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.rollback(saved)
		return err
	}
	return nil
}

func (store *stubStore) snapshot() stubSnapshot {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	saved := stubSnapshot{
		sequences:          make(map[string]int64, len(store.sequences)),
		inventory:          make(map[string]InventoryUnit, len(store.inventory)),
		seats:              make(map[string][]SeatUnit, len(store.seats)),
		masters:            make(map[string]PaymentMaster, len(store.masters)),
		details:            make(map[string][]PaymentDetail, len(store.details)),
		lodging:            append([]LodgingReservation(nil), store.lodging...),
		flightReservations: append([]FlightReservation(nil), store.flightReservations...),
		deliveries:         append([]DeliveryReservation(nil), store.deliveries...),
	}
	for key, value := range store.sequences {
		saved.sequences[key] = value
	}
	for key, unit := range store.inventory {
		saved.inventory[key] = unit
	}
	for key, seats := range store.seats {
		saved.seats[key] = append([]SeatUnit(nil), seats...)
	}
	for key, master := range store.masters {
		saved.masters[key] = master
	}
	for key, details := range store.details {
		saved.details[key] = append([]PaymentDetail(nil), details...)
	}
	return saved
}

func (store *stubStore) rollback(saved stubSnapshot) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sequences = saved.sequences
	store.inventory = saved.inventory
	store.seats = saved.seats
	store.masters = saved.masters
	store.details = saved.details
	store.lodging = saved.lodging
	store.flightReservations = saved.flightReservations
	store.deliveries = saved.deliveries
}

func (store *stubStore) NextSequence(ctx context.Context, dayStamp string, code DomainCode) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := dayStamp + code.String()
	store.sequences[key]++
	return store.sequences[key], nil
}

func (store *stubStore) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	resource, found := store.resources[resourceID]
	if !found {
		return Resource{}, fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
	}
	return resource, nil
}

func (store *stubStore) GetFlight(ctx context.Context, flightID string) (Flight, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	flight, found := store.flights[flightID]
	if !found {
		return Flight{}, fmt.Errorf("%w: %s", ErrUnknownFlight, flightID)
	}
	return flight, nil
}

func inventoryKey(resourceID string, date Date) string {
	return resourceID + "|" + date.String()
}

func (store *stubStore) GetInventoryUnit(ctx context.Context, resourceID string, date Date) (InventoryUnit, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	unit, found := store.inventory[inventoryKey(resourceID, date)]
	if !found {
		return InventoryUnit{}, ErrInventoryUnitNotFound
	}
	return unit, nil
}

func (store *stubStore) CreateInventoryUnit(ctx context.Context, unit InventoryUnit) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := inventoryKey(unit.ResourceID, unit.Date)
	if _, found := store.inventory[key]; found {
		return ErrInventoryUnitExists
	}
	store.inventory[key] = unit
	return nil
}

func (store *stubStore) SwapInventoryRemaining(ctx context.Context, resourceID string, date Date, expectedVersion int64, remaining int) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.forcedConflicts > 0 {
		store.forcedConflicts--
		return ErrVersionConflict
	}
	key := inventoryKey(resourceID, date)
	unit, found := store.inventory[key]
	if !found {
		return ErrInventoryUnitNotFound
	}
	if unit.Version != expectedVersion {
		return ErrVersionConflict
	}
	if remaining < 0 {
		return fmt.Errorf("negative remaining %d", remaining)
	}
	unit.Remaining = remaining
	unit.Version++
	store.inventory[key] = unit
	return nil
}

func (store *stubStore) CreateSeats(ctx context.Context, seats []SeatUnit) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if len(seats) == 0 {
		return nil
	}
	flightID := seats[0].FlightID
	if len(store.seats[flightID]) > 0 {
		return ErrSeatsExist
	}
	store.seats[flightID] = append([]SeatUnit(nil), seats...)
	return nil
}

func (store *stubStore) ListSeats(ctx context.Context, flightID string) ([]SeatUnit, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return append([]SeatUnit(nil), store.seats[flightID]...), nil
}

func (store *stubStore) ReserveSeat(ctx context.Context, seatID SeatID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	seats := store.seats[seatID.FlightID]
	for index := range seats {
		if seats[index].Code != seatID.Code {
			continue
		}
		if seats[index].Reserved {
			return ErrAlreadyReserved
		}
		seats[index].Reserved = true
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSeat, seatID)
}

func (store *stubStore) ReleaseSeat(ctx context.Context, seatID SeatID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	seats := store.seats[seatID.FlightID]
	for index := range seats {
		if seats[index].Code == seatID.Code {
			seats[index].Reserved = false
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSeat, seatID)
}

func (store *stubStore) DeleteSeats(ctx context.Context, flightID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, seat := range store.seats[flightID] {
		if seat.Reserved {
			return ErrSeatsInUse
		}
	}
	delete(store.seats, flightID)
	return nil
}

func (store *stubStore) CreatePaymentMaster(ctx context.Context, master PaymentMaster) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, found := store.masters[master.MerchantRef.String()]; found {
		return ErrPaymentExists
	}
	store.masters[master.MerchantRef.String()] = master
	return nil
}

func (store *stubStore) GetPaymentMaster(ctx context.Context, merchantRef MerchantRef) (PaymentMaster, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	master, found := store.masters[merchantRef.String()]
	if !found {
		return PaymentMaster{}, fmt.Errorf("%w: %s", ErrUnknownPayment, merchantRef)
	}
	return master, nil
}

func (store *stubStore) UpdatePaymentMaster(ctx context.Context, master PaymentMaster, from PaymentStatus) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	current, found := store.masters[master.MerchantRef.String()]
	if !found {
		return ErrUnknownPayment
	}
	if current.Status != from {
		return ErrPaymentStateChanged
	}
	if master.ApprovalID != "" {
		for key, other := range store.masters {
			if key != master.MerchantRef.String() && other.ApprovalID == master.ApprovalID {
				return ErrApprovalInUse
			}
		}
	}
	store.masters[master.MerchantRef.String()] = master
	return nil
}

func (store *stubStore) FindPaymentMasterByApproval(ctx context.Context, approvalID string) (PaymentMaster, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, master := range store.masters {
		if approvalID != "" && master.ApprovalID == approvalID {
			return master, nil
		}
	}
	return PaymentMaster{}, fmt.Errorf("%w: approval %s", ErrUnknownPayment, approvalID)
}

func (store *stubStore) InsertPaymentDetails(ctx context.Context, details []PaymentDetail) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, detail := range details {
		key := detail.MerchantRef.String()
		store.details[key] = append(store.details[key], detail)
	}
	return nil
}

func (store *stubStore) ListPaymentDetails(ctx context.Context, merchantRef MerchantRef) ([]PaymentDetail, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return append([]PaymentDetail(nil), store.details[merchantRef.String()]...), nil
}

func (store *stubStore) UpdatePaymentDetail(ctx context.Context, detail PaymentDetail, from DetailStatus) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	details := store.details[detail.MerchantRef.String()]
	for index := range details {
		if details[index].ReservationID != detail.ReservationID {
			continue
		}
		if details[index].Status != from {
			return ErrPaymentStateChanged
		}
		details[index] = detail
		return nil
	}
	return ErrUnknownReservation
}

func (store *stubStore) CreateLodgingReservation(ctx context.Context, reservation LodgingReservation) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.lodging = append(store.lodging, reservation)
	return nil
}

func (store *stubStore) ListLodgingReservations(ctx context.Context, merchantRef MerchantRef) ([]LodgingReservation, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var reservations []LodgingReservation
	for _, reservation := range store.lodging {
		if reservation.MerchantRef == merchantRef {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

func (store *stubStore) CreateFlightReservation(ctx context.Context, reservation FlightReservation) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.flightReservations = append(store.flightReservations, reservation)
	return nil
}

func (store *stubStore) ListFlightReservations(ctx context.Context, merchantRef MerchantRef) ([]FlightReservation, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var reservations []FlightReservation
	for _, reservation := range store.flightReservations {
		if reservation.MerchantRef == merchantRef {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

func (store *stubStore) CreateDeliveryReservation(ctx context.Context, reservation DeliveryReservation) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.deliveries = append(store.deliveries, reservation)
	return nil
}

func (store *stubStore) ListDeliveryReservations(ctx context.Context, merchantRef MerchantRef) ([]DeliveryReservation, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var reservations []DeliveryReservation
	for _, reservation := range store.deliveries {
		if reservation.MerchantRef == merchantRef {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

func (store *stubStore) SetReservationStatus(ctx context.Context, reservationType ReservationType, reservationID ReservationID, from, to ReservationStatus, reason string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.statusWriteErr != nil {
		return store.statusWriteErr
	}
	switch reservationType {
	case ReservationTypeLodging:
		for index := range store.lodging {
			if store.lodging[index].ReservationID == reservationID {
				return transition(&store.lodging[index].Status, &store.lodging[index].Reason, from, to, reason)
			}
		}
	case ReservationTypeFlight:
		for index := range store.flightReservations {
			if store.flightReservations[index].ReservationID == reservationID {
				return transition(&store.flightReservations[index].Status, &store.flightReservations[index].Reason, from, to, reason)
			}
		}
	case ReservationTypeDelivery:
		for index := range store.deliveries {
			if store.deliveries[index].ReservationID == reservationID {
				return transition(&store.deliveries[index].Status, &store.deliveries[index].Reason, from, to, reason)
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownReservation, reservationID)
}

func transition(status *ReservationStatus, storedReason *string, from, to ReservationStatus, reason string) error {
	if *status != from {
		return ErrReservationStateChanged
	}
	*status = to
	*storedReason = reason
	return nil
}

func (store *stubStore) addResource(resource Resource) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.resources[resource.ResourceID] = resource
}

func (store *stubStore) addFlight(flight Flight) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.flights[flight.FlightID] = flight
}

func (store *stubStore) mustMaster(test *testing.T, merchantRef MerchantRef) PaymentMaster {
	test.Helper()
	master, err := store.GetPaymentMaster(context.Background(), merchantRef)
	if err != nil {
		test.Fatalf("payment master %s: %v", merchantRef, err)
	}
	return master
}

func (store *stubStore) lodgingStatus(test *testing.T, reservationID ReservationID) ReservationStatus {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, reservation := range store.lodging {
		if reservation.ReservationID == reservationID {
			return reservation.Status
		}
	}
	test.Fatalf("lodging reservation %s not found", reservationID)
	return ""
}

func (store *stubStore) flightReservation(test *testing.T, reservationID ReservationID) FlightReservation {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, reservation := range store.flightReservations {
		if reservation.ReservationID == reservationID {
			return reservation
		}
	}
	test.Fatalf("flight reservation %s not found", reservationID)
	return FlightReservation{}
}

func (store *stubStore) forceMasterStatus(merchantRef MerchantRef, status PaymentStatus) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	master := store.masters[merchantRef.String()]
	master.Status = status
	store.masters[merchantRef.String()] = master
}

func (store *stubStore) seatReserved(test *testing.T, flightID string, code string) bool {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, seat := range store.seats[flightID] {
		if seat.Code == code {
			return seat.Reserved
		}
	}
	test.Fatalf("seat %s/%s not found", flightID, code)
	return false
}

type stubCancellation struct {
	approvalID string
	amount     Amount
	isFull     bool
}

type stubGateway struct {
	mutex         sync.Mutex
	payments      map[string]GatewayPayment
	fetchErr      error
	cancelErr     error
	onFetch       func()
	cancellations []stubCancellation
}

func newStubGateway() *stubGateway {
	return &stubGateway{payments: make(map[string]GatewayPayment)}
}

func (gateway *stubGateway) pay(approvalID string, amount Amount) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.payments[approvalID] = GatewayPayment{ApprovalID: approvalID, Amount: amount, Status: GatewayStatusPaid, Method: "card"}
}

func (gateway *stubGateway) FetchPayment(ctx context.Context, approvalID string) (GatewayPayment, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.onFetch != nil {
		gateway.onFetch()
	}
	if gateway.fetchErr != nil {
		return GatewayPayment{}, gateway.fetchErr
	}
	payment, found := gateway.payments[approvalID]
	if !found {
		return GatewayPayment{}, fmt.Errorf("payment %s not found", approvalID)
	}
	return payment, nil
}

func (gateway *stubGateway) CancelPayment(ctx context.Context, approvalID string, amount Amount, isFull bool) (GatewayCancellation, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.cancelErr != nil {
		return GatewayCancellation{}, gateway.cancelErr
	}
	gateway.cancellations = append(gateway.cancellations, stubCancellation{approvalID: approvalID, amount: amount, isFull: isFull})
	return GatewayCancellation{ApprovalID: approvalID, Amount: amount, Status: "cancelled"}, nil
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func fixedClock() time.Time {
	return time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)
}

func mustNewService(test *testing.T, store Store, gateway Gateway, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, gateway, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustDate(test *testing.T, raw string) Date {
	test.Helper()
	date, err := ParseDate(raw)
	if err != nil {
		test.Fatalf("date: %v", err)
	}
	return date
}

func mustDateRange(test *testing.T, start string, end string) DateRange {
	test.Helper()
	dateRange, err := NewDateRange(mustDate(test, start), mustDate(test, end))
	if err != nil {
		test.Fatalf("date range: %v", err)
	}
	return dateRange
}

func mustRemaining(test *testing.T, ledger *InventoryLedger, resourceID string, date Date) int {
	test.Helper()
	remaining, err := ledger.Remaining(context.Background(), resourceID, date)
	if err != nil {
		test.Fatalf("remaining %s %s: %v", resourceID, date, err)
	}
	return remaining
}
