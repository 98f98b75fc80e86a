package settlement

import "context"

// Sequencer hands out per (day, domain) sequence numbers.
type Sequencer interface {
	NextSequence(ctx context.Context, dayStamp string, code DomainCode) (int64, error)
}

// CatalogStore reads the resources and flights that bookings refer to.
type CatalogStore interface {
	GetResource(ctx context.Context, resourceID string) (Resource, error)
	GetFlight(ctx context.Context, flightID string) (Flight, error)
}

// InventoryStore persists per (resource, date) inventory units.
// SwapInventoryRemaining must compare the version and bump it in one statement.
type InventoryStore interface {
	GetInventoryUnit(ctx context.Context, resourceID string, date Date) (InventoryUnit, error)
	CreateInventoryUnit(ctx context.Context, unit InventoryUnit) error
	SwapInventoryRemaining(ctx context.Context, resourceID string, date Date, expectedVersion int64, remaining int) error
}

// SeatStore persists seat maps. ReserveSeat must be a single conditional write.
type SeatStore interface {
	CreateSeats(ctx context.Context, seats []SeatUnit) error
	ListSeats(ctx context.Context, flightID string) ([]SeatUnit, error)
	ReserveSeat(ctx context.Context, seatID SeatID) error
	ReleaseSeat(ctx context.Context, seatID SeatID) error
	DeleteSeats(ctx context.Context, flightID string) error
}

// PaymentStore persists payment masters and details.
// GetPaymentMaster locks the row when called inside a transaction.
// An approval id settles at most one master; UpdatePaymentMaster reports
// ErrApprovalInUse when it would be recorded twice.
type PaymentStore interface {
	CreatePaymentMaster(ctx context.Context, master PaymentMaster) error
	GetPaymentMaster(ctx context.Context, merchantRef MerchantRef) (PaymentMaster, error)
	FindPaymentMasterByApproval(ctx context.Context, approvalID string) (PaymentMaster, error)
	UpdatePaymentMaster(ctx context.Context, master PaymentMaster, from PaymentStatus) error
	InsertPaymentDetails(ctx context.Context, details []PaymentDetail) error
	ListPaymentDetails(ctx context.Context, merchantRef MerchantRef) ([]PaymentDetail, error)
	UpdatePaymentDetail(ctx context.Context, detail PaymentDetail, from DetailStatus) error
}

// ReservationStore persists the per-domain line items.
type ReservationStore interface {
	CreateLodgingReservation(ctx context.Context, reservation LodgingReservation) error
	ListLodgingReservations(ctx context.Context, merchantRef MerchantRef) ([]LodgingReservation, error)
	CreateFlightReservation(ctx context.Context, reservation FlightReservation) error
	ListFlightReservations(ctx context.Context, merchantRef MerchantRef) ([]FlightReservation, error)
	CreateDeliveryReservation(ctx context.Context, reservation DeliveryReservation) error
	ListDeliveryReservations(ctx context.Context, merchantRef MerchantRef) ([]DeliveryReservation, error)
	SetReservationStatus(ctx context.Context, reservationType ReservationType, reservationID ReservationID, from, to ReservationStatus, reason string) error
}

// Store is the persistence contract used by the settlement engine.
// (gormstore implements this.)
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	Sequencer
	CatalogStore
	InventoryStore
	SeatStore
	PaymentStore
	ReservationStore
}
