package settlement

import (
	"fmt"
	"strings"
	"time"
)

// Amount is an integer currency amount in the smallest unit (won).
type Amount int64

// Int64 returns the raw amount.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// NewAmount validates an amount and ensures it is strictly positive.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// ReservationType tags every settlement request with its business domain.
type ReservationType string

const (
	ReservationTypeLodging  ReservationType = "LODGING"
	ReservationTypeFlight   ReservationType = "FLIGHT"
	ReservationTypeDelivery ReservationType = "DELIVERY"
)

// String returns the tag value.
func (reservationType ReservationType) String() string {
	return string(reservationType)
}

// ParseReservationType normalizes a tag and rejects anything outside the closed set.
func ParseReservationType(raw string) (ReservationType, error) {
	normalized := ReservationType(strings.ToUpper(strings.TrimSpace(raw)))
	switch normalized {
	case ReservationTypeLodging, ReservationTypeFlight, ReservationTypeDelivery:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedReservationType, raw)
	}
}

// DomainCode is the short code embedded in reservation identifiers.
type DomainCode string

const (
	DomainCodeLodging  DomainCode = "ACC"
	DomainCodeFlight   DomainCode = "FLT"
	DomainCodeDelivery DomainCode = "DLV"
)

// String returns the code value.
func (code DomainCode) String() string {
	return string(code)
}

// ReservationStatus defines the line item lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusPaid      ReservationStatus = "PAID"
	ReservationStatusFailed    ReservationStatus = "FAILED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusRefunded  ReservationStatus = "REFUNDED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
)

// String returns the status value.
func (status ReservationStatus) String() string {
	return string(status)
}

// ParseReservationStatus validates a stored status value.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(raw)
	switch status {
	case ReservationStatusPending, ReservationStatusPaid, ReservationStatusFailed,
		ReservationStatusCancelled, ReservationStatusRefunded, ReservationStatusCompleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReservationStatus, raw)
	}
}

// PaymentStatus defines the payment master lifecycle.
type PaymentStatus string

const (
	PaymentStatusReady           PaymentStatus = "READY"
	PaymentStatusPaid            PaymentStatus = "PAID"
	PaymentStatusFailed          PaymentStatus = "FAILED"
	PaymentStatusRefunded        PaymentStatus = "REFUNDED"
	PaymentStatusPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
)

// String returns the status value.
func (status PaymentStatus) String() string {
	return string(status)
}

// ParsePaymentStatus validates a stored status value.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(raw)
	switch status {
	case PaymentStatusReady, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartialRefunded:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
	}
}

// Refundable reports whether money is still held for the payment.
func (status PaymentStatus) Refundable() bool {
	return status == PaymentStatusPaid || status == PaymentStatusPartialRefunded
}

// DetailStatus defines the payment detail lifecycle.
type DetailStatus string

const (
	DetailStatusPaid     DetailStatus = "PAID"
	DetailStatusRefunded DetailStatus = "REFUNDED"
)

// UserID identifies the owner of a reservation.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// ReservationID identifies a reservation line item.
type ReservationID struct {
	value string
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset.
func (id ReservationID) IsZero() bool {
	return id.value == ""
}

// MerchantRef identifies one checkout attempt towards the gateway.
type MerchantRef struct {
	value string
}

// NewMerchantRef validates and normalizes a merchant reference.
func NewMerchantRef(raw string) (MerchantRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MerchantRef{}, fmt.Errorf("%w: empty value", ErrInvalidMerchantRef)
	}
	return MerchantRef{value: trimmed}, nil
}

// String returns the normalized reference.
func (ref MerchantRef) String() string {
	return ref.value
}

// Date is a calendar day in UTC.
type Date struct {
	value time.Time
}

const (
	dateLayout     = "2006-01-02"
	dayStampLayout = "20060102"
)

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{value: parsed}, nil
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(timestamp time.Time) Date {
	utc := timestamp.UTC()
	return Date{value: time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)}
}

// String returns the YYYY-MM-DD form.
func (date Date) String() string {
	return date.value.Format(dateLayout)
}

// DayStamp returns the compact YYYYMMDD form used in reservation identifiers.
func (date Date) DayStamp() string {
	return date.value.Format(dayStampLayout)
}

// Time returns midnight UTC of the day.
func (date Date) Time() time.Time {
	return date.value
}

// AddDays shifts the date by whole days.
func (date Date) AddDays(days int) Date {
	return Date{value: date.value.AddDate(0, 0, days)}
}

// Before reports whether date is strictly earlier than other.
func (date Date) Before(other Date) bool {
	return date.value.Before(other.value)
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date.value.IsZero()
}

// DateRange is a half-open range of calendar days [start, end).
type DateRange struct {
	start Date
	end   Date
}

// NewDateRange validates that end is strictly after start.
func NewDateRange(start Date, end Date) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: missing bound", ErrInvalidDateRange)
	}
	if !start.Before(end) {
		return DateRange{}, fmt.Errorf("%w: %s must precede %s", ErrInvalidDateRange, start, end)
	}
	return DateRange{start: start, end: end}, nil
}

// SingleDay returns the range covering exactly one date.
func SingleDay(date Date) DateRange {
	return DateRange{start: date, end: date.AddDays(1)}
}

// Start returns the first day of the range.
func (dateRange DateRange) Start() Date {
	return dateRange.start
}

// End returns the exclusive upper bound.
func (dateRange DateRange) End() Date {
	return dateRange.end
}

// Nights returns the number of days in the range.
func (dateRange DateRange) Nights() int {
	return len(dateRange.Dates())
}

// Dates enumerates every day in the range.
func (dateRange DateRange) Dates() []Date {
	dates := make([]Date, 0)
	for current := dateRange.start; current.Before(dateRange.end); current = current.AddDays(1) {
		dates = append(dates, current)
	}
	return dates
}

// ResourceKind classifies inventory-backed catalog resources.
type ResourceKind string

const (
	ResourceKindRoom    ResourceKind = "ROOM"
	ResourceKindCourier ResourceKind = "COURIER"
)

// Resource is a catalog entry whose daily capacity is tracked by the inventory ledger.
type Resource struct {
	ResourceID string
	Kind       ResourceKind
	Name       string
	BasePrice  Amount
	Capacity   int
}

// Flight is a catalog entry whose seats are tracked by the seat allocator.
type Flight struct {
	FlightID         string
	FlightNumber     string
	DepartureAirport string
	ArrivalAirport   string
	DepartureAt      time.Time
	Fare             Amount
}

// InventoryUnit is the remaining capacity of one resource on one date.
type InventoryUnit struct {
	ResourceID string
	Date       Date
	Remaining  int
	Available  bool
	Version    int64
}

// SeatClass tags a seat row.
type SeatClass string

const (
	SeatClassPremium SeatClass = "PREMIUM"
	SeatClassEconomy SeatClass = "ECONOMY"
)

// SeatID identifies a seat on a flight.
type SeatID struct {
	FlightID string
	Code     string
}

// String returns flight/code.
func (seatID SeatID) String() string {
	return seatID.FlightID + "/" + seatID.Code
}

// SeatUnit is one seat of a flight's seat map.
type SeatUnit struct {
	FlightID        string
	Code            string
	Row             int
	Column          int
	Class           SeatClass
	Reserved        bool
	PriceAdjustment Amount
}

// ID returns the seat key.
func (seat SeatUnit) ID() SeatID {
	return SeatID{FlightID: seat.FlightID, Code: seat.Code}
}

// LodgingReservation is a room booking over a stay.
type LodgingReservation struct {
	ReservationID ReservationID
	MerchantRef   MerchantRef
	UserID        UserID
	ResourceID    string
	Stay          DateRange
	Quantity      int
	NightlyPrice  Amount
	Status        ReservationStatus
	Reason        string
	CreatedAt     time.Time
}

// ExpectedAmount is nightly price times quantity summed over the stay.
func (reservation LodgingReservation) ExpectedAmount() Amount {
	return reservation.NightlyPrice * Amount(reservation.Quantity) * Amount(reservation.Stay.Nights())
}

// FlightReservation is one leg of a flight booking.
type FlightReservation struct {
	ReservationID    ReservationID
	MerchantRef      MerchantRef
	UserID           UserID
	FlightID         string
	LegIndex         int
	DepartureAirport string
	ArrivalAirport   string
	Passengers       int
	SeatCodes        []string
	Amount           Amount
	Status           ReservationStatus
	Reason           string
	CreatedAt        time.Time
}

// DeliveryReservation is a courier pickup booking.
type DeliveryReservation struct {
	ReservationID ReservationID
	MerchantRef   MerchantRef
	UserID        UserID
	ResourceID    string
	PickupDate    Date
	Sender        string
	Recipient     string
	Address       string
	WeightGrams   int
	TotalPrice    Amount
	Status        ReservationStatus
	Reason        string
	CreatedAt     time.Time
}

// PaymentMaster is the single money record of one checkout.
type PaymentMaster struct {
	MerchantRef     MerchantRef
	ReservationType ReservationType
	UserID          UserID
	TotalAmount     Amount
	PaymentMethod   string
	ApprovalID      string
	Status          PaymentStatus
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentDetail is the money record of one line item inside a checkout.
type PaymentDetail struct {
	MerchantRef     MerchantRef
	ReservationID   ReservationID
	ReservationType ReservationType
	Amount          Amount
	Status          DetailStatus
	Reason          string
}

// PaymentView bundles a master with its details.
type PaymentView struct {
	Master  PaymentMaster
	Details []PaymentDetail
}
