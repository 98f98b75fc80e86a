package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Counter mirrors the reservation_counters table.
type Counter struct {
	DayStamp   string `gorm:"size:8;primaryKey"`
	DomainCode string `gorm:"size:8;primaryKey"`
	LastValue  int64  `gorm:"not null"`
}

func (Counter) TableName() string { return "reservation_counters" }

// Resource mirrors the resources catalog table.
type Resource struct {
	ResourceID string    `gorm:"size:64;primaryKey"`
	Kind       string    `gorm:"size:16;not null;index"`
	Name       string    `gorm:"not null"`
	BasePrice  int64     `gorm:"not null"`
	Capacity   int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (Resource) TableName() string { return "resources" }

// Flight mirrors the flights catalog table.
type Flight struct {
	FlightID         string    `gorm:"size:64;primaryKey"`
	FlightNumber     string    `gorm:"size:16;not null"`
	DepartureAirport string    `gorm:"size:8;not null"`
	ArrivalAirport   string    `gorm:"size:8;not null"`
	DepartureAt      time.Time `gorm:"not null"`
	Fare             int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Flight) TableName() string { return "flights" }

// InventoryUnit mirrors the inventory_units table.
type InventoryUnit struct {
	ResourceID   string `gorm:"size:64;primaryKey"`
	CalendarDate string `gorm:"size:10;primaryKey"`
	Remaining    int    `gorm:"not null"`
	Available    bool   `gorm:"not null"`
	Version      int64  `gorm:"not null"`
}

func (InventoryUnit) TableName() string { return "inventory_units" }

// Seat mirrors the seat_units table.
type Seat struct {
	FlightID        string `gorm:"size:64;primaryKey;index:idx_seat_units_scan,priority:1"`
	Code            string `gorm:"size:8;primaryKey"`
	SeatRow         int    `gorm:"not null;index:idx_seat_units_scan,priority:2"`
	SeatColumn      int    `gorm:"not null;index:idx_seat_units_scan,priority:3"`
	Class           string `gorm:"size:16;not null"`
	Reserved        bool   `gorm:"not null"`
	PriceAdjustment int64  `gorm:"not null"`
}

func (Seat) TableName() string { return "seat_units" }

// LodgingReservation mirrors the lodging_reservations table.
type LodgingReservation struct {
	ReservationID string    `gorm:"size:32;primaryKey"`
	MerchantRef   string    `gorm:"size:64;not null;index"`
	UserID        string    `gorm:"not null"`
	ResourceID    string    `gorm:"size:64;not null"`
	CheckIn       string    `gorm:"size:10;not null"`
	CheckOut      string    `gorm:"size:10;not null"`
	Quantity      int       `gorm:"not null"`
	NightlyPrice  int64     `gorm:"not null"`
	Status        string    `gorm:"size:16;not null"`
	Reason        string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (LodgingReservation) TableName() string { return "lodging_reservations" }

// FlightReservation mirrors the flight_reservations table.
type FlightReservation struct {
	ReservationID    string         `gorm:"size:32;primaryKey"`
	MerchantRef      string         `gorm:"size:64;not null;index"`
	UserID           string         `gorm:"not null"`
	FlightID         string         `gorm:"size:64;not null"`
	LegIndex         int            `gorm:"not null"`
	DepartureAirport string         `gorm:"size:8;not null"`
	ArrivalAirport   string         `gorm:"size:8;not null"`
	Passengers       int            `gorm:"not null"`
	SeatCodes        datatypes.JSON `gorm:"not null"`
	Amount           int64          `gorm:"not null"`
	Status           string         `gorm:"size:16;not null"`
	Reason           string         `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (FlightReservation) TableName() string { return "flight_reservations" }

// DeliveryReservation mirrors the delivery_reservations table.
type DeliveryReservation struct {
	ReservationID string    `gorm:"size:32;primaryKey"`
	MerchantRef   string    `gorm:"size:64;not null;index"`
	UserID        string    `gorm:"not null"`
	ResourceID    string    `gorm:"size:64;not null"`
	PickupDate    string    `gorm:"size:10;not null"`
	Sender        string    `gorm:"not null"`
	Recipient     string    `gorm:"not null"`
	Address       string    `gorm:"not null"`
	WeightGrams   int       `gorm:"not null"`
	TotalPrice    int64     `gorm:"not null"`
	Status        string    `gorm:"size:16;not null"`
	Reason        string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (DeliveryReservation) TableName() string { return "delivery_reservations" }

// PaymentMaster mirrors the payment_masters table. ApprovalID stays NULL
// until confirmation; the unique index keeps one gateway payment on one master.
type PaymentMaster struct {
	MerchantRef     string    `gorm:"size:64;primaryKey"`
	ReservationType string    `gorm:"size:16;not null"`
	UserID          string    `gorm:"not null;index"`
	TotalAmount     int64     `gorm:"not null"`
	PaymentMethod   string    `gorm:"not null"`
	ApprovalID      *string   `gorm:"size:64;uniqueIndex"`
	Status          string    `gorm:"size:24;not null"`
	Reason          string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (PaymentMaster) TableName() string { return "payment_masters" }

// PaymentDetail mirrors the payment_details table.
type PaymentDetail struct {
	MerchantRef     string `gorm:"size:64;primaryKey"`
	ReservationID   string `gorm:"size:32;primaryKey"`
	ReservationType string `gorm:"size:16;not null"`
	Amount          int64  `gorm:"not null"`
	Status          string `gorm:"size:16;not null"`
	Reason          string `gorm:"not null"`
}

func (PaymentDetail) TableName() string { return "payment_details" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Counter{},
		&Resource{},
		&Flight{},
		&InventoryUnit{},
		&Seat{},
		&LodgingReservation{},
		&FlightReservation{},
		&DeliveryReservation{},
		&PaymentMaster{},
		&PaymentDetail{},
	}
}
