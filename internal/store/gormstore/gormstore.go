package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	mysqlDuplicateEntryCode    = 1062
	errorOperationStore        = "store"
	errorSubjectCounter        = "counter"
	errorSubjectResource       = "resource"
	errorSubjectFlight         = "flight"
	errorSubjectInventory      = "inventory"
	errorSubjectSeat           = "seat"
	errorSubjectPayment        = "payment"
	errorSubjectPaymentDetail  = "payment_detail"
	errorSubjectReservation    = "reservation"
	errorCodeCreate            = "create"
	errorCodeDelete            = "delete"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeIncrement         = "increment"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeRelease           = "release"
	errorCodeReserve           = "reserve"
	errorCodeSwap              = "swap"
	errorCodeUpdate            = "update"
	errorCodeUpdateStatus      = "update_status"
	errorCodeUpsert            = "upsert"
	seatInsertBatchSize        = 100
	lockingStrengthUpdate      = "UPDATE"
	counterWhereClause         = "day_stamp = ? AND domain_code = ?"
	inventoryWhereClause       = "resource_id = ? AND calendar_date = ?"
	seatWhereClause            = "flight_id = ? AND code = ?"
	merchantRefWhereClause     = "merchant_ref = ?"
	reservationIDWhereClause   = "reservation_id = ? AND status = ?"
	paymentMasterWhereClause   = "merchant_ref = ? AND status = ?"
	paymentDetailWhereClause   = "merchant_ref = ? AND reservation_id = ? AND status = ?"
	inventoryVersionExpression = "version + 1"
	counterIncrementExpression = "last_value + 1"
)

// Store implements settlement.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore settlement.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// NextSequence seeds the (day, code) row if absent and increments it. The
// UPDATE holds the row lock until the surrounding transaction ends, so
// numbers drawn by a rolled-back checkout are handed out again.
func (store *Store) NextSequence(ctx context.Context, dayStamp string, code settlement.DomainCode) (int64, error) {
	var counter Counter
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		seed := Counter{DayStamp: dayStamp, DomainCode: code.String()}
		if err := transaction.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		err := transaction.Model(&Counter{}).
			Where(counterWhereClause, dayStamp, code.String()).
			Update("last_value", gorm.Expr(counterIncrementExpression)).Error
		if err != nil {
			return err
		}
		return transaction.Where(counterWhereClause, dayStamp, code.String()).Take(&counter).Error
	})
	if err != nil {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeIncrement, err)
	}
	return counter.LastValue, nil
}

func (store *Store) GetResource(ctx context.Context, resourceID string) (settlement.Resource, error) {
	var model Resource
	err := store.db.WithContext(ctx).Where("resource_id = ?", resourceID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.Resource{}, wrapStoreError(errorSubjectResource, errorCodeGet, settlement.ErrUnknownResource)
		}
		return settlement.Resource{}, wrapStoreError(errorSubjectResource, errorCodeGet, err)
	}
	return mapResource(model), nil
}

func (store *Store) GetFlight(ctx context.Context, flightID string) (settlement.Flight, error) {
	var model Flight
	err := store.db.WithContext(ctx).Where("flight_id = ?", flightID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.Flight{}, wrapStoreError(errorSubjectFlight, errorCodeGet, settlement.ErrUnknownFlight)
		}
		return settlement.Flight{}, wrapStoreError(errorSubjectFlight, errorCodeGet, err)
	}
	return mapFlight(model), nil
}

// UpsertResource creates or replaces a catalog resource.
func (store *Store) UpsertResource(ctx context.Context, resource settlement.Resource) error {
	now := time.Now().UTC()
	model := Resource{
		ResourceID: resource.ResourceID,
		Kind:       string(resource.Kind),
		Name:       resource.Name,
		BasePrice:  resource.BasePrice.Int64(),
		Capacity:   resource.Capacity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "name", "base_price", "capacity", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectResource, errorCodeUpsert, err)
	}
	return nil
}

// UpsertFlight creates or replaces a catalog flight.
func (store *Store) UpsertFlight(ctx context.Context, flight settlement.Flight) error {
	now := time.Now().UTC()
	model := Flight{
		FlightID:         flight.FlightID,
		FlightNumber:     flight.FlightNumber,
		DepartureAirport: flight.DepartureAirport,
		ArrivalAirport:   flight.ArrivalAirport,
		DepartureAt:      flight.DepartureAt.UTC(),
		Fare:             flight.Fare.Int64(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "flight_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"flight_number", "departure_airport", "arrival_airport", "departure_at", "fare", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectFlight, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetInventoryUnit(ctx context.Context, resourceID string, date settlement.Date) (settlement.InventoryUnit, error) {
	var model InventoryUnit
	err := store.db.WithContext(ctx).Where(inventoryWhereClause, resourceID, date.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.InventoryUnit{}, wrapStoreError(errorSubjectInventory, errorCodeGet, settlement.ErrInventoryUnitNotFound)
		}
		return settlement.InventoryUnit{}, wrapStoreError(errorSubjectInventory, errorCodeGet, err)
	}
	unit, err := mapInventoryUnit(model)
	if err != nil {
		return settlement.InventoryUnit{}, wrapStoreError(errorSubjectInventory, errorCodeInvalid, err)
	}
	return unit, nil
}

// CreateInventoryUnit seeds a row. It uses ON CONFLICT DO NOTHING so a lost
// race does not abort the caller's PostgreSQL transaction.
func (store *Store) CreateInventoryUnit(ctx context.Context, unit settlement.InventoryUnit) error {
	model := InventoryUnit{
		ResourceID:   unit.ResourceID,
		CalendarDate: unit.Date.String(),
		Remaining:    unit.Remaining,
		Available:    unit.Available,
		Version:      unit.Version,
	}
	result := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return wrapStoreError(errorSubjectInventory, errorCodeDuplicate, settlement.ErrInventoryUnitExists)
		}
		return wrapStoreError(errorSubjectInventory, errorCodeCreate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectInventory, errorCodeDuplicate, settlement.ErrInventoryUnitExists)
	}
	return nil
}

func (store *Store) SwapInventoryRemaining(ctx context.Context, resourceID string, date settlement.Date, expectedVersion int64, remaining int) error {
	result := store.db.WithContext(ctx).
		Model(&InventoryUnit{}).
		Where(inventoryWhereClause+" AND version = ?", resourceID, date.String(), expectedVersion).
		Updates(map[string]any{
			"remaining": remaining,
			"version":   gorm.Expr(inventoryVersionExpression),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectInventory, errorCodeSwap, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectInventory, errorCodeSwap, settlement.ErrVersionConflict)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return settlement.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntryCode
	}
	return false
}

func mapResource(model Resource) settlement.Resource {
	return settlement.Resource{
		ResourceID: model.ResourceID,
		Kind:       settlement.ResourceKind(model.Kind),
		Name:       model.Name,
		BasePrice:  settlement.Amount(model.BasePrice),
		Capacity:   model.Capacity,
	}
}

func mapFlight(model Flight) settlement.Flight {
	return settlement.Flight{
		FlightID:         model.FlightID,
		FlightNumber:     model.FlightNumber,
		DepartureAirport: model.DepartureAirport,
		ArrivalAirport:   model.ArrivalAirport,
		DepartureAt:      model.DepartureAt.UTC(),
		Fare:             settlement.Amount(model.Fare),
	}
}

func mapInventoryUnit(model InventoryUnit) (settlement.InventoryUnit, error) {
	date, err := settlement.ParseDate(model.CalendarDate)
	if err != nil {
		return settlement.InventoryUnit{}, err
	}
	return settlement.InventoryUnit{
		ResourceID: model.ResourceID,
		Date:       date,
		Remaining:  model.Remaining,
		Available:  model.Available,
		Version:    model.Version,
	}, nil
}
