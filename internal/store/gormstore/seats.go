package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateSeats inserts a seat map. Existing seats are left untouched and
// reported as ErrSeatsExist.
func (store *Store) CreateSeats(ctx context.Context, seats []settlement.SeatUnit) error {
	if len(seats) == 0 {
		return nil
	}
	models := make([]Seat, 0, len(seats))
	for _, seat := range seats {
		models = append(models, Seat{
			FlightID:        seat.FlightID,
			Code:            seat.Code,
			SeatRow:         seat.Row,
			SeatColumn:      seat.Column,
			Class:           string(seat.Class),
			Reserved:        seat.Reserved,
			PriceAdjustment: seat.PriceAdjustment.Int64(),
		})
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&models, seatInsertBatchSize)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeCreate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSeat, errorCodeDuplicate, settlement.ErrSeatsExist)
	}
	return nil
}

func (store *Store) ListSeats(ctx context.Context, flightID string) ([]settlement.SeatUnit, error) {
	var rows []Seat
	err := store.db.WithContext(ctx).
		Where("flight_id = ?", flightID).
		Order("seat_row ASC").
		Order("seat_column ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSeat, errorCodeList, err)
	}
	seats := make([]settlement.SeatUnit, 0, len(rows))
	for _, row := range rows {
		seats = append(seats, mapSeat(row))
	}
	return seats, nil
}

// ReserveSeat flips reserved from false to true in one conditional UPDATE.
func (store *Store) ReserveSeat(ctx context.Context, seatID settlement.SeatID) error {
	result := store.db.WithContext(ctx).
		Model(&Seat{}).
		Where(seatWhereClause+" AND reserved = ?", seatID.FlightID, seatID.Code, false).
		Update("reserved", true)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeReserve, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	exists, err := store.seatExists(ctx, seatID)
	if err != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeReserve, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectSeat, errorCodeReserve, settlement.ErrUnknownSeat)
	}
	return wrapStoreError(errorSubjectSeat, errorCodeReserve, settlement.ErrAlreadyReserved)
}

func (store *Store) ReleaseSeat(ctx context.Context, seatID settlement.SeatID) error {
	result := store.db.WithContext(ctx).
		Model(&Seat{}).
		Where(seatWhereClause, seatID.FlightID, seatID.Code).
		Update("reserved", false)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeRelease, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	exists, err := store.seatExists(ctx, seatID)
	if err != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeRelease, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectSeat, errorCodeRelease, settlement.ErrUnknownSeat)
	}
	return nil
}

// DeleteSeats removes a flight's seat map when none of its seats is reserved.
// The seat rows are locked first so no reservation can slip in between.
func (store *Store) DeleteSeats(ctx context.Context, flightID string) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var locked []Seat
		err := transaction.
			Clauses(clause.Locking{Strength: lockingStrengthUpdate}).
			Where("flight_id = ?", flightID).
			Find(&locked).Error
		if err != nil {
			return err
		}
		for _, seat := range locked {
			if seat.Reserved {
				return settlement.ErrSeatsInUse
			}
		}
		return transaction.Where("flight_id = ?", flightID).Delete(&Seat{}).Error
	})
	if err != nil {
		return wrapStoreError(errorSubjectSeat, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) seatExists(ctx context.Context, seatID settlement.SeatID) (bool, error) {
	var seat Seat
	err := store.db.WithContext(ctx).Where(seatWhereClause, seatID.FlightID, seatID.Code).Take(&seat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func mapSeat(model Seat) settlement.SeatUnit {
	return settlement.SeatUnit{
		FlightID:        model.FlightID,
		Code:            model.Code,
		Row:             model.SeatRow,
		Column:          model.SeatColumn,
		Class:           settlement.SeatClass(model.Class),
		Reserved:        model.Reserved,
		PriceAdjustment: settlement.Amount(model.PriceAdjustment),
	}
}
