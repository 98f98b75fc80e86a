package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"gorm.io/datatypes"
)

func (store *Store) CreateLodgingReservation(ctx context.Context, reservation settlement.LodgingReservation) error {
	model := LodgingReservation{
		ReservationID: reservation.ReservationID.String(),
		MerchantRef:   reservation.MerchantRef.String(),
		UserID:        reservation.UserID.String(),
		ResourceID:    reservation.ResourceID,
		CheckIn:       reservation.Stay.Start().String(),
		CheckOut:      reservation.Stay.End().String(),
		Quantity:      reservation.Quantity,
		NightlyPrice:  reservation.NightlyPrice.Int64(),
		Status:        reservation.Status.String(),
		Reason:        reservation.Reason,
		CreatedAt:     reservation.CreatedAt.UTC(),
		UpdatedAt:     reservation.CreatedAt.UTC(),
	}
	return store.createReservation(ctx, &model)
}

func (store *Store) ListLodgingReservations(ctx context.Context, merchantRef settlement.MerchantRef) ([]settlement.LodgingReservation, error) {
	var rows []LodgingReservation
	if err := store.listReservations(ctx, merchantRef, "reservation_id ASC", &rows); err != nil {
		return nil, err
	}
	reservations := make([]settlement.LodgingReservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapLodgingReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (store *Store) CreateFlightReservation(ctx context.Context, reservation settlement.FlightReservation) error {
	seatCodes, err := seatCodesJSON(reservation.SeatCodes)
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	model := FlightReservation{
		ReservationID:    reservation.ReservationID.String(),
		MerchantRef:      reservation.MerchantRef.String(),
		UserID:           reservation.UserID.String(),
		FlightID:         reservation.FlightID,
		LegIndex:         reservation.LegIndex,
		DepartureAirport: reservation.DepartureAirport,
		ArrivalAirport:   reservation.ArrivalAirport,
		Passengers:       reservation.Passengers,
		SeatCodes:        seatCodes,
		Amount:           reservation.Amount.Int64(),
		Status:           reservation.Status.String(),
		Reason:           reservation.Reason,
		CreatedAt:        reservation.CreatedAt.UTC(),
		UpdatedAt:        reservation.CreatedAt.UTC(),
	}
	return store.createReservation(ctx, &model)
}

func (store *Store) ListFlightReservations(ctx context.Context, merchantRef settlement.MerchantRef) ([]settlement.FlightReservation, error) {
	var rows []FlightReservation
	if err := store.listReservations(ctx, merchantRef, "leg_index ASC", &rows); err != nil {
		return nil, err
	}
	reservations := make([]settlement.FlightReservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapFlightReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (store *Store) CreateDeliveryReservation(ctx context.Context, reservation settlement.DeliveryReservation) error {
	model := DeliveryReservation{
		ReservationID: reservation.ReservationID.String(),
		MerchantRef:   reservation.MerchantRef.String(),
		UserID:        reservation.UserID.String(),
		ResourceID:    reservation.ResourceID,
		PickupDate:    reservation.PickupDate.String(),
		Sender:        reservation.Sender,
		Recipient:     reservation.Recipient,
		Address:       reservation.Address,
		WeightGrams:   reservation.WeightGrams,
		TotalPrice:    reservation.TotalPrice.Int64(),
		Status:        reservation.Status.String(),
		Reason:        reservation.Reason,
		CreatedAt:     reservation.CreatedAt.UTC(),
		UpdatedAt:     reservation.CreatedAt.UTC(),
	}
	return store.createReservation(ctx, &model)
}

func (store *Store) ListDeliveryReservations(ctx context.Context, merchantRef settlement.MerchantRef) ([]settlement.DeliveryReservation, error) {
	var rows []DeliveryReservation
	if err := store.listReservations(ctx, merchantRef, "reservation_id ASC", &rows); err != nil {
		return nil, err
	}
	reservations := make([]settlement.DeliveryReservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapDeliveryReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// SetReservationStatus moves one line item from one status to another.
func (store *Store) SetReservationStatus(ctx context.Context, reservationType settlement.ReservationType, reservationID settlement.ReservationID, from, to settlement.ReservationStatus, reason string) error {
	var model any
	switch reservationType {
	case settlement.ReservationTypeLodging:
		model = &LodgingReservation{}
	case settlement.ReservationTypeFlight:
		model = &FlightReservation{}
	case settlement.ReservationTypeDelivery:
		model = &DeliveryReservation{}
	default:
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, fmt.Errorf("%w: %q", settlement.ErrUnsupportedReservationType, reservationType))
	}
	result := store.db.WithContext(ctx).
		Model(model).
		Where(reservationIDWhereClause, reservationID.String(), from.String()).
		Updates(map[string]any{
			"status":     to.String(),
			"reason":     reason,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, settlement.ErrReservationStateChanged)
	}
	return nil
}

func (store *Store) createReservation(ctx context.Context, model any) error {
	err := store.db.WithContext(ctx).Create(model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) listReservations(ctx context.Context, merchantRef settlement.MerchantRef, order string, rows any) error {
	err := store.db.WithContext(ctx).
		Where(merchantRefWhereClause, merchantRef.String()).
		Order(order).
		Find(rows).Error
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return nil
}

type reservationHeader struct {
	reservationID settlement.ReservationID
	merchantRef   settlement.MerchantRef
	userID        settlement.UserID
	status        settlement.ReservationStatus
}

func parseReservationHeader(reservationID, merchantRef, userID, status string) (reservationHeader, error) {
	parsedReservationID, err := settlement.NewReservationID(reservationID)
	if err != nil {
		return reservationHeader{}, err
	}
	parsedMerchantRef, err := settlement.NewMerchantRef(merchantRef)
	if err != nil {
		return reservationHeader{}, err
	}
	parsedUserID, err := settlement.NewUserID(userID)
	if err != nil {
		return reservationHeader{}, err
	}
	parsedStatus, err := settlement.ParseReservationStatus(status)
	if err != nil {
		return reservationHeader{}, err
	}
	return reservationHeader{
		reservationID: parsedReservationID,
		merchantRef:   parsedMerchantRef,
		userID:        parsedUserID,
		status:        parsedStatus,
	}, nil
}

func mapLodgingReservation(row LodgingReservation) (settlement.LodgingReservation, error) {
	header, err := parseReservationHeader(row.ReservationID, row.MerchantRef, row.UserID, row.Status)
	if err != nil {
		return settlement.LodgingReservation{}, err
	}
	checkIn, err := settlement.ParseDate(row.CheckIn)
	if err != nil {
		return settlement.LodgingReservation{}, err
	}
	checkOut, err := settlement.ParseDate(row.CheckOut)
	if err != nil {
		return settlement.LodgingReservation{}, err
	}
	stay, err := settlement.NewDateRange(checkIn, checkOut)
	if err != nil {
		return settlement.LodgingReservation{}, err
	}
	return settlement.LodgingReservation{
		ReservationID: header.reservationID,
		MerchantRef:   header.merchantRef,
		UserID:        header.userID,
		ResourceID:    row.ResourceID,
		Stay:          stay,
		Quantity:      row.Quantity,
		NightlyPrice:  settlement.Amount(row.NightlyPrice),
		Status:        header.status,
		Reason:        row.Reason,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapFlightReservation(row FlightReservation) (settlement.FlightReservation, error) {
	header, err := parseReservationHeader(row.ReservationID, row.MerchantRef, row.UserID, row.Status)
	if err != nil {
		return settlement.FlightReservation{}, err
	}
	var seatCodes []string
	if len(row.SeatCodes) > 0 {
		if err := json.Unmarshal(row.SeatCodes, &seatCodes); err != nil {
			return settlement.FlightReservation{}, err
		}
	}
	return settlement.FlightReservation{
		ReservationID:    header.reservationID,
		MerchantRef:      header.merchantRef,
		UserID:           header.userID,
		FlightID:         row.FlightID,
		LegIndex:         row.LegIndex,
		DepartureAirport: row.DepartureAirport,
		ArrivalAirport:   row.ArrivalAirport,
		Passengers:       row.Passengers,
		SeatCodes:        seatCodes,
		Amount:           settlement.Amount(row.Amount),
		Status:           header.status,
		Reason:           row.Reason,
		CreatedAt:        row.CreatedAt.UTC(),
	}, nil
}

func mapDeliveryReservation(row DeliveryReservation) (settlement.DeliveryReservation, error) {
	header, err := parseReservationHeader(row.ReservationID, row.MerchantRef, row.UserID, row.Status)
	if err != nil {
		return settlement.DeliveryReservation{}, err
	}
	pickupDate, err := settlement.ParseDate(row.PickupDate)
	if err != nil {
		return settlement.DeliveryReservation{}, err
	}
	return settlement.DeliveryReservation{
		ReservationID: header.reservationID,
		MerchantRef:   header.merchantRef,
		UserID:        header.userID,
		ResourceID:    row.ResourceID,
		PickupDate:    pickupDate,
		Sender:        row.Sender,
		Recipient:     row.Recipient,
		Address:       row.Address,
		WeightGrams:   row.WeightGrams,
		TotalPrice:    settlement.Amount(row.TotalPrice),
		Status:        header.status,
		Reason:        row.Reason,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func seatCodesJSON(seatCodes []string) (datatypes.JSON, error) {
	if seatCodes == nil {
		seatCodes = []string{}
	}
	encoded, err := json.Marshal(seatCodes)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}
