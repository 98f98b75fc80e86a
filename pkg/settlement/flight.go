package settlement

import (
	"context"
	"fmt"
	"strings"
)

// TripType selects how many legs a flight checkout carries.
type TripType string

const (
	TripTypeOneWay    TripType = "ONE_WAY"
	TripTypeRoundTrip TripType = "ROUND_TRIP"
)

// FlightLegIntent books one leg. Without SeatCodes seats are auto-assigned.
type FlightLegIntent struct {
	FlightID   string
	Passengers int
	SeatCodes  []string
}

// FlightIntent books a one-way or round-trip itinerary.
type FlightIntent struct {
	TripType TripType
	Legs     []FlightLegIntent
}

// AirportCodes maps external airport codes to internal ones.
// The mapping is copied on construction and never changes afterwards.
type AirportCodes struct {
	codes map[string]string
}

// NewAirportCodes builds an immutable directory from external→internal pairs.
func NewAirportCodes(mapping map[string]string) AirportCodes {
	codes := make(map[string]string, len(mapping))
	for external, internal := range mapping {
		codes[strings.ToUpper(strings.TrimSpace(external))] = strings.ToUpper(strings.TrimSpace(internal))
	}
	return AirportCodes{codes: codes}
}

// Resolve returns the internal code; unknown codes pass through normalized.
func (directory AirportCodes) Resolve(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if internal, found := directory.codes[normalized]; found {
		return internal
	}
	return normalized
}

// FlightAdapter settles flight bookings. Seats are held at prepare (hold-then-pay)
// and released when the leg fails or is refunded.
type FlightAdapter struct {
	settlementFlow
	airports AirportCodes
}

func newFlightAdapter(ledger *paymentLedger, airports AirportCodes) *FlightAdapter {
	return &FlightAdapter{
		settlementFlow: newSettlementFlow(ledger, ReservationTypeFlight, flightLineItems{}),
		airports:       airports,
	}
}

// Prepare holds seats for every leg, records one PENDING reservation per leg
// and opens a READY payment for their sum.
func (adapter *FlightAdapter) Prepare(ctx context.Context, intent Intent) (PrepareResult, error) {
	if err := validateIntentUser(intent); err != nil {
		return PrepareResult{}, err
	}
	if intent.Flight == nil {
		return PrepareResult{}, fmt.Errorf("%w: flight details are missing", ErrInvalidIntent)
	}
	legs, err := normalizeFlightLegs(*intent.Flight)
	if err != nil {
		return PrepareResult{}, err
	}

	return adapter.ledger.prepare(ctx, adapter.rules, intent.UserID, func(ctx context.Context, scope *txScope, merchantRef MerchantRef) ([]lineItem, error) {
		items := make([]lineItem, 0, len(legs))
		for legIndex, leg := range legs {
			reservation, err := adapter.prepareLeg(ctx, scope, merchantRef, intent.UserID, legIndex, leg)
			if err != nil {
				return nil, err
			}
			items = append(items, flightLineItem(reservation))
		}
		return items, nil
	})
}

func (adapter *FlightAdapter) prepareLeg(ctx context.Context, scope *txScope, merchantRef MerchantRef, userID UserID, legIndex int, leg FlightLegIntent) (FlightReservation, error) {
	flight, err := scope.store.GetFlight(ctx, leg.FlightID)
	if err != nil {
		return FlightReservation{}, err
	}
	if _, err := scope.seats.Initialize(ctx, flight.FlightID); err != nil {
		return FlightReservation{}, err
	}

	var (
		seatCodes   []string
		adjustments Amount
	)
	if len(leg.SeatCodes) == 0 {
		assigned, err := scope.assignSeats(ctx, flight.FlightID, leg.Passengers)
		if err != nil {
			return FlightReservation{}, err
		}
		for _, seat := range assigned {
			seatCodes = append(seatCodes, seat.Code)
			adjustments += seat.PriceAdjustment
		}
	} else {
		if err := scope.holdSeats(ctx, flight.FlightID, leg.SeatCodes); err != nil {
			return FlightReservation{}, err
		}
		seatMap, err := scope.seats.List(ctx, flight.FlightID)
		if err != nil {
			return FlightReservation{}, err
		}
		adjustmentByCode := make(map[string]Amount, len(seatMap))
		for _, seat := range seatMap {
			adjustmentByCode[seat.Code] = seat.PriceAdjustment
		}
		seatCodes = append(seatCodes, leg.SeatCodes...)
		for _, code := range leg.SeatCodes {
			adjustments += adjustmentByCode[code]
		}
	}

	now := adapter.ledger.nowFn()
	reservationID, err := scope.counter.Issue(ctx, DateOf(now), adapter.rules.code)
	if err != nil {
		return FlightReservation{}, err
	}
	reservation := FlightReservation{
		ReservationID:    reservationID,
		MerchantRef:      merchantRef,
		UserID:           userID,
		FlightID:         flight.FlightID,
		LegIndex:         legIndex,
		DepartureAirport: adapter.airports.Resolve(flight.DepartureAirport),
		ArrivalAirport:   adapter.airports.Resolve(flight.ArrivalAirport),
		Passengers:       leg.Passengers,
		SeatCodes:        seatCodes,
		Amount:           flight.Fare*Amount(leg.Passengers) + adjustments,
		Status:           ReservationStatusPending,
		CreatedAt:        now,
	}
	if err := scope.store.CreateFlightReservation(ctx, reservation); err != nil {
		return FlightReservation{}, err
	}
	return reservation, nil
}

func normalizeFlightLegs(intent FlightIntent) ([]FlightLegIntent, error) {
	expectedLegs := len(intent.Legs)
	switch intent.TripType {
	case TripTypeOneWay:
		expectedLegs = 1
	case TripTypeRoundTrip:
		expectedLegs = 2
	case "":
	default:
		return nil, fmt.Errorf("%w: trip type %q", ErrInvalidIntent, intent.TripType)
	}
	if expectedLegs == 0 || len(intent.Legs) != expectedLegs {
		return nil, fmt.Errorf("%w: %d legs for %s trip", ErrInvalidLineItems, len(intent.Legs), intent.TripType)
	}
	legs := make([]FlightLegIntent, 0, len(intent.Legs))
	for _, leg := range intent.Legs {
		flightID := strings.TrimSpace(leg.FlightID)
		if flightID == "" {
			return nil, fmt.Errorf("%w: flight id is empty", ErrInvalidIntent)
		}
		if leg.Passengers <= 0 {
			return nil, fmt.Errorf("%w: %d passengers", ErrInvalidQuantity, leg.Passengers)
		}
		seatCodes := make([]string, 0, len(leg.SeatCodes))
		seen := make(map[string]struct{}, len(leg.SeatCodes))
		for _, code := range leg.SeatCodes {
			normalized := strings.ToUpper(strings.TrimSpace(code))
			if normalized == "" {
				return nil, fmt.Errorf("%w: empty seat code", ErrInvalidIntent)
			}
			if _, duplicate := seen[normalized]; duplicate {
				return nil, fmt.Errorf("%w: seat %s requested twice", ErrInvalidIntent, normalized)
			}
			seen[normalized] = struct{}{}
			seatCodes = append(seatCodes, normalized)
		}
		if len(seatCodes) > 0 && len(seatCodes) != leg.Passengers {
			return nil, fmt.Errorf("%w: %d seats for %d passengers", ErrInvalidIntent, len(seatCodes), leg.Passengers)
		}
		legs = append(legs, FlightLegIntent{FlightID: flightID, Passengers: leg.Passengers, SeatCodes: seatCodes})
	}
	return legs, nil
}

type flightLineItems struct{}

func (flightLineItems) lineItems(ctx context.Context, store Store, merchantRef MerchantRef) ([]lineItem, error) {
	reservations, err := store.ListFlightReservations(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	items := make([]lineItem, 0, len(reservations))
	for _, reservation := range reservations {
		items = append(items, flightLineItem(reservation))
	}
	return items, nil
}

func flightLineItem(reservation FlightReservation) lineItem {
	return lineItem{
		reservationID: reservation.ReservationID,
		amount:        reservation.Amount,
		status:        reservation.Status,
		hold: hold{
			flightID:  reservation.FlightID,
			seatCodes: reservation.SeatCodes,
		},
	}
}
