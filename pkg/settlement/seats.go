package settlement

import (
	"context"
	"errors"
	"fmt"
)

// SeatLayout describes the fixed seat grid created for every flight.
type SeatLayout struct {
	Rows              int
	Columns           []string
	PremiumFraction   float64
	PremiumAdjustment Amount
}

// DefaultSeatLayout is a 30-row single-aisle cabin with the first fifth premium.
func DefaultSeatLayout() SeatLayout {
	return SeatLayout{
		Rows:              30,
		Columns:           []string{"A", "B", "C", "D", "E", "F"},
		PremiumFraction:   0.2,
		PremiumAdjustment: 30000,
	}
}

// Validate checks the layout is usable.
func (layout SeatLayout) Validate() error {
	if layout.Rows <= 0 {
		return fmt.Errorf("%w: rows must be positive", ErrInvalidSeatLayout)
	}
	if len(layout.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidSeatLayout)
	}
	if layout.PremiumFraction < 0 || layout.PremiumFraction > 1 {
		return fmt.Errorf("%w: premium fraction must be within [0,1]", ErrInvalidSeatLayout)
	}
	if layout.PremiumAdjustment < 0 {
		return fmt.Errorf("%w: premium adjustment must not be negative", ErrInvalidSeatLayout)
	}
	return nil
}

// PremiumRows returns how many leading rows are premium.
func (layout SeatLayout) PremiumRows() int {
	return int(float64(layout.Rows) * layout.PremiumFraction)
}

// Seats builds the full grid for a flight in row-major order.
func (layout SeatLayout) Seats(flightID string) []SeatUnit {
	premiumRows := layout.PremiumRows()
	seats := make([]SeatUnit, 0, layout.Rows*len(layout.Columns))
	for row := 1; row <= layout.Rows; row++ {
		class := SeatClassEconomy
		adjustment := Amount(0)
		if row <= premiumRows {
			class = SeatClassPremium
			adjustment = layout.PremiumAdjustment
		}
		for columnIndex, column := range layout.Columns {
			seats = append(seats, SeatUnit{
				FlightID:        flightID,
				Code:            fmt.Sprintf("%d%s", row, column),
				Row:             row,
				Column:          columnIndex,
				Class:           class,
				PriceAdjustment: adjustment,
			})
		}
	}
	return seats
}

// SeatAllocator reserves and releases individual flight seats.
type SeatAllocator struct {
	store  SeatStore
	layout SeatLayout
}

// NewSeatAllocator wires a SeatAllocator.
func NewSeatAllocator(store SeatStore, layout SeatLayout) (*SeatAllocator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: seat store dependency is nil", ErrInvalidServiceConfig)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &SeatAllocator{store: store, layout: layout}, nil
}

func (allocator *SeatAllocator) bind(store Store) *SeatAllocator {
	return &SeatAllocator{store: store, layout: allocator.layout}
}

// Initialize creates the seat grid unless the flight already has seats.
// It reports whether seats were created.
func (allocator *SeatAllocator) Initialize(ctx context.Context, flightID string) (bool, error) {
	existing, err := allocator.store.ListSeats(ctx, flightID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	err = allocator.store.CreateSeats(ctx, allocator.layout.Seats(flightID))
	if errors.Is(err, ErrSeatsExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the seat map in row-major order.
func (allocator *SeatAllocator) List(ctx context.Context, flightID string) ([]SeatUnit, error) {
	return allocator.store.ListSeats(ctx, flightID)
}

// Reserve flips one seat from free to reserved.
func (allocator *SeatAllocator) Reserve(ctx context.Context, seatID SeatID) error {
	return allocator.store.ReserveSeat(ctx, seatID)
}

// AutoAssign reserves the first count free seats in row-major order.
// Either all count seats are reserved or none are.
func (allocator *SeatAllocator) AutoAssign(ctx context.Context, flightID string, count int) ([]SeatUnit, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d passengers", ErrInvalidQuantity, count)
	}
	seats, err := allocator.store.ListSeats(ctx, flightID)
	if err != nil {
		return nil, err
	}
	assigned := make([]SeatUnit, 0, count)
	for _, seat := range seats {
		if len(assigned) == count {
			break
		}
		if seat.Reserved {
			continue
		}
		err := allocator.store.ReserveSeat(ctx, seat.ID())
		if errors.Is(err, ErrAlreadyReserved) {
			continue
		}
		if err != nil {
			return nil, allocator.releaseAll(ctx, assigned, err)
		}
		seat.Reserved = true
		assigned = append(assigned, seat)
	}
	if len(assigned) < count {
		cause := fmt.Errorf("%w: flight %s has fewer than %d free seats", ErrNoSeatsAvailable, flightID, count)
		return nil, allocator.releaseAll(ctx, assigned, cause)
	}
	return assigned, nil
}

// Release frees a seat; releasing a free seat is a no-op.
func (allocator *SeatAllocator) Release(ctx context.Context, seatID SeatID) error {
	return allocator.store.ReleaseSeat(ctx, seatID)
}

// Reset rebuilds the seat map of a flight that has no reserved seat.
func (allocator *SeatAllocator) Reset(ctx context.Context, flightID string) error {
	if err := allocator.store.DeleteSeats(ctx, flightID); err != nil {
		return err
	}
	return allocator.store.CreateSeats(ctx, allocator.layout.Seats(flightID))
}

// DeleteAll removes the seat map of a flight that has no reserved seat.
func (allocator *SeatAllocator) DeleteAll(ctx context.Context, flightID string) error {
	return allocator.store.DeleteSeats(ctx, flightID)
}

func (allocator *SeatAllocator) releaseAll(ctx context.Context, seats []SeatUnit, cause error) error {
	var releaseErrors []error
	for _, seat := range seats {
		if err := allocator.store.ReleaseSeat(ctx, seat.ID()); err != nil {
			releaseErrors = append(releaseErrors, WrapError(errorOperationSeats, errorSubjectCompensate, errorCodeRestore, err))
		}
	}
	if len(releaseErrors) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, releaseErrors...)...)
}
