package settlement

import (
	"context"
	"errors"
	"fmt"
)

type inventoryBackend interface {
	CatalogStore
	InventoryStore
}

// InventoryLedger tracks remaining per-day capacity of catalog resources.
//
// Every (resource, date) row carries a version; writers compare-and-swap on
// it and retry up to maxAttempts before giving up with ErrContention.
//
// A multi-day Decrease is made all-or-nothing by compensation: when a day
// fails, the days already decremented by the same call are incremented back
// before the error is returned.
type InventoryLedger struct {
	store       inventoryBackend
	maxAttempts int
}

// NewInventoryLedger wires an InventoryLedger.
func NewInventoryLedger(store inventoryBackend, maxAttempts int) (*InventoryLedger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: inventory store dependency is nil", ErrInvalidServiceConfig)
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: inventory retry budget must be positive", ErrInvalidServiceConfig)
	}
	return &InventoryLedger{store: store, maxAttempts: maxAttempts}, nil
}

func (ledger *InventoryLedger) bind(store Store) *InventoryLedger {
	return &InventoryLedger{store: store, maxAttempts: ledger.maxAttempts}
}

// Decrease takes quantity from every day of the range or from none of them.
func (ledger *InventoryLedger) Decrease(ctx context.Context, resourceID string, stay DateRange, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	decremented := make([]Date, 0, stay.Nights())
	for _, date := range stay.Dates() {
		if err := ledger.adjust(ctx, resourceID, date, -quantity); err != nil {
			return ledger.compensate(ctx, resourceID, decremented, quantity, err)
		}
		decremented = append(decremented, date)
	}
	return nil
}

// Increase returns quantity to every day of the range. No ceiling is enforced.
func (ledger *InventoryLedger) Increase(ctx context.Context, resourceID string, stay DateRange, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	for _, date := range stay.Dates() {
		if err := ledger.adjust(ctx, resourceID, date, quantity); err != nil {
			return err
		}
	}
	return nil
}

// Remaining reads the remaining quantity; untouched days report base capacity.
func (ledger *InventoryLedger) Remaining(ctx context.Context, resourceID string, date Date) (int, error) {
	unit, err := ledger.store.GetInventoryUnit(ctx, resourceID, date)
	if errors.Is(err, ErrInventoryUnitNotFound) {
		resource, resourceErr := ledger.store.GetResource(ctx, resourceID)
		if resourceErr != nil {
			return 0, resourceErr
		}
		return resource.Capacity, nil
	}
	if err != nil {
		return 0, err
	}
	return unit.Remaining, nil
}

func (ledger *InventoryLedger) adjust(ctx context.Context, resourceID string, date Date, delta int) error {
	for attempt := 0; attempt < ledger.maxAttempts; attempt++ {
		unit, err := ledger.loadOrSeed(ctx, resourceID, date)
		if err != nil {
			return err
		}
		if delta < 0 && !unit.Available {
			return fmt.Errorf("%w: %s unavailable on %s", ErrInsufficientStock, resourceID, date)
		}
		next := unit.Remaining + delta
		if next < 0 {
			return fmt.Errorf("%w: %s has %d left on %s, need %d", ErrInsufficientStock, resourceID, unit.Remaining, date, -delta)
		}
		err = ledger.store.SwapInventoryRemaining(ctx, resourceID, date, unit.Version, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s on %s after %d attempts", ErrContention, resourceID, date, ledger.maxAttempts)
}

func (ledger *InventoryLedger) loadOrSeed(ctx context.Context, resourceID string, date Date) (InventoryUnit, error) {
	unit, err := ledger.store.GetInventoryUnit(ctx, resourceID, date)
	if !errors.Is(err, ErrInventoryUnitNotFound) {
		return unit, err
	}
	resource, err := ledger.store.GetResource(ctx, resourceID)
	if err != nil {
		return InventoryUnit{}, err
	}
	seeded := InventoryUnit{
		ResourceID: resourceID,
		Date:       date,
		Remaining:  resource.Capacity,
		Available:  true,
	}
	err = ledger.store.CreateInventoryUnit(ctx, seeded)
	if errors.Is(err, ErrInventoryUnitExists) {
		return ledger.store.GetInventoryUnit(ctx, resourceID, date)
	}
	if err != nil {
		return InventoryUnit{}, err
	}
	return seeded, nil
}

func (ledger *InventoryLedger) compensate(ctx context.Context, resourceID string, dates []Date, quantity int, cause error) error {
	var restoreErrors []error
	for _, date := range dates {
		if err := ledger.adjust(ctx, resourceID, date, quantity); err != nil {
			restoreErrors = append(restoreErrors, WrapError(errorOperationInventory, errorSubjectCompensate, errorCodeRestore, err))
		}
	}
	if len(restoreErrors) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, restoreErrors...)...)
}
