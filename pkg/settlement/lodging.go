package settlement

import (
	"context"
	"fmt"
	"strings"
)

// LodgingIntent books Quantity rooms of one resource for [CheckIn, CheckOut).
type LodgingIntent struct {
	ResourceID string
	CheckIn    Date
	CheckOut   Date
	Quantity   int
}

// LodgingAdapter settles room bookings. Room-nights are held at prepare.
type LodgingAdapter struct {
	settlementFlow
}

func newLodgingAdapter(ledger *paymentLedger) *LodgingAdapter {
	return &LodgingAdapter{settlementFlow: newSettlementFlow(ledger, ReservationTypeLodging, lodgingLineItems{})}
}

// Prepare holds the room-nights, records the PENDING reservation and opens a READY payment.
func (adapter *LodgingAdapter) Prepare(ctx context.Context, intent Intent) (PrepareResult, error) {
	if err := validateIntentUser(intent); err != nil {
		return PrepareResult{}, err
	}
	if intent.Lodging == nil {
		return PrepareResult{}, fmt.Errorf("%w: lodging details are missing", ErrInvalidIntent)
	}
	request := *intent.Lodging
	resourceID := strings.TrimSpace(request.ResourceID)
	if resourceID == "" {
		return PrepareResult{}, fmt.Errorf("%w: resource id is empty", ErrInvalidIntent)
	}
	if request.Quantity <= 0 {
		return PrepareResult{}, fmt.Errorf("%w: %d rooms", ErrInvalidQuantity, request.Quantity)
	}
	stay, err := NewDateRange(request.CheckIn, request.CheckOut)
	if err != nil {
		return PrepareResult{}, err
	}

	return adapter.ledger.prepare(ctx, adapter.rules, intent.UserID, func(ctx context.Context, scope *txScope, merchantRef MerchantRef) ([]lineItem, error) {
		resource, err := scope.store.GetResource(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		if resource.Kind != ResourceKindRoom {
			return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidResourceKind, resourceID, resource.Kind, ResourceKindRoom)
		}
		if err := scope.holdInventory(ctx, resourceID, stay, request.Quantity); err != nil {
			return nil, err
		}
		now := adapter.ledger.nowFn()
		reservationID, err := scope.counter.Issue(ctx, DateOf(now), adapter.rules.code)
		if err != nil {
			return nil, err
		}
		reservation := LodgingReservation{
			ReservationID: reservationID,
			MerchantRef:   merchantRef,
			UserID:        intent.UserID,
			ResourceID:    resourceID,
			Stay:          stay,
			Quantity:      request.Quantity,
			NightlyPrice:  resource.BasePrice,
			Status:        ReservationStatusPending,
			CreatedAt:     now,
		}
		if err := scope.store.CreateLodgingReservation(ctx, reservation); err != nil {
			return nil, err
		}
		return []lineItem{lodgingLineItem(reservation)}, nil
	})
}

type lodgingLineItems struct{}

func (lodgingLineItems) lineItems(ctx context.Context, store Store, merchantRef MerchantRef) ([]lineItem, error) {
	reservations, err := store.ListLodgingReservations(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	items := make([]lineItem, 0, len(reservations))
	for _, reservation := range reservations {
		items = append(items, lodgingLineItem(reservation))
	}
	return items, nil
}

func lodgingLineItem(reservation LodgingReservation) lineItem {
	return lineItem{
		reservationID: reservation.ReservationID,
		amount:        reservation.ExpectedAmount(),
		status:        reservation.Status,
		hold: hold{
			resourceID: reservation.ResourceID,
			stay:       reservation.Stay,
			quantity:   reservation.Quantity,
		},
	}
}
