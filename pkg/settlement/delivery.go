package settlement

import (
	"context"
	"fmt"
	"strings"
)

const deliveryCourierUnits = 1

// DeliveryIntent books one courier pickup at a declared price.
type DeliveryIntent struct {
	ResourceID  string
	PickupDate  Date
	Sender      string
	Recipient   string
	Address     string
	WeightGrams int
	TotalPrice  Amount
}

// DeliveryAdapter settles courier bookings. One unit of courier capacity is
// held on the pickup date.
type DeliveryAdapter struct {
	settlementFlow
}

func newDeliveryAdapter(ledger *paymentLedger) *DeliveryAdapter {
	return &DeliveryAdapter{settlementFlow: newSettlementFlow(ledger, ReservationTypeDelivery, deliveryLineItems{})}
}

// Prepare holds courier capacity, records the PENDING delivery and opens a READY payment.
func (adapter *DeliveryAdapter) Prepare(ctx context.Context, intent Intent) (PrepareResult, error) {
	if err := validateIntentUser(intent); err != nil {
		return PrepareResult{}, err
	}
	if intent.Delivery == nil {
		return PrepareResult{}, fmt.Errorf("%w: delivery details are missing", ErrInvalidIntent)
	}
	request := *intent.Delivery
	resourceID := strings.TrimSpace(request.ResourceID)
	if resourceID == "" {
		return PrepareResult{}, fmt.Errorf("%w: courier id is empty", ErrInvalidIntent)
	}
	if request.PickupDate.IsZero() {
		return PrepareResult{}, fmt.Errorf("%w: pickup date is empty", ErrInvalidDate)
	}
	if strings.TrimSpace(request.Recipient) == "" || strings.TrimSpace(request.Address) == "" {
		return PrepareResult{}, fmt.Errorf("%w: recipient and address are required", ErrInvalidIntent)
	}
	if request.WeightGrams < 0 {
		return PrepareResult{}, fmt.Errorf("%w: weight must not be negative", ErrInvalidIntent)
	}
	totalPrice, err := NewAmount(request.TotalPrice.Int64())
	if err != nil {
		return PrepareResult{}, err
	}
	pickup := SingleDay(request.PickupDate)

	return adapter.ledger.prepare(ctx, adapter.rules, intent.UserID, func(ctx context.Context, scope *txScope, merchantRef MerchantRef) ([]lineItem, error) {
		resource, err := scope.store.GetResource(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		if resource.Kind != ResourceKindCourier {
			return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidResourceKind, resourceID, resource.Kind, ResourceKindCourier)
		}
		if err := scope.holdInventory(ctx, resourceID, pickup, deliveryCourierUnits); err != nil {
			return nil, err
		}
		now := adapter.ledger.nowFn()
		reservationID, err := scope.counter.Issue(ctx, DateOf(now), adapter.rules.code)
		if err != nil {
			return nil, err
		}
		reservation := DeliveryReservation{
			ReservationID: reservationID,
			MerchantRef:   merchantRef,
			UserID:        intent.UserID,
			ResourceID:    resourceID,
			PickupDate:    request.PickupDate,
			Sender:        strings.TrimSpace(request.Sender),
			Recipient:     strings.TrimSpace(request.Recipient),
			Address:       strings.TrimSpace(request.Address),
			WeightGrams:   request.WeightGrams,
			TotalPrice:    totalPrice,
			Status:        ReservationStatusPending,
			CreatedAt:     now,
		}
		if err := scope.store.CreateDeliveryReservation(ctx, reservation); err != nil {
			return nil, err
		}
		return []lineItem{deliveryLineItem(reservation)}, nil
	})
}

type deliveryLineItems struct{}

func (deliveryLineItems) lineItems(ctx context.Context, store Store, merchantRef MerchantRef) ([]lineItem, error) {
	reservations, err := store.ListDeliveryReservations(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	items := make([]lineItem, 0, len(reservations))
	for _, reservation := range reservations {
		items = append(items, deliveryLineItem(reservation))
	}
	return items, nil
}

func deliveryLineItem(reservation DeliveryReservation) lineItem {
	return lineItem{
		reservationID: reservation.ReservationID,
		amount:        reservation.TotalPrice,
		status:        reservation.Status,
		hold: hold{
			resourceID: reservation.ResourceID,
			stay:       SingleDay(reservation.PickupDate),
			quantity:   deliveryCourierUnits,
		},
	}
}
