package settlement

import (
	"context"
	"fmt"
	"time"
)

// ServiceOption customizes a Service before its components are wired.
type ServiceOption func(*Service)

// WithOperationLogger adds a logger that receives every routed operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.loggers = append(service.loggers, logger)
		}
	}
}

// WithSequencer replaces the transactional counter with an external sequencer.
// Numbers drawn from it are not returned when a checkout rolls back.
func WithSequencer(sequencer Sequencer) ServiceOption {
	return func(service *Service) {
		service.sequencer = sequencer
	}
}

// WithGatewayTimeout bounds every gateway call.
func WithGatewayTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		service.gatewayTimeout = timeout
	}
}

// WithInventoryRetries sets the optimistic retry budget per inventory row.
func WithInventoryRetries(attempts int) ServiceOption {
	return func(service *Service) {
		service.inventoryAttempts = attempts
	}
}

// WithSeatLayout sets the grid used when a flight's seats are initialized.
func WithSeatLayout(layout SeatLayout) ServiceOption {
	return func(service *Service) {
		service.seatLayout = layout
	}
}

// WithAirportCodes sets the external→internal airport code directory.
func WithAirportCodes(airports AirportCodes) ServiceOption {
	return func(service *Service) {
		service.airports = airports
	}
}

// Service wires the settlement components over one Store and Gateway.
type Service struct {
	store             Store
	gateway           Gateway
	nowFn             func() time.Time
	loggers           operationLoggers
	sequencer         Sequencer
	gatewayTimeout    time.Duration
	inventoryAttempts int
	seatLayout        SeatLayout
	airports          AirportCodes

	counter   *Counter
	inventory *InventoryLedger
	seats     *SeatAllocator
	router    *Router
}

// NewService validates dependencies and wires a Service.
func NewService(store Store, gateway Gateway, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:             store,
		gateway:           gateway,
		nowFn:             now,
		gatewayTimeout:    defaultGatewayTimeout,
		inventoryAttempts: defaultInventoryAttempts,
		seatLayout:        DefaultSeatLayout(),
		airports:          NewAirportCodes(nil),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.gatewayTimeout <= 0 {
		return nil, fmt.Errorf("%w: gateway timeout must be positive", ErrInvalidServiceConfig)
	}

	counter, err := NewCounter(store)
	if err != nil {
		return nil, err
	}
	if service.sequencer != nil {
		counter = &Counter{sequencer: service.sequencer, external: true}
	}
	inventory, err := NewInventoryLedger(store, service.inventoryAttempts)
	if err != nil {
		return nil, err
	}
	seats, err := NewSeatAllocator(store, service.seatLayout)
	if err != nil {
		return nil, err
	}
	service.counter = counter
	service.inventory = inventory
	service.seats = seats

	ledger := &paymentLedger{
		store:          store,
		gateway:        gateway,
		counter:        counter,
		inventory:      inventory,
		seats:          seats,
		nowFn:          now,
		gatewayTimeout: service.gatewayTimeout,
	}
	service.router = newRouter(
		store,
		service.loggers,
		newLodgingAdapter(ledger),
		newFlightAdapter(ledger, service.airports),
		newDeliveryAdapter(ledger),
	)
	return service, nil
}

// Router returns the single entry point for settlement operations.
func (service *Service) Router() *Router {
	return service.router
}

// Counter returns the reservation counter.
func (service *Service) Counter() *Counter {
	return service.counter
}

// Inventory returns the inventory ledger.
func (service *Service) Inventory() *InventoryLedger {
	return service.inventory
}

// Seats returns the seat allocator.
func (service *Service) Seats() *SeatAllocator {
	return service.seats
}

// ResetSeats rebuilds a flight's seat map in one transaction.
func (service *Service) ResetSeats(ctx context.Context, flightID string) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return service.seats.bind(transactionStore).Reset(ctx, flightID)
	})
}

// Payment returns a payment master with its details.
func (service *Service) Payment(ctx context.Context, merchantRef MerchantRef) (PaymentView, error) {
	master, err := service.store.GetPaymentMaster(ctx, merchantRef)
	if err != nil {
		return PaymentView{}, err
	}
	details, err := service.store.ListPaymentDetails(ctx, merchantRef)
	if err != nil {
		return PaymentView{}, err
	}
	return PaymentView{Master: master, Details: details}, nil
}
