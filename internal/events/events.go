// Package events publishes settlement outcomes to message brokers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

var ErrNoPublishers = errors.New("events: at least one publisher is required")

// Event is the broker payload for one settled operation.
type Event struct {
	Type            string    `json:"type"`
	ReservationType string    `json:"reservation_type"`
	MerchantRef     string    `json:"merchant_ref"`
	ReservationIDs  []string  `json:"reservation_ids"`
	Amount          int64     `json:"amount"`
	PaymentStatus   string    `json:"payment_status"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Key partitions events by checkout.
func (event Event) Key() string {
	return event.MerchantRef
}

func (event Event) encode() ([]byte, error) {
	return json.Marshal(event)
}

// Publisher delivers an Event to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Sink turns operation logs into broker events. It implements
// settlement.OperationLogger; publish failures are logged and never
// surface to the settlement caller.
type Sink struct {
	publishers []Publisher
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

// SinkOption customizes a Sink.
type SinkOption func(*Sink)

// WithPublishTimeout bounds each publish.
func WithPublishTimeout(timeout time.Duration) SinkOption {
	return func(sink *Sink) {
		if timeout > 0 {
			sink.timeout = timeout
		}
	}
}

// WithSinkClock overrides the event timestamp source.
func WithSinkClock(now func() time.Time) SinkOption {
	return func(sink *Sink) {
		if now != nil {
			sink.now = now
		}
	}
}

// NewSink returns a Sink fanning out to publishers.
func NewSink(logger *zap.Logger, publishers []Publisher, options ...SinkOption) (*Sink, error) {
	active := make([]Publisher, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			active = append(active, publisher)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoPublishers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := &Sink{publishers: active, logger: logger, timeout: defaultPublishTimeout, now: time.Now}
	for _, option := range options {
		if option != nil {
			option(sink)
		}
	}
	return sink, nil
}

// LogOperation publishes successful operations that moved a payment.
func (sink *Sink) LogOperation(ctx context.Context, entry settlement.OperationLog) {
	if !entry.Succeeded() || entry.PaymentStatus == "" {
		return
	}
	event := eventOf(entry, sink.now())
	publishContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), sink.timeout)
	defer cancel()
	for _, publisher := range sink.publishers {
		if err := publisher.Publish(publishContext, event); err != nil {
			sink.logger.Warn("settlement event publish failed",
				zap.String("type", event.Type),
				zap.String("merchant_ref", event.MerchantRef),
				zap.Error(err))
		}
	}
}

func eventOf(entry settlement.OperationLog, occurredAt time.Time) Event {
	reservationIDs := make([]string, 0, len(entry.ReservationIDs))
	for _, reservationID := range entry.ReservationIDs {
		reservationIDs = append(reservationIDs, reservationID.String())
	}
	return Event{
		Type:            "settlement." + entry.Operation,
		ReservationType: entry.ReservationType.String(),
		MerchantRef:     entry.MerchantRef.String(),
		ReservationIDs:  reservationIDs,
		Amount:          entry.Amount.Int64(),
		PaymentStatus:   entry.PaymentStatus.String(),
		Reason:          entry.Reason,
		OccurredAt:      occurredAt.UTC(),
	}
}
