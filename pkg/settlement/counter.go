package settlement

import (
	"context"
	"fmt"
)

// Counter issues collision-free reservation identifiers per (day, domain).
// Atomicity is delegated to the Sequencer, which must serialize per key only.
type Counter struct {
	sequencer Sequencer
	external  bool
}

// NewCounter wires a Counter over a Sequencer.
func NewCounter(sequencer Sequencer) (*Counter, error) {
	if sequencer == nil {
		return nil, fmt.Errorf("%w: sequencer dependency is nil", ErrInvalidServiceConfig)
	}
	return &Counter{sequencer: sequencer}, nil
}

// Next returns the next sequence number for the key, starting at 1.
func (counter *Counter) Next(ctx context.Context, date Date, code DomainCode) (int64, error) {
	if date.IsZero() {
		return 0, fmt.Errorf("%w: counter date is empty", ErrInvalidDate)
	}
	return counter.sequencer.NextSequence(ctx, date.DayStamp(), code)
}

// Issue draws the next sequence number and formats it as a reservation id.
func (counter *Counter) Issue(ctx context.Context, date Date, code DomainCode) (ReservationID, error) {
	sequence, err := counter.Next(ctx, date, code)
	if err != nil {
		return ReservationID{}, err
	}
	return NewReservationID(FormatReservationID(date, code, sequence))
}

// bind returns a counter that draws from the transaction store, unless an
// external sequencer was configured.
func (counter *Counter) bind(store Store) *Counter {
	if counter.external {
		return counter
	}
	return &Counter{sequencer: store}
}

// FormatReservationID renders "<YYYYMMDD><CODE><zero-padded sequence>".
func FormatReservationID(date Date, code DomainCode, sequence int64) string {
	return fmt.Sprintf("%s%s%0*d", date.DayStamp(), code, reservationSequenceWidth, sequence)
}
