package pgstore

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore  = "store"
	errorSubjectCounter  = "counter"
	errorCodeIncrement   = "increment"
	errorCodeInvalid     = "invalid"
	errorCodeEmptyDay    = "empty_day"
	errorCodeEmptyDomain = "empty_domain"

	// The counter row is created and incremented in one autocommit statement,
	// so a number is never handed out twice even across service replicas.
	sqlNextSequence = `
		insert into reservation_counters(day_stamp, domain_code, last_value)
		values ($1, $2, 1)
		on conflict (day_stamp, domain_code)
		do update set last_value = reservation_counters.last_value + 1
		returning last_value
	`
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Sequencer implements settlement.Sequencer on a pgx pool, outside of the
// engine's transactions. Numbers drawn by a checkout that later rolls back
// are not reissued.
type Sequencer struct {
	querier rowQuerier
}

// New returns a Sequencer backed by a pgx pool.
func New(pool *pgxpool.Pool) *Sequencer {
	return &Sequencer{querier: pool}
}

func (sequencer *Sequencer) NextSequence(ctx context.Context, dayStamp string, code settlement.DomainCode) (int64, error) {
	if dayStamp == "" {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeEmptyDay, fmt.Errorf("day stamp is empty"))
	}
	if code == "" {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeEmptyDomain, fmt.Errorf("domain code is empty"))
	}
	var value int64
	if err := sequencer.querier.QueryRow(ctx, sqlNextSequence, dayStamp, code.String()).Scan(&value); err != nil {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeIncrement, err)
	}
	if value <= 0 {
		return 0, wrapStoreError(errorSubjectCounter, errorCodeInvalid, fmt.Errorf("non-positive sequence %d", value))
	}
	return value, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return settlement.WrapError(errorOperationStore, subject, code, err)
}
