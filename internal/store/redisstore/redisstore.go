package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "settlement:counter:"
	defaultKeyLifetime = 72 * time.Hour

	errorOperationStore = "store"
	errorSubjectCounter = "counter"
	errorCodeIncrement  = "increment"
	errorCodeExpire     = "expire"
	errorCodeEmptyKey   = "empty_key"
)

type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Sequencer implements settlement.Sequencer with Redis INCR. Counter keys
// expire once their day is long over.
type Sequencer struct {
	client      counterClient
	keyLifetime time.Duration
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithKeyLifetime overrides how long a day's counter key is kept.
func WithKeyLifetime(lifetime time.Duration) Option {
	return func(sequencer *Sequencer) {
		if lifetime > 0 {
			sequencer.keyLifetime = lifetime
		}
	}
}

// New returns a Sequencer backed by a go-redis client.
func New(client *redis.Client, options ...Option) *Sequencer {
	sequencer := &Sequencer{client: client, keyLifetime: defaultKeyLifetime}
	for _, option := range options {
		if option != nil {
			option(sequencer)
		}
	}
	return sequencer
}

func (sequencer *Sequencer) NextSequence(ctx context.Context, dayStamp string, code settlement.DomainCode) (int64, error) {
	if dayStamp == "" || code == "" {
		return 0, settlement.WrapError(errorOperationStore, errorSubjectCounter, errorCodeEmptyKey, fmt.Errorf("day %q and domain %q are required", dayStamp, code))
	}
	key := counterKey(dayStamp, code)
	value, err := sequencer.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, settlement.WrapError(errorOperationStore, errorSubjectCounter, errorCodeIncrement, err)
	}
	if value == 1 {
		if err := sequencer.client.ExpireNX(ctx, key, sequencer.keyLifetime).Err(); err != nil {
			return 0, settlement.WrapError(errorOperationStore, errorSubjectCounter, errorCodeExpire, err)
		}
	}
	return value, nil
}

func counterKey(dayStamp string, code settlement.DomainCode) string {
	return keyPrefix + dayStamp + ":" + code.String()
}
