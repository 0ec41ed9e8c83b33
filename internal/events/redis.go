// Package events publishes committed journal entries to a Redis list so
// downstream consumers (statements, fraud screening) can pick them up.
// Publishing is best effort and never part of the atomic unit.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/corebank/ledger/internal/ledger"
)

// DefaultKey is the list committed entries are pushed to.
const DefaultKey = "ledger:transactions"

// RedisPublisher appends entry JSON to a Redis list.
type RedisPublisher struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// NewRedisPublisher builds a publisher on client. An empty key selects
// DefaultKey.
func NewRedisPublisher(client *redis.Client, key string, log zerolog.Logger) *RedisPublisher {
	if key == "" {
		key = DefaultKey
	}
	return &RedisPublisher{client: client, key: key, log: log}
}

// Publish pushes the entry onto the feed.
func (p *RedisPublisher) Publish(ctx context.Context, t *ledger.Transaction) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transaction %d: %w", t.ID, err)
	}
	if err := p.client.RPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("push transaction %d to %s: %w", t.ID, p.key, err)
	}
	p.log.Debug().
		Int64("transaction_id", t.ID).
		Str("reference", t.ReferenceNumber).
		Msg("published transaction event")
	return nil
}
