// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const valkeyKeyPrefix = "rate_limit:"

const (
	fieldAttempts  = "attemptsCount"
	fieldDelivered = "deliveredCount"
	fieldErrors    = "errorCount"
	fieldTotal     = "totalCount"
)

// ValkeyStore implements Store on a Valkey/Redis hash per (token, day). Every
// mutation is one MULTI/EXEC transaction issuing the increments, a TTL refresh
// to the next UTC midnight and a read-back of the full hash. The transaction
// is what keeps the delivered==maximum edge trigger exact across replicas; a
// plain pipeline would weaken it to at-most-once-per-replica.
type ValkeyStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ Store = (*ValkeyStore)(nil)

// NewValkeyStore dials the Valkey node and verifies connectivity with bounded
// exponential backoff, each attempt capped at two seconds.
func NewValkeyStore(ctx context.Context, host, port string) (*ValkeyStore, error) {
	client := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(host, port)})
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(bo, ctx)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to valkey at %s:%s: %w", host, port, err)
	}
	return &ValkeyStore{client: client, now: time.Now}, nil
}

// NewValkeyStoreFromClient wraps an existing client. Used by tests.
func NewValkeyStoreFromClient(client *redis.Client) *ValkeyStore {
	return &ValkeyStore{client: client, now: time.Now}
}

// Read implements [Store.Read].
func (s *ValkeyStore) Read(ctx context.Context, token string) (Record, error) {
	now := s.now()
	fields, err := s.client.HGetAll(ctx, s.key(token, now)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("failed to read rate limit hash: %w", err)
	}
	return s.record(fields, now)
}

// IncrementAttempt implements [Store.IncrementAttempt].
func (s *ValkeyStore) IncrementAttempt(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, fieldAttempts)
}

// RecordSuccess implements [Store.RecordSuccess].
func (s *ValkeyStore) RecordSuccess(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, fieldDelivered, fieldTotal)
}

// RecordError implements [Store.RecordError].
func (s *ValkeyStore) RecordError(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, fieldErrors, fieldTotal)
}

// Close implements [Store.Close].
func (s *ValkeyStore) Close() error {
	return s.client.Close()
}

func (s *ValkeyStore) key(token string, now time.Time) string {
	return valkeyKeyPrefix + token + ":" + DayKey(now)
}

func (s *ValkeyStore) mutate(ctx context.Context, token string, fields ...string) (Record, error) {
	now := s.now()
	key := s.key(token, now)
	ttl := time.Duration(math.Ceil(NextMidnightUTC(now).Sub(now).Seconds())) * time.Second
	var getAll *redis.MapStringStringCmd
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, f := range fields {
			p.HIncrBy(ctx, key, f, 1)
		}
		p.Expire(ctx, key, ttl)
		getAll = p.HGetAll(ctx, key)
		return nil
	}); err != nil {
		return Record{}, fmt.Errorf("failed to update rate limit hash: %w", err)
	}
	return s.record(getAll.Val(), now)
}

func (s *ValkeyStore) record(fields map[string]string, now time.Time) (Record, error) {
	rec := Record{ExpiresAt: NextMidnightUTC(now)}
	for field, dst := range map[string]*int64{
		fieldAttempts:  &rec.Attempts,
		fieldDelivered: &rec.Delivered,
		fieldErrors:    &rec.Errors,
		fieldTotal:     &rec.Total,
	} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("corrupt rate limit counter %s=%q: %w", field, raw, err)
		}
		*dst = v
	}
	return rec, nil
}
