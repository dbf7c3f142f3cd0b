// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package ratelimit

import (
	"context"
	"time"
)

// Engine is a stateless wrapper over a Store that turns raw counter records
// into admission decisions against a fixed daily maximum. Backend errors are
// propagated unchanged; retry is a backend concern.
type Engine struct {
	store Store
	max   int
	now   func() time.Time
}

// NewEngine creates an Engine enforcing at most max successful deliveries per
// token per day.
func NewEngine(store Store, max int) *Engine {
	return &Engine{store: store, max: max, now: time.Now}
}

// Check derives the current status without side effects.
func (e *Engine) Check(ctx context.Context, token string) (Status, error) {
	rec, err := e.store.Read(ctx, token)
	if err != nil {
		return Status{}, err
	}
	return e.status(rec), nil
}

// RecordAttempt atomically counts one delivery attempt and returns the
// post-increment status.
func (e *Engine) RecordAttempt(ctx context.Context, token string) (Status, error) {
	rec, err := e.store.IncrementAttempt(ctx, token)
	if err != nil {
		return Status{}, err
	}
	return e.status(rec), nil
}

// RecordSuccess atomically counts one delivered notification. The returned
// status carries the one-shot trigger: ShouldNotify is true on exactly the
// call that brings the delivered count to the maximum.
func (e *Engine) RecordSuccess(ctx context.Context, token string) (Status, error) {
	rec, err := e.store.RecordSuccess(ctx, token)
	if err != nil {
		return Status{}, err
	}
	return e.status(rec), nil
}

// RecordError atomically counts one failed delivery.
func (e *Engine) RecordError(ctx context.Context, token string) (Status, error) {
	rec, err := e.store.RecordError(ctx, token)
	if err != nil {
		return Status{}, err
	}
	return e.status(rec), nil
}

// Maximum returns the configured daily maximum.
func (e *Engine) Maximum() int {
	return e.max
}

// ResetsAt returns the client-visible quota reset moment.
func (e *Engine) ResetsAt() time.Time {
	return ResetsAt(e.now())
}

func (e *Engine) status(rec Record) Status {
	remaining := e.max - int(rec.Delivered)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		RateLimited:  rec.Delivered >= int64(e.max),
		ShouldNotify: rec.Delivered == int64(e.max),
		Limits: Limits{
			Attempts:   int(rec.Attempts),
			Successful: int(rec.Delivered),
			Errors:     int(rec.Errors),
			Total:      int(rec.Total),
			Maximum:    e.max,
			Remaining:  remaining,
			ResetsAt:   ResetsAt(e.now()),
		},
	}
}
