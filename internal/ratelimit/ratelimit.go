// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package ratelimit enforces the per-device daily notification quota. The
// Engine derives admission decisions from a Store that keeps one counter
// record per (token, UTC day); two backends implement the Store contract,
// Firestore for single-writer deployments and Valkey for replicated ones.
package ratelimit

import (
	"context"
	"time"
)

// Record is the persisted counter state of one (token, day). All mutating
// Store operations return the post-mutation state so that threshold edges can
// be observed without a second read.
type Record struct {
	Attempts  int64
	Delivered int64
	Errors    int64
	Total     int64
	ExpiresAt time.Time
}

// Store persists Records keyed by (token, current UTC day). The three mutating
// operations are linearizable with respect to each other for the same key;
// operations on distinct tokens never interfere.
type Store interface {
	// Read returns the current record, or a zero record if none exists. It
	// never mutates.
	Read(ctx context.Context, token string) (Record, error)
	// IncrementAttempt creates the record if absent and increments the attempt
	// counter by one.
	IncrementAttempt(ctx context.Context, token string) (Record, error)
	// RecordSuccess increments the delivered and total counters by one each.
	RecordSuccess(ctx context.Context, token string) (Record, error)
	// RecordError increments the error and total counters by one each.
	RecordError(ctx context.Context, token string) (Record, error)
	// Close releases the backend connection.
	Close() error
}

// Limits is the quota summary reflected into every client response.
type Limits struct {
	Attempts   int       `json:"attempts"`
	Successful int       `json:"successful"`
	Errors     int       `json:"errors"`
	Total      int       `json:"total"`
	Maximum    int       `json:"maximum"`
	Remaining  int       `json:"remaining"`
	ResetsAt   time.Time `json:"resetsAt"`
}

// Status is the admission view of a record. ShouldNotify is the edge trigger
// for the one-shot rate-limit push: it is true on exactly the mutation that
// brings the delivered count to the maximum.
type Status struct {
	RateLimited  bool
	ShouldNotify bool
	Limits       Limits
}

// DayKey formats the UTC calendar date bucket used by both backends.
func DayKey(now time.Time) string {
	return now.UTC().Format("20060102")
}

// NextMidnightUTC returns the first instant of the next UTC day, i.e. the
// moment the current day bucket expires.
func NextMidnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// ResetsAt returns midnight of tomorrow in local time. The quota buckets are
// UTC days while the client-visible reset moment is local; the skew between
// the two under non-UTC deployments is documented, inherited behavior.
func ResetsAt(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
