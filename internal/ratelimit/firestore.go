// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreCollection       = "rateLimits"
	firestoreTokensCollection = "tokens"
)

// firestoreRecord is the document layout under rateLimits/<day>/tokens/<token>.
type firestoreRecord struct {
	Attempts  int64     `firestore:"attemptsCount"`
	Delivered int64     `firestore:"deliveredCount"`
	Errors    int64     `firestore:"errorCount"`
	Total     int64     `firestore:"totalCount"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// FirestoreStore implements Store on one Firestore document per (token, day).
// Mutations run inside a transaction scoped to that single document, so two
// requests for the same token serialize on it. Expired day documents are left
// behind; readers never consult past days.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore connects to the project's Firestore database.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

// Read implements [Store.Read] with a plain document get, no transaction.
func (s *FirestoreStore) Read(ctx context.Context, token string) (Record, error) {
	snap, err := s.doc(token).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Record{ExpiresAt: NextMidnightUTC(s.now())}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read rate limit document: %w", err)
	}
	var rec firestoreRecord
	if err := snap.DataTo(&rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode rate limit document: %w", err)
	}
	return rec.record(), nil
}

// IncrementAttempt implements [Store.IncrementAttempt].
func (s *FirestoreStore) IncrementAttempt(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, func(rec *firestoreRecord) {
		rec.Attempts++
		rec.ExpiresAt = NextMidnightUTC(s.now())
	})
}

// RecordSuccess implements [Store.RecordSuccess].
func (s *FirestoreStore) RecordSuccess(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, func(rec *firestoreRecord) {
		rec.Delivered++
		rec.Total++
	})
}

// RecordError implements [Store.RecordError].
func (s *FirestoreStore) RecordError(ctx context.Context, token string) (Record, error) {
	return s.mutate(ctx, token, func(rec *firestoreRecord) {
		rec.Errors++
		rec.Total++
	})
}

// Close implements [Store.Close].
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) doc(token string) *firestore.DocumentRef {
	return s.client.Collection(firestoreCollection).
		Doc(DayKey(s.now())).
		Collection(firestoreTokensCollection).
		Doc(token)
}

// mutate runs a read-modify-write transaction on the (token, day) document,
// creating it with zeroed counters when absent.
func (s *FirestoreStore) mutate(ctx context.Context, token string, apply func(*firestoreRecord)) (Record, error) {
	ref := s.doc(token)
	var rec firestoreRecord
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		rec = firestoreRecord{ExpiresAt: NextMidnightUTC(s.now())}
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			// First operation of the day for this token.
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&rec); err != nil {
				return err
			}
		}
		apply(&rec)
		return tx.Set(ref, rec)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to update rate limit document: %w", err)
	}
	return rec.record(), nil
}

func (r firestoreRecord) record() Record {
	return Record{
		Attempts:  r.Attempts,
		Delivered: r.Delivered,
		Errors:    r.Errors,
		Total:     r.Total,
		ExpiresAt: r.ExpiresAt,
	}
}
