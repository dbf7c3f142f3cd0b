// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"sync"
	"time"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/errlog"
	"github.com/home-assistant/mobile-push/internal/gateway"
	"github.com/home-assistant/mobile-push/internal/ratelimit"
)

var (
	_ ratelimit.Store = (*fakeStore)(nil)
	_ gateway.Sender  = (*mockSender)(nil)
	_ errlog.Sink     = (*mockSink)(nil)
)

// fakeStore implements [ratelimit.Store] in memory, with per-operation error
// injection and call counters.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*ratelimit.Record

	reads, attempts, successes, failures int

	retReadErr    error
	retAttemptErr error
	retSuccessErr error
	retErrorErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*ratelimit.Record{}}
}

func (s *fakeStore) seed(token string, rec ratelimit.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token] = &rec
}

func (s *fakeStore) get(token string) *ratelimit.Record {
	rec, ok := s.records[token]
	if !ok {
		rec = &ratelimit.Record{ExpiresAt: ratelimit.NextMidnightUTC(time.Now())}
		s.records[token] = rec
	}
	return rec
}

// Read implements [ratelimit.Store.Read].
func (s *fakeStore) Read(_ context.Context, token string) (ratelimit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.retReadErr != nil {
		return ratelimit.Record{}, s.retReadErr
	}
	return *s.get(token), nil
}

// IncrementAttempt implements [ratelimit.Store.IncrementAttempt].
func (s *fakeStore) IncrementAttempt(_ context.Context, token string) (ratelimit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.retAttemptErr != nil {
		return ratelimit.Record{}, s.retAttemptErr
	}
	rec := s.get(token)
	rec.Attempts++
	return *rec, nil
}

// RecordSuccess implements [ratelimit.Store.RecordSuccess].
func (s *fakeStore) RecordSuccess(_ context.Context, token string) (ratelimit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	if s.retSuccessErr != nil {
		return ratelimit.Record{}, s.retSuccessErr
	}
	rec := s.get(token)
	rec.Delivered++
	rec.Total++
	return *rec, nil
}

// RecordError implements [ratelimit.Store.RecordError].
func (s *fakeStore) RecordError(_ context.Context, token string) (ratelimit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.retErrorErr != nil {
		return ratelimit.Record{}, s.retErrorErr
	}
	rec := s.get(token)
	rec.Errors++
	rec.Total++
	return *rec, nil
}

// Close implements [ratelimit.Store.Close].
func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts + s.successes + s.failures
}

// mockSender implements [gateway.Sender], recording every sent message.
type mockSender struct {
	mu       sync.Mutex
	sent     []*fcm.Message
	retID    string
	retErr   error
	sendFunc func(*fcm.Message) (string, error)
}

// Send implements [gateway.Sender.Send].
func (m *mockSender) Send(_ context.Context, msg *fcm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if m.sendFunc != nil {
		return m.sendFunc(msg)
	}
	return m.retID, m.retErr
}

func (m *mockSender) sentMessages() []*fcm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fcm.Message(nil), m.sent...)
}

// mockSink implements [errlog.Sink], recording every reported entry.
type mockSink struct {
	mu      sync.Mutex
	entries []errlog.Entry
}

// Report implements [errlog.Sink.Report].
func (m *mockSink) Report(_ context.Context, e errlog.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// Close implements [errlog.Sink.Close].
func (m *mockSink) Close() error { return nil }

func (m *mockSink) reported() []errlog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]errlog.Entry(nil), m.entries...)
}
