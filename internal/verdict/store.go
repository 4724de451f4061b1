// Package verdict persists the outcome of each analysed call.
//
// A [Store] keeps one [Record] per call ID. [MemStore] is the default backend;
// [PostgresStore] persists records in PostgreSQL via pgx. The [Publisher]
// guards writes with a circuit breaker so that a failing backend never delays
// or changes the verdict returned to the caller.
package verdict

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// ErrNotFound is returned by [Store.Get] when no record exists for a call ID.
var ErrNotFound = errors.New("verdict: record not found")

// Record is the persisted form of one call's verdict.
type Record struct {
	CallID        string
	FileName      string
	Status        amd.Status
	Cause         amd.Cause
	Elapsed       time.Duration
	Words         int
	VoiceDuration time.Duration
	DecidedAt     time.Time
}

// NewRecord builds a Record for v. DecidedAt is set to the current time in UTC.
func NewRecord(callID, fileName string, v amd.Verdict) Record {
	return Record{
		CallID:        callID,
		FileName:      fileName,
		Status:        v.Status,
		Cause:         v.Cause,
		Elapsed:       v.At,
		Words:         v.Words,
		VoiceDuration: v.VoiceDuration,
		DecidedAt:     time.Now().UTC(),
	}
}

// Verdict returns the record as an [amd.Verdict].
func (r Record) Verdict() amd.Verdict {
	return amd.Verdict{
		Status:        r.Status,
		Cause:         r.Cause,
		At:            r.Elapsed,
		Words:         r.Words,
		VoiceDuration: r.VoiceDuration,
	}
}

// Store persists verdict records keyed by call ID.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces the record for r.CallID.
	Save(ctx context.Context, r Record) error

	// Get returns the record for callID, or [ErrNotFound].
	Get(ctx context.Context, callID string) (Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Compile-time interface assertions.
var (
	_ Store = (*MemStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// Save implements [Store].
func (s *MemStore) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.CallID == "" {
		return errors.New("verdict: save: empty call id")
	}
	s.mu.Lock()
	s.records[r.CallID] = r
	s.mu.Unlock()
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(ctx context.Context, callID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
