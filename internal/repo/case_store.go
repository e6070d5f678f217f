// Package repo implements the data layer. This file provides CaseStore, the
// authoritative in-memory registry of rescue cases keyed by case id.
//
// CaseStore holds no business rules. It guarantees:
//   - Create inserts a PENDING, unclaimed case or fails with ErrDuplicateCase.
//   - Get returns a copy of the stored case or ErrCaseNotFound.
//   - Update applies a mutator under a per-case lock, so concurrent updates on
//     the same id serialize while different ids never contend. A mutator error
//     discards the mutation. The committed value is visible to every later Get
//     before Update returns.
//
// Callers always receive copies; the stored record is never shared.
package repo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

var (
	// ErrCaseNotFound is returned when no case exists for the given id.
	ErrCaseNotFound = errors.New("case not found")
	// ErrDuplicateCase is returned by Create when the id is already taken.
	ErrDuplicateCase = errors.New("case already exists")
	// ErrEmptyCaseID is returned by Create for a blank id.
	ErrEmptyCaseID = errors.New("case id is empty")
)

type caseEntry struct {
	mu  sync.Mutex
	c   domain.Case
	seq uint64
}

// CaseStore is an in-memory case registry. The zero value is not usable;
// construct with NewCaseStore. Safe for concurrent use.
type CaseStore struct {
	mu    sync.RWMutex
	cases map[string]*caseEntry
	seq   uint64
	rev   atomic.Uint64

	// now is replaceable in tests.
	now func() time.Time
}

// NewCaseStore returns an empty store.
func NewCaseStore() *CaseStore {
	return &CaseStore{
		cases: make(map[string]*caseEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new PENDING case with no claimer.
func (s *CaseStore) Create(ctx context.Context, id, requesterID, threadID string, form domain.RequestForm) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyCaseID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[id]; exists {
		return nil, ErrDuplicateCase
	}
	now := s.now()
	s.seq++
	s.rev.Add(1)
	e := &caseEntry{
		seq: s.seq,
		c: domain.Case{
			ID:          id,
			RequesterID: requesterID,
			ThreadID:    threadID,
			Status:      domain.StatusPending,
			Form:        form,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	s.cases[id] = e
	out := e.c
	return &out, nil
}

// Get returns a copy of the case stored under id.
func (s *CaseStore) Get(ctx context.Context, id string) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := s.entry(id)
	if e == nil {
		return nil, ErrCaseNotFound
	}
	e.mu.Lock()
	out := e.c
	e.mu.Unlock()
	return &out, nil
}

// Update runs mutate against a working copy of the case while holding the
// case lock, then commits the copy. If mutate returns an error the stored
// case is left untouched and that error is returned as-is.
//
// ID, RequesterID, ThreadID and CreatedAt are identity fields and are
// restored after mutate runs. UpdatedAt is bumped only when something changed.
func (s *CaseStore) Update(ctx context.Context, id string, mutate func(*domain.Case) error) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := s.entry(id)
	if e == nil {
		return nil, ErrCaseNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.c
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = e.c.ID
	next.RequesterID = e.c.RequesterID
	next.ThreadID = e.c.ThreadID
	next.CreatedAt = e.c.CreatedAt

	if next != e.c {
		next.UpdatedAt = s.now()
		e.c = next
		s.rev.Add(1)
	}
	out := e.c
	return &out, nil
}

// List returns cases newest first, optionally restricted to one status
// (empty status means all). offset and limit page through the result; a
// limit <= 0 returns everything after offset.
func (s *CaseStore) List(ctx context.Context, status domain.Status, offset, limit int) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type row struct {
		c   domain.Case
		seq uint64
	}

	s.mu.RLock()
	rows := make([]row, 0, len(s.cases))
	for _, e := range s.cases {
		e.mu.Lock()
		c := e.c
		e.mu.Unlock()
		if status != "" && c.Status != status {
			continue
		}
		rows = append(rows, row{c: c, seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []domain.Case{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]domain.Case, len(rows))
	for i, r := range rows {
		out[i] = r.c
	}
	return out, nil
}

// Count returns the number of cases, optionally restricted to one status.
func (s *CaseStore) Count(ctx context.Context, status domain.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status == "" {
		return int64(len(s.cases)), nil
	}
	var n int64
	for _, e := range s.cases {
		e.mu.Lock()
		match := e.c.Status == status
		e.mu.Unlock()
		if match {
			n++
		}
	}
	return n, nil
}

func (s *CaseStore) entry(id string) *caseEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cases[id]
}
