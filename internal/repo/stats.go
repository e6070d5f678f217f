// Package repo implements the data layer. This file provides small aggregate
// queries over the case store, used for the stats endpoint and for weak ETag
// generation on list responses.
package repo

import (
	"context"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// Stats returns the number of cases in each status. Every known status is
// present in the result, with zero when no case has it.
func (s *CaseStore) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[domain.Status]int64{
		domain.StatusPending:    0,
		domain.StatusInProgress: 0,
		domain.StatusSucceeded:  0,
		domain.StatusFailed:     0,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.cases {
		e.mu.Lock()
		out[e.c.Status]++
		e.mu.Unlock()
	}
	return out, nil
}

// Revision returns a counter that increases on every create and every
// committed change. Two equal revisions imply identical store contents.
func (s *CaseStore) Revision() uint64 {
	return s.rev.Load()
}
