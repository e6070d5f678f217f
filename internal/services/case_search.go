package services

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/search"
)

// MaxSearchResults caps the k accepted by Search.
const MaxSearchResults = 50

// SearchHit is one ranked case.
type SearchHit struct {
	Case  domain.Case `json:"case"`
	Score float64     `json:"score"`
}

type revisioned interface {
	Revision() uint64
}

type searchSnapshot struct {
	rev   uint64
	idx   search.Index
	cases map[string]domain.Case
}

// searchCache keeps one index per status filter, valid for a single store
// revision.
type searchCache struct {
	mu    sync.Mutex
	snaps map[domain.Status]searchSnapshot
}

// Search ranks cases by free-text similarity of their request forms to
// query. An empty status searches every case. Results are newest first
// among equal scores; k is clamped to [1, MaxSearchResults].
func (s *CaseService) Search(ctx context.Context, query string, status domain.Status, k int) ([]SearchHit, error) {
	ctx, span := s.tracer().Start(ctx, "Search",
		trace.WithAttributes(
			attribute.Int("search.query_len", len(query)),
			attribute.String("case.status", string(status)),
		))
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	if k <= 0 {
		k = search.DefaultK
	}
	if k > MaxSearchResults {
		k = MaxSearchResults
	}

	snap, err := s.searchSnapshot(ctx, status)
	if err != nil {
		return nil, err
	}
	results := snap.idx.TopK(query, k)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Case: snap.cases[r.CaseID], Score: r.Score})
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, nil
}

// searchSnapshot returns a cached index for status, rebuilding it when the
// repo revision moved. Repos without a revision are re-read on every call.
func (s *CaseService) searchSnapshot(ctx context.Context, status domain.Status) (searchSnapshot, error) {
	rv, cacheable := s.Repo.(revisioned)
	var rev uint64
	if cacheable {
		rev = rv.Revision()
		s.search.mu.Lock()
		snap, ok := s.search.snaps[status]
		s.search.mu.Unlock()
		if ok && snap.rev == rev {
			return snap, nil
		}
	}

	all, err := s.Repo.List(ctx, status, 0, 0)
	if err != nil {
		return searchSnapshot{}, err
	}
	snap := searchSnapshot{
		rev:   rev,
		idx:   search.NewCaseIndex(all, search.WithStopwords(search.DefaultStopwords)),
		cases: make(map[string]domain.Case, len(all)),
	}
	for _, c := range all {
		snap.cases[c.ID] = c
	}

	if cacheable {
		s.search.mu.Lock()
		if s.search.snaps == nil {
			s.search.snaps = make(map[domain.Status]searchSnapshot, 5)
		}
		s.search.snaps[status] = snap
		s.search.mu.Unlock()
	}
	return snap, nil
}
