package search

import (
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// ---------- helpers ----------
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mkCase(id string, status domain.Status, ageMin int, f domain.RequestForm) domain.Case {
	return domain.Case{
		ID:        id,
		Status:    status,
		Form:      f,
		CreatedAt: base.Add(-time.Duration(ageMin) * time.Minute),
	}
}

func fixtureCases() []domain.Case {
	return []domain.Case{
		mkCase("c1", domain.StatusPending, 30, domain.RequestForm{
			Location: "Near Yela asteroid belt, OM-3", GalaxySystem: "Stanton / Crusader",
			Cause: "Ship destroyed by pirates", Hazards: "Two hostile fighters nearby",
		}),
		mkCase("c2", domain.StatusInProgress, 20, domain.RequestForm{
			Location: "Daymar surface", GalaxySystem: "Stanton / Crusader",
			Cause: "Crash landing", Hazards: "None",
		}),
		mkCase("c3", domain.StatusPending, 10, domain.RequestForm{
			Location: "Pyro gateway", GalaxySystem: "Pyro",
			Cause: "Out of fuel", Hazards: "Pirates patrolling",
		}),
		{ID: "", Form: domain.RequestForm{Location: "no id"}},
		mkCase("c-empty", domain.StatusPending, 5, domain.RequestForm{Location: "  --  "}),
	}
}

// ---------- Options ----------
func TestOptions(t *testing.T) {
	var cfg config
	WithStopwords([]string{"  The ", "", "Near"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'the'): %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["near"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'near'): %#v", cfg.stopwords)
	}

	var cfg2 config
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	WithStatus(domain.StatusPending)(&cfg2)
	if cfg2.status != domain.StatusPending {
		t.Fatalf("WithStatus failed: %q", cfg2.status)
	}
}

// ---------- NewCaseIndex ----------
func TestNewCaseIndex_SkipsUnindexable(t *testing.T) {
	idx := NewCaseIndex(fixtureCases())
	if idx.Len() != 3 {
		t.Fatalf("Len = %d; want 3 (no id and no tokens skipped)", idx.Len())
	}

	pending := NewCaseIndex(fixtureCases(), WithStatus(domain.StatusPending))
	if pending.Len() != 2 {
		t.Fatalf("pending Len = %d; want 2", pending.Len())
	}
	if got := pending.TopK("daymar", 5); got != nil {
		t.Fatalf("in-progress case must not be indexed, got %+v", got)
	}
}

// ---------- TopK ----------
func TestTopK_RanksByJaccard(t *testing.T) {
	idx := NewCaseIndex(fixtureCases(), WithStopwords(DefaultStopwords))

	got := idx.TopK("Yela OM-3", 3)
	if len(got) != 1 || got[0].CaseID != "c1" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[0].Score <= 0 || got[0].Score > 1 {
		t.Fatalf("score out of range: %v", got[0].Score)
	}

	// "pirates" hits c1 (cause) and c3 (hazards); c3 has fewer tokens so it scores higher
	got = idx.TopK("pirates", 0)
	if len(got) != 2 || got[0].CaseID != "c3" || got[1].CaseID != "c1" {
		t.Fatalf("unexpected pirates ranking: %+v", got)
	}

	got = idx.TopK("pirates", 1)
	if len(got) != 1 {
		t.Fatalf("k must cap results, got %d", len(got))
	}
}

func TestTopK_TieBreaksNewestThenID(t *testing.T) {
	f := domain.RequestForm{Location: "Hurston"}
	idx := NewCaseIndex([]domain.Case{
		mkCase("b", domain.StatusPending, 10, f),
		mkCase("a", domain.StatusPending, 10, f),
		mkCase("z", domain.StatusPending, 1, f),
	})
	got := idx.TopK("hurston", 3)
	if len(got) != 3 || got[0].CaseID != "z" || got[1].CaseID != "a" || got[2].CaseID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestTopK_EmptyInputs(t *testing.T) {
	idx := NewCaseIndex(fixtureCases(), WithStopwords([]string{"the"}))
	if idx.TopK("   ", 3) != nil {
		t.Fatalf("blank query should return nil")
	}
	if idx.TopK("the", 3) != nil {
		t.Fatalf("stopword-only query should return nil")
	}
	if idx.TopK("microtech", 3) != nil {
		t.Fatalf("no overlap should return nil")
	}
	if NewCaseIndex(nil).TopK("pyro", 3) != nil {
		t.Fatalf("empty index should return nil")
	}
}

func TestTopK_ConcurrentReaders(t *testing.T) {
	idx := NewCaseIndex(fixtureCases())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if len(idx.TopK("stanton crusader", 5)) != 2 {
					t.Errorf("unexpected result count")
					return
				}
			}
		}()
	}
	wg.Wait()
}

// ---------- helpers ----------
func TestTokenizeAndOverlap(t *testing.T) {
	toks := tokenize("OM-3, Yela's belt", map[string]struct{}{"s": {}})
	for _, w := range []string{"om", "3", "yela", "belt"} {
		if _, ok := toks[w]; !ok {
			t.Fatalf("missing token %q in %v", w, toks)
		}
	}
	if _, ok := toks["s"]; ok {
		t.Fatalf("stopword leaked: %v", toks)
	}
	if tokenize("-- !!", nil) != nil {
		t.Fatalf("punctuation-only text should have no tokens")
	}
	if overlap(nil, toks) != 0 {
		t.Fatalf("overlap with empty set must be 0")
	}
	if overlap(map[string]struct{}{"om": {}, "x": {}}, toks) != 1 {
		t.Fatalf("overlap mismatch")
	}
}
