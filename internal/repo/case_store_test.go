package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

var testForm = domain.RequestForm{
	Cause:         "engine failure",
	GalaxySystem:  "Stanton",
	Location:      "Hurston L1",
	TimeRemaining: "20m",
	Hazards:       "none",
}

func newTestStore(t *testing.T) *CaseStore {
	t.Helper()
	s := NewCaseStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestCaseStore_Create_InitialState(t *testing.T) {
	s := newTestStore(t)
	c, err := s.Create(context.Background(), "c1", "req1", "th1", testForm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID != "c1" || c.RequesterID != "req1" || c.ThreadID != "th1" {
		t.Fatalf("identity fields wrong: %+v", c)
	}
	if c.Status != domain.StatusPending || c.ClaimerID != "" {
		t.Fatalf("new case must be PENDING and unclaimed: %+v", c)
	}
	if c.Form != testForm {
		t.Fatalf("form not stored: %+v", c.Form)
	}
	if c.CreatedAt.IsZero() || !c.UpdatedAt.Equal(c.CreatedAt) {
		t.Fatalf("timestamps wrong: created=%v updated=%v", c.CreatedAt, c.UpdatedAt)
	}
}

func TestCaseStore_Create_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, "c1", "req1", "th1", testForm); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "c1", "req2", "th2", testForm); !errors.Is(err, ErrDuplicateCase) {
		t.Fatalf("expected ErrDuplicateCase, got %v", err)
	}
	got, _ := s.Get(ctx, "c1")
	if got.RequesterID != "req1" {
		t.Fatalf("duplicate create must not overwrite: %+v", got)
	}
}

func TestCaseStore_Create_EmptyID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(context.Background(), "  ", "req1", "th1", testForm); !errors.Is(err, ErrEmptyCaseID) {
		t.Fatalf("expected ErrEmptyCaseID, got %v", err)
	}
}

func TestCaseStore_Get_NotFound_AndCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}

	_, _ = s.Create(ctx, "c1", "req1", "th1", testForm)
	a, _ := s.Get(ctx, "c1")
	a.ClaimerID = "mutated outside"
	b, _ := s.Get(ctx, "c1")
	if b.ClaimerID != "" {
		t.Fatalf("callers must receive copies; store leaked mutation: %+v", b)
	}
}

func TestCaseStore_Update_AppliesAndIsVisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, "c1", "req1", "th1", testForm)

	upd, err := s.Update(ctx, "c1", func(c *domain.Case) error {
		c.ClaimerID = "r1"
		c.Status = domain.StatusInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.ClaimerID != "r1" || upd.Status != domain.StatusInProgress {
		t.Fatalf("update not applied: %+v", upd)
	}
	if !upd.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("UpdatedAt should advance on change")
	}
	got, _ := s.Get(ctx, "c1")
	if *got != *upd {
		t.Fatalf("Get after Update = %+v; want %+v", got, upd)
	}
}

func TestCaseStore_Update_ErrorDiscardsMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, "c1", "req1", "th1", testForm)
	before, _ := s.Get(ctx, "c1")
	rev := s.Revision()

	sentinel := errors.New("rejected")
	_, err := s.Update(ctx, "c1", func(c *domain.Case) error {
		c.ClaimerID = "r1"
		c.Status = domain.StatusSucceeded
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	after, _ := s.Get(ctx, "c1")
	if *after != *before {
		t.Fatalf("rejected update changed state: before=%+v after=%+v", before, after)
	}
	if s.Revision() != rev {
		t.Fatalf("revision should not move on a rejected update")
	}
}

func TestCaseStore_Update_NoChangeKeepsUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, "c1", "req1", "th1", testForm)
	rev := s.Revision()

	got, err := s.Update(ctx, "c1", func(*domain.Case) error { return nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.UpdatedAt.Equal(created.UpdatedAt) || s.Revision() != rev {
		t.Fatalf("no-op update must not touch UpdatedAt or revision")
	}
}

func TestCaseStore_Update_IdentityFieldsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, "c1", "req1", "th1", testForm)

	got, err := s.Update(ctx, "c1", func(c *domain.Case) error {
		c.ID = "other"
		c.RequesterID = "someone"
		c.ThreadID = "th-x"
		c.CreatedAt = time.Time{}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != "c1" || got.RequesterID != "req1" || got.ThreadID != "th1" || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("identity fields changed: %+v", got)
	}
}

func TestCaseStore_Update_NotFound(t *testing.T) {
	s := newTestStore(t)
	called := false
	_, err := s.Update(context.Background(), "nope", func(*domain.Case) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCaseNotFound) || called {
		t.Fatalf("expected ErrCaseNotFound without calling mutator, got err=%v called=%v", err, called)
	}
}

func TestCaseStore_Update_ConcurrentFirstWriterWins(t *testing.T) {
	s := NewCaseStore()
	ctx := context.Background()
	_, _ = s.Create(ctx, "c1", "req1", "th1", testForm)

	const n = 64
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	errTaken := errors.New("taken")
	for i := 0; i < n; i++ {
		actor := fmt.Sprintf("r%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "c1", func(c *domain.Case) error {
				if c.ClaimerID != "" {
					return errTaken
				}
				c.ClaimerID = actor
				c.Status = domain.StatusInProgress
				return nil
			})
			if err == nil {
				mu.Lock()
				wins = append(wins, actor)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("exactly one writer must win, got %d: %v", len(wins), wins)
	}
	got, _ := s.Get(ctx, "c1")
	if got.ClaimerID != wins[0] {
		t.Fatalf("stored claimer %q != winner %q", got.ClaimerID, wins[0])
	}
}

func TestCaseStore_ListAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, _ = s.Create(ctx, fmt.Sprintf("c%d", i), "req", "th", testForm)
	}
	_, _ = s.Update(ctx, "c2", func(c *domain.Case) error {
		c.ClaimerID, c.Status = "r1", domain.StatusInProgress
		return nil
	})
	_, _ = s.Update(ctx, "c4", func(c *domain.Case) error {
		c.ClaimerID, c.Status = "r1", domain.StatusInProgress
		return nil
	})

	all, err := s.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"c5", "c4", "c3", "c2", "c1"}
	if len(all) != len(want) {
		t.Fatalf("List len = %d; want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Fatalf("List[%d] = %s; want %s (newest first)", i, all[i].ID, id)
		}
	}

	page, _ := s.List(ctx, "", 1, 2)
	if len(page) != 2 || page[0].ID != "c4" || page[1].ID != "c3" {
		t.Fatalf("paged List = %+v", page)
	}
	if empty, _ := s.List(ctx, "", 10, 2); len(empty) != 0 {
		t.Fatalf("offset past end should be empty, got %d", len(empty))
	}

	inProg, _ := s.List(ctx, domain.StatusInProgress, 0, 0)
	if len(inProg) != 2 || inProg[0].ID != "c4" || inProg[1].ID != "c2" {
		t.Fatalf("filtered List = %+v", inProg)
	}

	if n, _ := s.Count(ctx, ""); n != 5 {
		t.Fatalf("Count(all) = %d; want 5", n)
	}
	if n, _ := s.Count(ctx, domain.StatusInProgress); n != 2 {
		t.Fatalf("Count(IN_PROGRESS) = %d; want 2", n)
	}
	if n, _ := s.Count(ctx, domain.StatusFailed); n != 0 {
		t.Fatalf("Count(FAILED) = %d; want 0", n)
	}
}

func TestCaseStore_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, "c1", "req", "th", testForm); !errors.Is(err, context.Canceled) {
		t.Fatalf("Create with canceled ctx: %v", err)
	}
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Get with canceled ctx: %v", err)
	}
}
