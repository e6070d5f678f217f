package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/http/middleware"
)

// interactionLocks serializes deliveries that share (user, target, key).
// A redelivery that arrives while the first delivery is still running waits
// for it, then finds the stored result and replays it.
type interactionLocks struct {
	mu    sync.Mutex
	slots map[string]*interactionSlot
}

type interactionSlot struct {
	sem     chan struct{}
	waiters int
}

// acquire blocks until the slot for id is free or ctx is done.
func (l *interactionLocks) acquire(ctx context.Context, id string) (release func(), err error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]*interactionSlot)
	}
	s := l.slots[id]
	if s == nil {
		s = &interactionSlot{sem: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.waiters++
	l.mu.Unlock()

	done := func() {
		l.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			delete(l.slots, id)
		}
		l.mu.Unlock()
	}

	select {
	case s.sem <- struct{}{}:
		return func() {
			<-s.sem
			done()
		}, nil
	case <-ctx.Done():
		done()
		return nil, ctx.Err()
	}
}

// pending returns how many deliveries hold or wait for id.
func (l *interactionLocks) pending(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.slots[id]; s != nil {
		return s.waiters
	}
	return 0
}

func interactionID(uid, target, key string) string {
	return uid + "\x00" + target + "\x00" + key
}

// interact runs op at most once per (user, target, key) and replays the
// stored result for later deliveries. op writes its own failures and
// reports whether it produced a case.
func (h *Handlers) interact(c *gin.Context, uid string, status int, op func() (*domain.Case, bool)) {
	key := idempotencyKey(c)
	if h.idem != nil && key != "" {
		release, err := h.locks.acquire(c.Request.Context(),
			interactionID(uid, middleware.IdempotencyTarget(c), key))
		if err != nil {
			fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "request canceled while waiting for a redelivered interaction")
			return
		}
		defer release()
	}

	if h.replay(c, uid, key) {
		return
	}
	cs, ok := op()
	if !ok {
		return
	}
	h.respondCase(c, status, uid, key, cs)
}
