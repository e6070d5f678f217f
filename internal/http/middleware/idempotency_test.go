package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, target, key string
	now                 time.Time
}

// recordingLookup returns an IdempotencyLookup that records its arguments
// and answers with found/err.
func recordingLookup(found bool, err error) (IdempotencyLookup, *[]lookupCall) {
	var calls []lookupCall
	return func(_ context.Context, userID, target, key string, now time.Time) (bool, error) {
		calls = append(calls, lookupCall{userID, target, key, now})
		return found, err
	}, &calls
}

type idemSeen struct {
	key        string
	hasKey     bool
	replay     bool
	rateBypass bool
}

func idemEngine(opts IdempotencyOptions, lookup IdempotencyLookup, seen *idemSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identity(nil))
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, seen.hasKey = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.rateBypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	}
	r.POST("/cases", h)
	r.POST("/cases/:id/claim", h)
	return r
}

func deliver(r http.Handler, path, user, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------- context helpers ----------

func TestIdempotencyContextHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/cases", nil)

	if k, ok := GetIdempotencyKey(c); ok || k != "" {
		t.Fatalf("unexpected key %q", k)
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay must read as false")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected replay")
	}

}

func TestIdempotencyTarget_ScopedByAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	seen := map[string]string{}
	r := gin.New()
	record := func(c *gin.Context) { seen[c.Request.Method+" "+c.Request.URL.Path] = IdempotencyTarget(c) }
	r.POST("/cases", record)
	r.GET("/cases/:id", record)
	r.POST("/cases/:id/claim", record)
	r.POST("/cases/:id/resolve", record)

	want := map[string]string{
		"POST /cases":                "submit",
		"GET /cases/case-7":          "case-7",
		"POST /cases/case-7/claim":   "claim:case-7",
		"POST /cases/case-7/resolve": "resolve:case-7",
	}
	for route := range want {
		method, p, _ := strings.Cut(route, " ")
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, p, nil))
	}
	for route, target := range want {
		if seen[route] != target {
			t.Fatalf("%s: target %q; want %q", route, seen[route], target)
		}
	}

	// Outside a matched route the request path names the action.
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/cases/case-9/claim", nil)
	c.Params = gin.Params{{Key: "id", Value: "case-9"}}
	if got := IdempotencyTarget(c); got != "claim:case-9" {
		t.Fatalf("target = %q", got)
	}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/cases/case-9", nil)
	if got := IdempotencyTarget(c); got != "case-9" {
		t.Fatalf("target = %q", got)
	}
}

// ---------- validation ----------

func TestIdempotencyValidator_KeyValidation(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
		want int
	}{
		{"absent", IdempotencyOptions{}, "", http.StatusOK},
		{"interaction id", IdempotencyOptions{}, "1287340081734828052", http.StatusOK},
		{"default pattern rejects slash", IdempotencyOptions{}, "a/b", http.StatusBadRequest},
		{"default length", IdempotencyOptions{}, strings.Repeat("k", defaultIdemKeyLen+1), http.StatusBadRequest},
		{"custom length", IdempotencyOptions{MaxLen: 5}, "abcdef", http.StatusBadRequest},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup, calls := recordingLookup(false, nil)
			var seen idemSeen
			w := deliver(idemEngine(tc.opts, lookup, &seen), "/cases", "u1", tc.key)
			if w.Code != tc.want {
				t.Fatalf("status = %d; want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusBadRequest {
				var body map[string]any
				_ = json.Unmarshal(w.Body.Bytes(), &body)
				if body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
					t.Fatalf("unexpected body: %v", body)
				}
				if len(*calls) != 0 {
					t.Fatalf("rejected key must not reach the lookup")
				}
			}
			if tc.key == "" && (seen.hasKey || len(*calls) != 0) {
				t.Fatalf("absent header must be a no-op")
			}
		})
	}
}

// ---------- lookup ----------

func TestIdempotencyValidator_Lookup(t *testing.T) {
	t.Run("anonymous skips lookup", func(t *testing.T) {
		lookup, calls := recordingLookup(true, nil)
		var seen idemSeen
		deliver(idemEngine(IdempotencyOptions{}, lookup, &seen), "/cases/c42/claim", "", "key-0")
		if len(*calls) != 0 || seen.replay || seen.key != "key-0" {
			t.Fatalf("calls=%d seen=%+v", len(*calls), seen)
		}
	})

	t.Run("miss on submit", func(t *testing.T) {
		lookup, calls := recordingLookup(false, nil)
		var seen idemSeen
		deliver(idemEngine(IdempotencyOptions{}, lookup, &seen), "/cases", "u1", "key-1")
		if len(*calls) != 1 {
			t.Fatalf("calls = %d", len(*calls))
		}
		got := (*calls)[0]
		if got.userID != "u1" || got.target != SubmitTarget || got.key != "key-1" || got.now.Location() != time.UTC {
			t.Fatalf("lookup args = %+v", got)
		}
		if seen.replay || seen.rateBypass {
			t.Fatalf("miss must not flag replay: %+v", seen)
		}
	})

	t.Run("hit on claim", func(t *testing.T) {
		lookup, calls := recordingLookup(true, nil)
		var seen idemSeen
		deliver(idemEngine(IdempotencyOptions{}, lookup, &seen), "/cases/abc/claim", "u9", "k-9")
		if (*calls)[0].target != "claim:abc" {
			t.Fatalf("target = %q", (*calls)[0].target)
		}
		if !seen.replay || !seen.rateBypass {
			t.Fatalf("hit must flag replay and bypass: %+v", seen)
		}
	})

	t.Run("error is logged and treated as miss", func(t *testing.T) {
		buf := captureLogger(t)
		lookup, _ := recordingLookup(true, errors.New("db gone"))
		var seen idemSeen
		w := deliver(idemEngine(IdempotencyOptions{}, lookup, &seen), "/cases/abc/claim", "u9", "k-9")
		if w.Code != http.StatusOK || seen.replay {
			t.Fatalf("code=%d seen=%+v", w.Code, seen)
		}
		if !bytes.Contains(buf.Bytes(), []byte("idempotency lookup failed")) {
			t.Fatalf("expected warn log, got: %s", buf.String())
		}
	})
}
