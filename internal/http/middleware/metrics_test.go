package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func metricsEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/cases/:id", func(c *gin.Context) { c.String(http.StatusOK, `{"case":{}}`) })
	r.POST("/cases/:id/claim", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/feed", func(c *gin.Context) { c.Status(http.StatusSwitchingProtocols) })
	return r
}

func hit(r http.Handler, method, path string, hdr map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestMetrics_RouteLabelsStayBounded(t *testing.T) {
	r := metricsEngine()

	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/cases/:id", "200"))
	baseClaim := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/cases/:id/claim", "204"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, id := range []string{"c1", "c2", "c3"} {
		if code := hit(r, http.MethodGet, "/cases/"+id, nil); code != http.StatusOK {
			t.Fatalf("GET /cases/%s -> %d", id, code)
		}
	}
	hit(r, http.MethodPost, "/cases/c1/claim", nil)
	hit(r, http.MethodGet, "/nope/1", nil)
	hit(r, http.MethodGet, "/nope/2", nil)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/cases/:id", "200")); got != baseGet+3 {
		t.Fatalf("GET counter = %v; want %v", got, baseGet+3)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/cases/:id/claim", "204")); got != baseClaim+1 {
		t.Fatalf("claim counter = %v; want %v", got, baseClaim+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+2)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_UpgradeSkipsHistograms(t *testing.T) {
	r := metricsEngine()

	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/feed", "101"))
	baseLat := testutil.CollectAndCount(httpLat)

	hit(r, http.MethodGet, "/feed", map[string]string{"Upgrade": "WebSocket"})

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/feed", "101")); got != base+1 {
		t.Fatalf("upgrade counter = %v; want %v", got, base+1)
	}
	if got := testutil.CollectAndCount(httpLat); got != baseLat {
		t.Fatalf("latency series grew on upgrade: %d -> %d", baseLat, got)
	}
}

func TestRateLimiter_CountsRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRateLimiter(0.001, 1, KeyByUserOrIP()).Handler())
	r.POST("/cases/:id/claim", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := testutil.ToFloat64(httpRateLimited.WithLabelValues("/cases/:id/claim"))
	for i := 0; i < 2; i++ {
		hit(r, http.MethodPost, "/cases/c1/claim", nil)
	}
	if got := testutil.ToFloat64(httpRateLimited.WithLabelValues("/cases/:id/claim")); got != base+1 {
		t.Fatalf("rate limited counter = %v; want %v", got, base+1)
	}
}
