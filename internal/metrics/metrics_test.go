package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainCounters(t *testing.T) {
	baseUpd := testutil.ToFloat64(updatesTotal.WithLabelValues("text", "forward"))
	baseDel := testutil.ToFloat64(deliveriesTotal.WithLabelValues("blocked"))
	baseBc := testutil.ToFloat64(broadcastsTotal.WithLabelValues("true"))
	baseRl := testutil.ToFloat64(rateLimitedTotal.WithLabelValues("broadcast"))

	Update("text", "forward", 5*time.Millisecond)
	Delivery("blocked")
	Delivery("blocked")
	Broadcast(true, time.Second)
	RateLimited("broadcast")
	SetUsers(17)

	if got := testutil.ToFloat64(updatesTotal.WithLabelValues("text", "forward")); got != baseUpd+1 {
		t.Fatalf("updates = %v; want %v", got, baseUpd+1)
	}
	if got := testutil.ToFloat64(deliveriesTotal.WithLabelValues("blocked")); got != baseDel+2 {
		t.Fatalf("deliveries = %v; want %v", got, baseDel+2)
	}
	if got := testutil.ToFloat64(broadcastsTotal.WithLabelValues("true")); got != baseBc+1 {
		t.Fatalf("broadcasts = %v; want %v", got, baseBc+1)
	}
	if got := testutil.ToFloat64(rateLimitedTotal.WithLabelValues("broadcast")); got != baseRl+1 {
		t.Fatalf("rate limited = %v; want %v", got, baseRl+1)
	}
	if got := testutil.ToFloat64(usersGauge); got != 17 {
		t.Fatalf("users = %v; want 17", got)
	}
}

func TestHTTPMiddlewarePathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTP())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/healthz", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, p := range []string{"/healthz", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/healthz", "200")); got != baseOK+1 {
		t.Fatalf("healthz counter = %v; want %v", got, baseOK+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("404 counter = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}
}
