package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPerimeter_Counters(t *testing.T) {
	t.Parallel()

	p := New(false)
	p.Admission("client", "admitted")
	p.Admission("client", "admitted")
	p.Admission("endpoint", "rejected")
	p.Login("student", "success")
	p.Code("issued")
	p.TokenVerify("expired")
	p.TrackedKeys("client", 3)

	require.Equal(t, 2.0, testutil.ToFloat64(p.admission.WithLabelValues("client", "admitted")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.admission.WithLabelValues("endpoint", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.logins.WithLabelValues("student", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.codes.WithLabelValues("issued")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.tokenVerifies.WithLabelValues("expired")))
	require.Equal(t, 3.0, testutil.ToFloat64(p.trackedKeys.WithLabelValues("client")))
}

func TestPerimeter_Handler(t *testing.T) {
	t.Parallel()

	p := New(false)
	p.HTTPRequest(http.MethodGet, 429, 5*time.Millisecond)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	require.True(t, strings.Contains(body, `huozhong_http_requests_total{class="4xx",method="GET"} 1`), body)
	require.Contains(t, body, "huozhong_http_request_duration_seconds_bucket")
}

func TestPerimeter_NilSafe(t *testing.T) {
	t.Parallel()

	var p *Perimeter
	p.Admission("client", "admitted")
	p.Login("x", "y")
	p.Code("issued")
	p.TokenVerify("ok")
	p.TrackedKeys("client", 1)
	p.HTTPRequest("GET", 200, time.Millisecond)
	require.Nil(t, p.Registry())

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", StatusClass(204))
	require.Equal(t, "4xx", StatusClass(404))
	require.Equal(t, "5xx", StatusClass(503))
	require.Equal(t, "unknown", StatusClass(0))
}
