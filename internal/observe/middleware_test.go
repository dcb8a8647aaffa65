package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func middlewareSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

func serve(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	met := findMetric(collect(t, reader), "frameingest.http.request.duration")
	if met == nil {
		t.Fatal("http duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	return hist.DataPoints
}

func attrValue(set attribute.Set, key string) string {
	v, _ := set.Value(attribute.Key(key))
	return v.AsString()
}

func TestMiddleware_CorrelationIDMatchesTrace(t *testing.T) {
	m, _, _ := middlewareSetup(t)

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	rec := serve(h, http.MethodPost, "/api/users", nil)

	if len(seen) != 32 {
		t.Fatalf("correlation ID %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into response")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := middlewareSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	rec := serve(h, http.MethodPost, "/api/users", map[string]string{
		"traceparent": "00-" + traceID + "-00f067aa0ba902b7-01",
	})

	if seen != traceID {
		t.Errorf("correlation ID = %q, want %q", seen, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_RouteStatusAndSpan(t *testing.T) {
	m, reader, exp := middlewareSetup(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/api/users/{fid}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "fid") == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	serve(r, http.MethodGet, "/api/users/1", nil)
	serve(r, http.MethodGet, "/api/users/2", nil)
	serve(r, http.MethodGet, "/api/users/404", nil)

	counts := map[string]uint64{}
	for _, dp := range durationPoints(t, reader) {
		if p := attrValue(dp.Attributes, "path"); p != "/api/users/{fid}" {
			t.Errorf("path attribute = %q, want route pattern", p)
		}
		counts[attrValue(dp.Attributes, "status")] += dp.Count
	}
	if counts["2xx"] != 2 || counts["4xx"] != 1 {
		t.Errorf("samples by status = %v, want 2xx:2 4xx:1", counts)
	}

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/users/{fid}" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[2].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status code = %d, want 404", status)
	}
	if spans[2].Status.Code == codes.Error {
		t.Error("4xx should not mark the span as failed")
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	m, reader, exp := middlewareSetup(t)
	buf := captureLogs(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "store down", http.StatusServiceUnavailable)
	}))
	serve(h, http.MethodPost, "/api/users", nil)

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("spans = %v, want one failed span", spans)
	}
	dps := durationPoints(t, reader)
	if len(dps) != 1 || attrValue(dps[0].Attributes, "status") != "5xx" {
		t.Errorf("data points = %v, want one 5xx series", dps)
	}
	if logged := buf.String(); !strings.Contains(logged, "level=WARN") || !strings.Contains(logged, "status=503") {
		t.Errorf("server error not logged at warn: %s", logged)
	}
}

func TestMiddleware_HealthChecksLogAtDebug(t *testing.T) {
	m, _, _ := middlewareSetup(t)
	buf := captureLogs(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	serve(h, http.MethodGet, "/healthz", nil)
	if buf.Len() != 0 {
		t.Errorf("health check logged at info: %s", buf.String())
	}

	serve(h, http.MethodGet, "/api/users/1", nil)
	if logged := buf.String(); !strings.Contains(logged, "request completed") || !strings.Contains(logged, "bytes=2") {
		t.Errorf("regular request not logged: %s", logged)
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 304: "3xx", 400: "4xx", 429: "4xx", 502: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
