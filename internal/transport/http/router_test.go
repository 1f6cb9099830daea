package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcfgate/pkg/testutil"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "tcfgate_test_total", Help: "test"}))
	return NewRouter(RouterConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:        "1.2.3",
		AllowedOrigins: []string{"*"},
		Gatherer:       reg,
	}, pingRoutes{})
}

func TestHealth(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(t), testutil.NewRequest(t, http.MethodGet, "/health"))

	testutil.AssertStatusOK(t, rr)
	assert.JSONEq(t, `{"status":"OK","version":"1.2.3"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(t), testutil.NewRequest(t, http.MethodGet, "/metrics"))

	testutil.AssertStatusOK(t, rr)
	assert.True(t, strings.Contains(rr.Body.String(), "tcfgate_test_total"))
}

func TestFeatureRoutesAreRegistered(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(t), testutil.NewRequest(t, http.MethodGet, "/ping"))

	testutil.AssertStatusOK(t, rr)
	require.Equal(t, "pong", rr.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(t), testutil.NewRequest(t, http.MethodGet, "/nope"))

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
