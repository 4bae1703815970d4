package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instrumentedRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/actions/{action}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	return r
}

func TestInstrumentHandlerLabelsByRoutePattern(t *testing.T) {
	h := instrumentedRouter()
	counter := httpRequests.WithLabelValues("POST", "/v1/actions/{action}", "418")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/actions/buy-ipo", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/actions/transfer", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestInstrumentHandlerFoldsUnknownPaths(t *testing.T) {
	h := instrumentedRouter()
	other := httpRequests.WithLabelValues("GET", otherRoute, "404")
	before := testutil.ToFloat64(other)
	series := testutil.CollectAndCount(httpRequests)

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/junk-%d", i), nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+50, testutil.ToFloat64(other))
	assert.Equal(t, series, testutil.CollectAndCount(httpRequests))
}

func TestRouteLabelOutsideRouter(t *testing.T) {
	assert.Equal(t, otherRoute, routeLabel(httptest.NewRequest(http.MethodGet, "/anything", nil)))
}

func TestMethodLabelFoldsUnknownMethods(t *testing.T) {
	assert.Equal(t, "GET", methodLabel("get"))
	assert.Equal(t, otherRoute, methodLabel("BREW"))
}

func TestRecordActionAndAudit(t *testing.T) {
	committed := commits.WithLabelValues("transfer", "committed")
	unknown := commits.WithLabelValues("unknown", "rejected")
	violations := auditRuns.WithLabelValues("violation")
	c0, u0, v0 := testutil.ToFloat64(committed), testutil.ToFloat64(unknown), testutil.ToFloat64(violations)

	RecordAction("transfer", "committed", time.Millisecond)
	RecordAction("", "rejected", 0)
	RecordAudit(false)

	assert.Equal(t, c0+1, testutil.ToFloat64(committed))
	assert.Equal(t, u0+1, testutil.ToFloat64(unknown))
	assert.Equal(t, v0+1, testutil.ToFloat64(violations))
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserverConnected()
	defer ObserverDisconnected()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "boardbank_fanout_observers")
}
