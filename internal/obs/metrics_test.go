package obs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/api/auth/login":                     "/api/auth/login",
		"/api/organizations/01HX":             "/api/organizations/:id",
		"/api/organizations/01HX/users":       "/api/organizations/:id/users",
		"/api/organizations/":                 "/api/organizations/",
		"/api/admin/users?limit=10":           "/api/admin/users",
		"/api/organizations/01HX?expand=true": "/api/organizations/:id",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, CanonicalPath(input), "CanonicalPath(%q)", input)
	}
}

func TestRecordAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "failure"))
	RecordAuthEvent("login", errors.New("boom"))
	after := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "failure"))
	assert.Equal(t, before+1, after)
}

func TestRefreshTokensReapedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(refreshTokensReapedTotal)
	RefreshTokensReaped(0)
	RefreshTokensReaped(3)
	assert.Equal(t, before+3, testutil.ToFloat64(refreshTokensReapedTotal))
}

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/organizations/:id", "418"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/organizations/abc", nil))

	require.Equal(t, http.StatusTeapot, rr.Code)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/organizations/:id", "418"))
	assert.Equal(t, before+1, after)
	assert.Zero(t, testutil.ToFloat64(httpInFlight))
}
